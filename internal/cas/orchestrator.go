package cas

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// defaultAccessIndexTTL bounds how long an AccessIndex entry outlives a
// ticket that was never explicitly removed, when the caller didn't set one.
const defaultAccessIndexTTL = 5 * time.Minute

// CentralAuthenticationServiceConfig bundles every collaborator the
// orchestrator needs. All fields are required except the plugin/observer
// slices, Notifier, ProxyValidator, and AccessIndex/AccessIndexTTL, which
// default to no-ops (a nil AccessIndex makes the single-process Access
// counter authoritative).
type CentralAuthenticationServiceConfig struct {
	AuthManager    *AuthenticationManager
	Store          SessionStorage
	Services       ServicesManager
	Expiration     ExpirationPolicy
	Responses      *ResponseFactoryRegistry
	IDs            IDGenerator
	Notifier       RelyingPartyNotifier
	ProxyValidator ProxyCallbackValidator
	AccessPolicy   UsagePolicy
	AccessIndex    AccessIndex
	AccessIndexTTL time.Duration

	PreAuthPlugins  []PreAuthenticationPlugin
	PostAuthPlugins []AuthenticationResponsePlugin
	Observers       ObserverChain
}

// CentralAuthenticationService is the single point of contact relying
// applications and the authority's own transport layer call through: it
// owns no network surface of its own, only the four operations a CAS
// implementation is built from.
type CentralAuthenticationService struct {
	authManager    *AuthenticationManager
	store          SessionStorage
	services       ServicesManager
	expiration     ExpirationPolicy
	responses      *ResponseFactoryRegistry
	ids            IDGenerator
	notifier       RelyingPartyNotifier
	proxyValidator ProxyCallbackValidator
	accessPolicy   UsagePolicy
	accessIndex    AccessIndex
	accessIndexTTL time.Duration

	preAuthPlugins  []PreAuthenticationPlugin
	postAuthPlugins []AuthenticationResponsePlugin
	observers       ObserverChain
}

func NewCentralAuthenticationService(cfg CentralAuthenticationServiceConfig) *CentralAuthenticationService {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	accessIndexTTL := cfg.AccessIndexTTL
	if accessIndexTTL <= 0 {
		accessIndexTTL = defaultAccessIndexTTL
	}
	return &CentralAuthenticationService{
		authManager:     cfg.AuthManager,
		store:           cfg.Store,
		services:        cfg.Services,
		expiration:      cfg.Expiration,
		responses:       cfg.Responses,
		ids:             cfg.IDs,
		notifier:        notifier,
		proxyValidator:  cfg.ProxyValidator,
		accessPolicy:    cfg.AccessPolicy,
		accessIndex:     cfg.AccessIndex,
		accessIndexTTL:  accessIndexTTL,
		preAuthPlugins:  cfg.PreAuthPlugins,
		postAuthPlugins: cfg.PostAuthPlugins,
		observers:       cfg.Observers,
	}
}

// Login authenticates a credential batch and mints a new top-level
// Session (a ticket-granting ticket). Pre-authentication plugins run
// first, in declared order, and may short-circuit by returning a
// non-nil response; they never see the post-authentication plugin list.
func (c *CentralAuthenticationService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	c.observers.BeforeOperation(ctx, OpLogin, "", "")
	succeeded := false
	defer func() { c.observers.AfterOperation(ctx, OpLogin, "", "", succeeded) }()

	for _, plugin := range c.preAuthPlugins {
		resp, err := plugin.ContinueWithAuthentication(ctx, req)
		if err != nil {
			logx.WithContext(ctx).Errorf("cas: pre-auth plugin %s failed: %v", plugin.Name(), err)
			return nil, err
		}
		if resp != nil {
			succeeded = resp.Session != nil
			return resp, nil
		}
	}

	authResp, err := c.authManager.Authenticate(ctx, AuthenticationRequest{
		Credentials: req.Credentials,
		LongTerm:    req.LongTerm,
	})
	if err != nil {
		return nil, err
	}

	for _, plugin := range c.postAuthPlugins {
		plugin.Handle(ctx, req, authResp)
	}

	if !authResp.Succeeded {
		return &LoginResponse{AuthResp: authResp}, nil
	}

	id, err := c.ids.NewID("TGT-")
	if err != nil {
		return nil, err
	}
	session := NewSession(id, authResp, req.LongTerm)
	if err := c.store.CreateSession(ctx, session); err != nil {
		logx.WithContext(ctx).Errorf("cas: create session %s: %v", id, err)
		return nil, fmt.Errorf("cas: create session: %w", ErrStorageFailure)
	}

	succeeded = true
	return &LoginResponse{Session: session, AuthResp: authResp}, nil
}

// LogoutBySessionID destroys one session (and every session delegated
// from it) and best-effort-notifies each of its accesses' relying
// parties. Logging out a session id the store has no record of is a
// no-op, never an error.
func (c *CentralAuthenticationService) LogoutBySessionID(ctx context.Context, sessionID string) (*LogoutResponse, error) {
	c.observers.BeforeOperation(ctx, OpLogout, sessionID, "")
	succeeded := false
	defer func() { c.observers.AfterOperation(ctx, OpLogout, sessionID, "", succeeded) }()

	destroyed, err := c.destroyCascade(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	succeeded = true
	return &LogoutResponse{Sessions: destroyed}, nil
}

// LogoutByPrincipalID destroys every session (and its delegates) owned by
// a principal — an administrative "sign this user out everywhere".
func (c *CentralAuthenticationService) LogoutByPrincipalID(ctx context.Context, principalID string) (*LogoutResponse, error) {
	c.observers.BeforeOperation(ctx, OpLogout, "", principalID)
	succeeded := false
	defer func() { c.observers.AfterOperation(ctx, OpLogout, "", principalID, succeeded) }()

	sessions, err := c.store.FindSessionsByPrincipal(ctx, principalID)
	if err != nil {
		logx.WithContext(ctx).Errorf("cas: find sessions for principal %s: %v", principalID, err)
		return nil, fmt.Errorf("cas: find sessions: %w", ErrStorageFailure)
	}

	var all []*Session
	for _, s := range sessions {
		destroyed, err := c.destroyCascade(ctx, s.ID())
		if err != nil {
			return nil, err
		}
		all = append(all, destroyed...)
	}
	succeeded = true
	return &LogoutResponse{Sessions: all}, nil
}

// destroyCascade destroys sessionID and recursively destroys every
// session delegated from it, since a parent's revocation must revoke the
// whole proxy chain.
func (c *CentralAuthenticationService) destroyCascade(ctx context.Context, sessionID string) ([]*Session, error) {
	session, err := c.store.DestroySession(ctx, sessionID)
	if err != nil {
		logx.WithContext(ctx).Errorf("cas: destroy session %s: %v", sessionID, err)
		return nil, fmt.Errorf("cas: destroy session: %w", ErrStorageFailure)
	}
	if session == nil {
		return nil, nil
	}

	childIDs := session.ChildSessionIDs()
	session.Invalidate(func(a *Access) {
		a.Invalidate(ctx)
		if c.accessIndex != nil {
			if err := c.accessIndex.RemoveAccess(ctx, a.GetID()); err != nil {
				logx.WithContext(ctx).Errorf("cas: remove access index entry %s: %v", a.GetID(), err)
			}
		}
	})

	out := []*Session{session}
	for _, childID := range childIDs {
		children, err := c.destroyCascade(ctx, childID)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}

// Validate checks a service or proxy ticket and, if the caller presented
// a proxy callback credential, attempts to mint a delegated session for
// it. A failed delegation attempt never aborts the primary ticket
// verification: it is surfaced via ServiceAccessResponse.DelegationFailure
// alongside whatever TokenOutcome the primary check produced.
func (c *CentralAuthenticationService) Validate(ctx context.Context, req TokenServiceAccessRequest) (ServiceAccessResponse, error) {
	c.observers.BeforeOperation(ctx, OpValidate, req.Token, "")
	succeeded := false
	defer func() { c.observers.AfterOperation(ctx, OpValidate, req.Token, "", succeeded) }()

	factory := c.responses.forRequest(req)
	if factory == nil {
		panic(&ErrConfigurationError{Reason: "no ServiceAccessResponseFactory supports this request"})
	}

	if !req.Valid() {
		return factory.ForRequestError(req, TokenNotFound, ErrNotFoundSession), nil
	}

	session, err := c.store.FindSessionByAccessID(ctx, req.Token)
	if err != nil {
		logx.WithContext(ctx).Errorf("cas: find session by access %s: %v", req.Token, err)
		return factory.ForRequestError(req, TokenNotFound, fmt.Errorf("cas: lookup access: %w", ErrStorageFailure)), nil
	}
	if session == nil {
		if c.accessIndex != nil {
			if sessionID, found, err := c.accessIndex.ResolveAccess(ctx, req.Token); err == nil && found {
				logx.WithContext(ctx).Infof("cas: access %s indexed to session %s but not resolvable on this replica", req.Token, sessionID)
			}
		}
		return factory.ForRequestError(req, TokenNotFound, ErrNotFoundSession), nil
	}

	access := session.GetAccess(req.Token)
	if access == nil || access.GetResourceIdentifier() != req.ServiceID {
		return factory.ForRequestError(req, TokenNotFound, ErrNotFoundSession), nil
	}

	if session.Invalidated() {
		accessFactory := c.responses.forAccess(access)
		return accessFactory.ForAccess(session, access, TokenSessionInvalidated, nil), nil
	}
	if c.expiration.IsExpired(session) {
		accessFactory := c.responses.forAccess(access)
		return accessFactory.ForAccess(session, access, TokenExpired, nil), nil
	}

	outcome := c.validateAccess(ctx, access, req)

	var delegationFailure *AuthenticationResponse
	var proxyGrantingTicketIOU string
	if len(req.Credentials) > 0 {
		delegationFailure, proxyGrantingTicketIOU = c.tryDelegate(ctx, session, access, req)
	}

	if err := c.store.UpdateSession(ctx, session); err != nil {
		logx.WithContext(ctx).Errorf("cas: update session %s: %v", session.ID(), err)
	}

	accessFactory := c.responses.forAccess(access)
	resp := accessFactory.ForAccess(session, access, outcome, delegationFailure)
	resp.ProxyGrantingTicketIOU = proxyGrantingTicketIOU
	succeeded = outcome == TokenOK
	return resp, nil
}

// validateAccess applies the access's usage policy, consulting the
// cross-process AccessIndex claim first when the policy is bounded-use and
// an AccessIndex is configured: the first caller across every replica to
// claim an access id wins, so a losing claim short-circuits straight to
// TokenUsed without ever touching this process's local counter. Local
// Validate still runs on a successful (or unavailable) claim so the
// in-process counter and RemainingAccesses stay meaningful even for a
// single-replica deployment.
func (c *CentralAuthenticationService) validateAccess(ctx context.Context, access *Access, req TokenServiceAccessRequest) TokenOutcome {
	if c.accessIndex != nil && access.RequiresClaim() {
		claimed, err := c.accessIndex.ClaimUse(ctx, access.GetID(), c.accessIndexTTL)
		if err != nil {
			logx.WithContext(ctx).Errorf("cas: claim access %s: %v", access.GetID(), err)
		} else if !claimed {
			return TokenUsed
		}
	}
	return access.Validate(req)
}

// tryDelegate validates the proxy callback credential on req and, if it
// checks out, mints and persists a delegated Session whose authentications
// are carried forward from the parent session.
func (c *CentralAuthenticationService) tryDelegate(ctx context.Context, session *Session, access *Access, req TokenServiceAccessRequest) (*AuthenticationResponse, string) {
	var callbackURL string
	for _, cred := range req.Credentials {
		if pc, ok := cred.(ProxyCallbackCredential); ok {
			callbackURL = pc.CallbackURL
			break
		}
	}

	failure := &AuthenticationResponse{Succeeded: false, Outcome: AuthBadCredentials}
	if callbackURL == "" || c.proxyValidator == nil || !c.proxyValidator.ValidateCallback(ctx, callbackURL) {
		return failure, ""
	}

	authResp := AuthenticationResponse{Succeeded: true, Authentications: session.Authentications()}
	delegated, err := access.CreateDelegatedSession(authResp, c.ids, session.LongTerm())
	if err != nil {
		logx.WithContext(ctx).Errorf("cas: create delegated session: %v", err)
		return failure, ""
	}
	if err := c.store.CreateSession(ctx, delegated); err != nil {
		logx.WithContext(ctx).Errorf("cas: persist delegated session %s: %v", delegated.ID(), err)
		return failure, ""
	}
	session.AddChild(delegated.ID())
	return nil, delegated.ID()
}

// GrantAccess issues a new service or proxy ticket against a session.
// When the request carries credentials (force-reauthentication) and the
// resulting principal differs from the resolved session's principal, the
// old session is torn down and its outstanding accesses are reported
// back in RemainingAccesses instead of silently disappearing.
func (c *CentralAuthenticationService) GrantAccess(ctx context.Context, req ServiceAccessRequest) (ServiceAccessResponse, error) {
	c.observers.BeforeOperation(ctx, OpGrantAccess, req.SessionID, "")
	succeeded := false
	defer func() { c.observers.AfterOperation(ctx, OpGrantAccess, req.SessionID, "", succeeded) }()

	if !req.Valid() {
		return ServiceAccessResponse{Succeeded: false, Error: ErrUnauthorizedService}, nil
	}

	ok, err := c.services.MatchesExistingService(ctx, req)
	if err != nil {
		logx.WithContext(ctx).Errorf("cas: match service %s: %v", req.ServiceID, err)
		return ServiceAccessResponse{Succeeded: false, Error: fmt.Errorf("cas: match service: %w", ErrStorageFailure)}, nil
	}
	if !ok {
		return ServiceAccessResponse{Succeeded: false, Error: ErrUnauthorizedService}, nil
	}

	session, remaining, err := c.resolveSessionForGrant(ctx, req)
	if err != nil {
		return ServiceAccessResponse{Succeeded: false, Error: err}, nil
	}

	access, err := session.Grant(req, c.ids, c.accessPolicy, true, c.notifier)
	if err != nil {
		return ServiceAccessResponse{Succeeded: false, Error: err}, nil
	}
	if err := c.store.UpdateSession(ctx, session); err != nil {
		logx.WithContext(ctx).Errorf("cas: update session %s: %v", session.ID(), err)
		return ServiceAccessResponse{Succeeded: false, Error: fmt.Errorf("cas: update session: %w", ErrStorageFailure)}, nil
	}
	if c.accessIndex != nil {
		if err := c.accessIndex.IndexAccess(ctx, access.GetID(), session.ID(), c.accessIndexTTL); err != nil {
			logx.WithContext(ctx).Errorf("cas: index access %s: %v", access.GetID(), err)
		}
	}

	succeeded = true
	return ServiceAccessResponse{
		Succeeded:         true,
		PrincipalID:       session.PrincipalID(),
		AccessID:          access.GetID(),
		RemainingAccesses: remaining,
	}, nil
}

// resolveSessionForGrant implements the three ways grantAccess can land
// on a Session: reuse an existing one by id, re-authenticate into it
// in-place when the principal is unchanged, or replace it (reporting the
// torn-down accesses) when a force-reauth resolves to a different
// principal.
func (c *CentralAuthenticationService) resolveSessionForGrant(ctx context.Context, req ServiceAccessRequest) (*Session, []AccessSummary, error) {
	var existing *Session
	if req.SessionID != "" {
		s, err := c.store.FindSessionBySessionID(ctx, req.SessionID)
		if err != nil {
			logx.WithContext(ctx).Errorf("cas: find session %s: %v", req.SessionID, err)
			return nil, nil, fmt.Errorf("cas: find session: %w", ErrStorageFailure)
		}
		existing = s
	}

	if !req.ForceAuthentication && len(req.Credentials) == 0 {
		if existing == nil {
			return nil, nil, ErrNotFoundSession
		}
		if !existing.IsValid(c.expiration) {
			return nil, nil, ErrInvalidatedSession
		}
		return existing, nil, nil
	}

	authResp, err := c.authManager.Authenticate(ctx, AuthenticationRequest{Credentials: req.Credentials, LongTerm: req.LongTermLoginRequest})
	if err != nil {
		return nil, nil, err
	}
	if !authResp.Succeeded {
		return nil, nil, ErrUnauthorizedService
	}

	if existing != nil && existing.IsValid(c.expiration) && existing.PrincipalID() == authResp.Principal.ID {
		if err := existing.AddAuthentication(authResp.Authentications[len(authResp.Authentications)-1]); err != nil {
			return nil, nil, err
		}
		return existing, nil, nil
	}

	var remaining []AccessSummary
	if existing != nil {
		for _, a := range existing.Accesses() {
			remaining = append(remaining, a.Summarize())
		}
		if _, err := c.destroyCascade(ctx, existing.ID()); err != nil {
			return nil, nil, err
		}
	}

	id, err := c.ids.NewID("TGT-")
	if err != nil {
		return nil, nil, err
	}
	session := NewSession(id, authResp, req.LongTermLoginRequest)
	if err := c.store.CreateSession(ctx, session); err != nil {
		logx.WithContext(ctx).Errorf("cas: create session %s: %v", id, err)
		return nil, nil, fmt.Errorf("cas: create session: %w", ErrStorageFailure)
	}
	return session, remaining, nil
}
