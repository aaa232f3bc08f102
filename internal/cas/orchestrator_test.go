package cas_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordkirke/cas-authority/internal/cas"
	"github.com/nordkirke/cas-authority/internal/cas/store"
)

// fakePasswordCredential and fakePasswordHandler stand in for the
// postgres/bcrypt-backed password handler in tests that only care about
// orchestrator behavior, not credential storage.
type fakePasswordCredential struct {
	Username string
	Password string
}

func (fakePasswordCredential) Kind() string { return "password" }

type fakePasswordHandler struct {
	users map[string]string // username -> password
}

func newFakePasswordHandler(users map[string]string) *fakePasswordHandler {
	return &fakePasswordHandler{users: users}
}

func (h *fakePasswordHandler) Name() string { return "password" }

func (h *fakePasswordHandler) Supports(c cas.Credential) bool {
	_, ok := c.(fakePasswordCredential)
	return ok
}

func (h *fakePasswordHandler) Authenticate(_ context.Context, c cas.Credential) (cas.Principal, []cas.Authentication, map[string][]string, error) {
	cred, ok := c.(fakePasswordCredential)
	if !ok {
		return cas.Principal{}, nil, nil, fmt.Errorf("fakePasswordHandler: unexpected credential type %T", c)
	}
	want, found := h.users[cred.Username]
	if !found {
		return cas.Principal{}, nil, nil, fakeOutcomeErr{cas.AuthPrincipalNotFound}
	}
	if want != cred.Password {
		return cas.Principal{}, nil, nil, fakeOutcomeErr{cas.AuthBadCredentials}
	}
	principal := cas.Principal{ID: cred.Username, Attributes: map[string][]string{"username": {cred.Username}}}
	auth := cas.Authentication{Principal: principal, Method: "password", Attributes: principal.Attributes}
	return principal, []cas.Authentication{auth}, principal.Attributes, nil
}

type fakeOutcomeErr struct {
	outcome cas.AuthenticationOutcome
}

func (e fakeOutcomeErr) Error() string                     { return string(e.outcome) }
func (e fakeOutcomeErr) Outcome() cas.AuthenticationOutcome { return e.outcome }

// fakeProxyValidator accepts a callback URL iff it appears in the allow set,
// standing in for HTTPSCallbackValidator's https-scheme check.
type fakeProxyValidator struct {
	allowed map[string]bool
}

func (v fakeProxyValidator) ValidateCallback(_ context.Context, callbackURL string) bool {
	return v.allowed[callbackURL]
}

// sequentialIDGenerator hands out TGT-001, ST-001, TGT-002... in call order
// per prefix, so assertions can read the way the end-to-end scenarios are
// described rather than against opaque random ids.
type sequentialIDGenerator struct {
	mu       sync.Mutex
	counters map[string]int
}

func newSequentialIDGenerator() *sequentialIDGenerator {
	return &sequentialIDGenerator{counters: map[string]int{}}
}

func (g *sequentialIDGenerator) NewID(prefix string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[prefix]++
	return fmt.Sprintf("%s%03d", prefix, g.counters[prefix]), nil
}

type harness struct {
	cas     *cas.CentralAuthenticationService
	store   *store.MemoryStore
	ids     *sequentialIDGenerator
	proxy   *fakeProxyValidator
	users   map[string]string
	index   *fakeAccessIndex
}

func newHarness(t *testing.T, services []cas.RegisteredService, expiration cas.ExpirationPolicy) *harness {
	t.Helper()
	return newHarnessWithAccessIndex(t, services, expiration, nil)
}

// newHarnessWithAccessIndex wires a fakeAccessIndex into the orchestrator,
// standing in for the cross-process guard store.RedisIndex backs in
// production — used by tests that exercise the bounded-use claim path
// a single-replica MemoryStore-backed harness never needs on its own.
func newHarnessWithAccessIndex(t *testing.T, services []cas.RegisteredService, expiration cas.ExpirationPolicy, index *fakeAccessIndex) *harness {
	t.Helper()
	users := map[string]string{"alice": "secret", "bob": "hunter2"}
	ids := newSequentialIDGenerator()
	proxy := &fakeProxyValidator{allowed: map[string]bool{}}
	memStore := store.NewMemoryStore()

	cfg := cas.CentralAuthenticationServiceConfig{
		AuthManager:    cas.NewAuthenticationManager(newFakePasswordHandler(users)),
		Store:          memStore,
		Services:       cas.NewStaticServicesManager(services),
		Expiration:     expiration,
		Responses:      cas.NewResponseFactoryRegistry(cas.NewCAS2Factory(), cas.NewCAS1Factory()),
		IDs:            ids,
		Notifier:       cas.NoopNotifier{},
		ProxyValidator: proxy,
		AccessPolicy:   cas.BoundedUsesPolicy(1),
	}
	if index != nil {
		cfg.AccessIndex = index
		cfg.AccessIndexTTL = time.Minute
	}
	authority := cas.NewCentralAuthenticationService(cfg)

	return &harness{cas: authority, store: memStore, ids: ids, proxy: proxy, users: users, index: index}
}

// fakeAccessIndex stands in for store.RedisIndex: an in-memory map playing
// the part of Redis's SETEX/SETNX/DEL so tests can assert the orchestrator
// calls IndexAccess/ClaimUse/RemoveAccess without a real Redis server.
type fakeAccessIndex struct {
	mu      sync.Mutex
	indexed map[string]string
	claimed map[string]bool
	removed map[string]bool
}

func newFakeAccessIndex() *fakeAccessIndex {
	return &fakeAccessIndex{indexed: map[string]string{}, claimed: map[string]bool{}, removed: map[string]bool{}}
}

func (f *fakeAccessIndex) IndexAccess(_ context.Context, accessID, sessionID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[accessID] = sessionID
	return nil
}

func (f *fakeAccessIndex) ResolveAccess(_ context.Context, accessID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessionID, ok := f.indexed[accessID]
	return sessionID, ok, nil
}

func (f *fakeAccessIndex) RemoveAccess(_ context.Context, accessID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[accessID] = true
	return nil
}

func (f *fakeAccessIndex) ClaimUse(_ context.Context, accessID string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[accessID] {
		return false, nil
	}
	f.claimed[accessID] = true
	return true, nil
}

func defaultServices() []cas.RegisteredService {
	return []cas.RegisteredService{
		{ID: "app", Pattern: `^https://app\.example(/.*)?$`, Enabled: true, ProxyAllowed: true},
	}
}

// S1: happy-path SSO — login, grant, validate once succeeds, validate again
// reports TokenUsed since the default access policy is single-use.
func TestScenarioLoginGrantValidateReuseIsTokenUsed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	require.NotNil(t, loginResp.Session)
	assert.Equal(t, "TGT-001", loginResp.Session.ID())

	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: loginResp.Session.ID()})
	require.NoError(t, err)
	require.True(t, grantResp.Succeeded)
	assert.Equal(t, "ST-001", grantResp.AccessID)

	first, err := h.cas.Validate(ctx, cas.TokenServiceAccessRequest{Token: "ST-001", ServiceID: "https://app.example/login"})
	require.NoError(t, err)
	assert.True(t, first.Succeeded)
	assert.Equal(t, "alice", first.PrincipalID)

	second, err := h.cas.Validate(ctx, cas.TokenServiceAccessRequest{Token: "ST-001", ServiceID: "https://app.example/login"})
	require.NoError(t, err)
	assert.False(t, second.Succeeded)
	assert.Equal(t, cas.TokenUsed, second.TokenOutcome)
}

// S2: grantAccess with forceAuthentication resolving to a different
// principal than the session's current one destroys the old session and
// reports its outstanding accesses back in RemainingAccesses.
func TestScenarioForceAuthenticationDifferentPrincipalDestroysSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: sessionID})
	require.NoError(t, err)
	require.True(t, grantResp.Succeeded)
	outstandingAccessID := grantResp.AccessID

	switched, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{
		ServiceID:           "https://app.example/login",
		SessionID:           sessionID,
		ForceAuthentication: true,
		Credentials:         []cas.Credential{fakePasswordCredential{Username: "bob", Password: "hunter2"}},
	})
	require.NoError(t, err)
	require.True(t, switched.Succeeded)
	assert.Equal(t, "bob", switched.PrincipalID)
	require.Len(t, switched.RemainingAccesses, 1)
	assert.Equal(t, outstandingAccessID, switched.RemainingAccesses[0].ID)
	assert.False(t, switched.RemainingAccesses[0].Used)

	old, err := h.store.FindSessionBySessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, old)
}

// S3: an administrative logout by principal destroys every session that
// principal holds, each reported in the aggregate LogoutResponse.
func TestScenarioLogoutByPrincipalDestroysAllSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	first, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	second, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	require.NotEqual(t, first.Session.ID(), second.Session.ID())

	logoutResp, err := h.cas.LogoutByPrincipalID(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, logoutResp.Sessions, 2)

	for _, id := range []string{first.Session.ID(), second.Session.ID()} {
		s, err := h.store.FindSessionBySessionID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, s)
	}
	remaining, err := h.store.FindSessionsByPrincipal(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

// S4: a proxy callback credential presented alongside a normal validate
// mints a delegated session, and destroying the parent cascades to it.
func TestScenarioProxyDelegationCascadesOnLogout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})
	h.proxy.allowed["https://proxy.example/callback"] = true

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: sessionID})
	require.NoError(t, err)

	validateResp, err := h.cas.Validate(ctx, cas.TokenServiceAccessRequest{
		Token:       grantResp.AccessID,
		ServiceID:   "https://app.example/login",
		Credentials: []cas.Credential{cas.ProxyCallbackCredential{CallbackURL: "https://proxy.example/callback"}},
	})
	require.NoError(t, err)
	require.True(t, validateResp.Succeeded)
	require.NotEmpty(t, validateResp.ProxyGrantingTicketIOU)
	assert.Nil(t, validateResp.DelegationFailure)

	delegatedID := validateResp.ProxyGrantingTicketIOU
	delegated, err := h.store.FindSessionBySessionID(ctx, delegatedID)
	require.NoError(t, err)
	require.NotNil(t, delegated)

	_, err = h.cas.LogoutBySessionID(ctx, sessionID)
	require.NoError(t, err)

	delegatedAfter, err := h.store.FindSessionBySessionID(ctx, delegatedID)
	require.NoError(t, err)
	assert.Nil(t, delegatedAfter)
}

// A proxy callback that fails validation reports DelegationFailure without
// touching the primary ticket's own outcome.
func TestScenarioProxyDelegationRejectedCallbackDoesNotAffectPrimaryValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: loginResp.Session.ID()})
	require.NoError(t, err)

	resp, err := h.cas.Validate(ctx, cas.TokenServiceAccessRequest{
		Token:       grantResp.AccessID,
		ServiceID:   "https://app.example/login",
		Credentials: []cas.Credential{cas.ProxyCallbackCredential{CallbackURL: "http://evil.example/callback"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Succeeded)
	assert.Empty(t, resp.ProxyGrantingTicketIOU)
	require.NotNil(t, resp.DelegationFailure)
	assert.Equal(t, cas.AuthBadCredentials, resp.DelegationFailure.Outcome)
}

// S5: grantAccess against a serviceId that matches no registered service is
// rejected before any session state is touched.
func TestScenarioGrantAccessUnauthorizedService(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)

	resp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://evil.example/phish", SessionID: loginResp.Session.ID()})
	require.NoError(t, err)
	assert.False(t, resp.Succeeded)
	assert.ErrorIs(t, resp.Error, cas.ErrUnauthorizedService)
}

// S6: a session that has outlived its expiration policy is no longer valid
// for grantAccess, and the sweeper eventually removes it from the store.
func TestScenarioExpiredSessionRejectedAndSwept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: 10 * time.Millisecond})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	time.Sleep(25 * time.Millisecond)

	resp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: sessionID})
	require.NoError(t, err)
	assert.False(t, resp.Succeeded)
	assert.ErrorIs(t, resp.Error, cas.ErrInvalidatedSession)

	sweeper := cas.NewSweeper(h.cas, h.store, cas.TTLPolicy{TTL: 10 * time.Millisecond}, time.Millisecond)
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		s, err := h.store.FindSessionBySessionID(ctx, sessionID)
		return err == nil && s == nil
	}, time.Second, 2*time.Millisecond)
}

// Invariant 1: for all sessions in the store, every index agrees the
// session exists and is reachable by its own id.
func TestInvariantSessionUniqueAcrossIndexes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)

	byID, err := h.store.FindSessionBySessionID(ctx, loginResp.Session.ID())
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, loginResp.Session.ID(), byID.ID())

	byPrincipal, err := h.store.FindSessionsByPrincipal(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byPrincipal, 1)
	assert.Equal(t, loginResp.Session.ID(), byPrincipal[0].ID())
}

// Invariant 2: for any access requiring storage, looking it up by access id
// resolves to its owning session.
func TestInvariantAccessResolvesToOwningSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: loginResp.Session.ID()})
	require.NoError(t, err)

	owner, err := h.store.FindSessionByAccessID(ctx, grantResp.AccessID)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, loginResp.Session.ID(), owner.ID())
}

// Invariant 3: after logout, the session is gone from the by-id index and
// flagged invalidated on the object the caller holds.
func TestInvariantLogoutRemovesSessionAndMarksInvalidated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	_, err = h.cas.LogoutBySessionID(ctx, sessionID)
	require.NoError(t, err)

	s, err := h.store.FindSessionBySessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.True(t, loginResp.Session.Invalidated())
}

// Invariant 5: invalidating an already-destroyed session id is a no-op,
// not an error, the second time through.
func TestInvariantLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	first, err := h.cas.LogoutBySessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, first.Sessions, 1)

	second, err := h.cas.LogoutBySessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, second.Sessions)
}

// Invariant 8: a session created by login and immediately looked up by
// principal returns a set containing exactly that session.
func TestInvariantLoginThenFindByPrincipalRoundTrips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)

	found, err := h.store.FindSessionsByPrincipal(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, loginResp.Session.ID(), found[0].ID())
}

func TestLoginBadCredentialsFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	resp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "wrong"}}})
	require.NoError(t, err)
	assert.Nil(t, resp.Session)
	assert.False(t, resp.AuthResp.Succeeded)
	assert.Equal(t, cas.AuthBadCredentials, resp.AuthResp.Outcome)
}

// Validate on a session that outlived its expiration policy, but hasn't
// been swept yet, reports TokenExpired — distinct from a session an
// explicit logout marked invalidated.
func TestValidateOnExpiredButNotYetSweptSessionReturnsTokenExpired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: 10 * time.Millisecond})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: sessionID})
	require.NoError(t, err)
	require.True(t, grantResp.Succeeded)

	time.Sleep(25 * time.Millisecond)

	resp, err := h.cas.Validate(ctx, cas.TokenServiceAccessRequest{Token: grantResp.AccessID, ServiceID: "https://app.example/login"})
	require.NoError(t, err)
	assert.False(t, resp.Succeeded)
	assert.Equal(t, cas.TokenExpired, resp.TokenOutcome)
}

// Validate on a session that was marked invalidated but is still held in
// the store, so its access is still reachable by access id, reports
// SESSION_INVALIDATED, not TOKEN_EXPIRED.
func TestValidateOnInvalidatedSessionReturnsTokenSessionInvalidated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour})

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: sessionID})
	require.NoError(t, err)
	require.True(t, grantResp.Succeeded)

	session, err := h.store.FindSessionBySessionID(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, session)
	session.Invalidate(nil)

	resp, err := h.cas.Validate(ctx, cas.TokenServiceAccessRequest{Token: grantResp.AccessID, ServiceID: "https://app.example/login"})
	require.NoError(t, err)
	assert.False(t, resp.Succeeded)
	assert.Equal(t, cas.TokenSessionInvalidated, resp.TokenOutcome)
}

// GrantAccess indexes a newly issued access into a configured AccessIndex,
// the secondary access-id -> session-id map a horizontally scaled authority
// consults across replicas.
func TestGrantAccessIndexesAccessWhenAccessIndexConfigured(t *testing.T) {
	ctx := context.Background()
	index := newFakeAccessIndex()
	h := newHarnessWithAccessIndex(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour}, index)

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: sessionID})
	require.NoError(t, err)
	require.True(t, grantResp.Succeeded)

	indexedSessionID, found, err := index.ResolveAccess(ctx, grantResp.AccessID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sessionID, indexedSessionID)
}

// Validate consults the AccessIndex's ClaimUse for a bounded-use access
// before the in-process counter, so the first validate to land — even one
// handled by a different authority process sharing the same index — wins
// and every later one reports TokenUsed.
func TestValidateClaimsBoundedUseAccessThroughAccessIndex(t *testing.T) {
	ctx := context.Background()
	index := newFakeAccessIndex()
	h := newHarnessWithAccessIndex(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour}, index)

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: sessionID})
	require.NoError(t, err)
	require.True(t, grantResp.Succeeded)

	// Simulate another replica having already claimed this access.
	claimed, err := index.ClaimUse(ctx, grantResp.AccessID, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	resp, err := h.cas.Validate(ctx, cas.TokenServiceAccessRequest{Token: grantResp.AccessID, ServiceID: "https://app.example/login"})
	require.NoError(t, err)
	assert.False(t, resp.Succeeded)
	assert.Equal(t, cas.TokenUsed, resp.TokenOutcome)
}

// Logging out a session removes every one of its accesses from the
// AccessIndex, so a claim entry never outlives the session that minted it.
func TestLogoutRemovesAccessesFromAccessIndex(t *testing.T) {
	ctx := context.Background()
	index := newFakeAccessIndex()
	h := newHarnessWithAccessIndex(t, defaultServices(), cas.TTLPolicy{TTL: time.Hour}, index)

	loginResp, err := h.cas.Login(ctx, cas.LoginRequest{Credentials: []cas.Credential{fakePasswordCredential{Username: "alice", Password: "secret"}}})
	require.NoError(t, err)
	sessionID := loginResp.Session.ID()

	grantResp, err := h.cas.GrantAccess(ctx, cas.ServiceAccessRequest{ServiceID: "https://app.example/login", SessionID: sessionID})
	require.NoError(t, err)
	require.True(t, grantResp.Succeeded)

	_, err = h.cas.LogoutBySessionID(ctx, sessionID)
	require.NoError(t, err)

	index.mu.Lock()
	removed := index.removed[grantResp.AccessID]
	index.mu.Unlock()
	assert.True(t, removed)
}
