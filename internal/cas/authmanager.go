package cas

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// AuthenticationManager composes an ordered list of CredentialHandler and
// resolves a batch of credentials to a single Principal.
type AuthenticationManager struct {
	handlers []CredentialHandler
}

// NewAuthenticationManager builds a manager over handlers, tried in order
// for each credential — the first handler whose Supports(credential) is
// true is invoked for that credential.
func NewAuthenticationManager(handlers ...CredentialHandler) *AuthenticationManager {
	return &AuthenticationManager{handlers: handlers}
}

// Authenticate resolves every credential in the request. All credentials
// must succeed for the overall response to succeed; partial failures are
// recorded in Failures but do not short-circuit the remaining credentials,
// so the caller sees every handler's verdict.
func (m *AuthenticationManager) Authenticate(ctx context.Context, req AuthenticationRequest) (AuthenticationResponse, error) {
	resp := AuthenticationResponse{
		Failures:   map[string]AuthenticationOutcome{},
		Attributes: map[string][]string{},
	}

	if len(req.Credentials) == 0 {
		resp.Outcome = AuthBadCredentials
		return resp, nil
	}

	var principal Principal
	var authentications []Authentication
	havePrincipal := false

	for _, cred := range req.Credentials {
		handler := m.handlerFor(cred)
		if handler == nil {
			resp.Failures[cred.Kind()] = AuthNoHandler
			resp.Outcome = AuthNoHandler
			continue
		}

		p, auths, attrs, err := handler.Authenticate(ctx, cred)
		if err != nil {
			logx.WithContext(ctx).Errorf("authmanager: handler %s failed: %v", handler.Name(), err)
			outcome := AuthBadCredentials
			if oe, ok := err.(outcomeError); ok {
				outcome = oe.Outcome()
			}
			resp.Failures[handler.Name()] = outcome
			resp.Outcome = outcome
			continue
		}

		if havePrincipal && p.ID != principal.ID {
			// Mixed-principal credential batches are rejected outright;
			// the manager never merges two distinct identities.
			resp.Failures[handler.Name()] = AuthPrincipalNotFound
			resp.Outcome = AuthPrincipalNotFound
			continue
		}

		principal = p
		havePrincipal = true
		for _, a := range auths {
			if a.Instant.IsZero() {
				a.Instant = time.Now().UTC()
			}
			authentications = append(authentications, a)
		}
		for k, v := range attrs {
			resp.Attributes[k] = v
		}
	}

	if !havePrincipal || len(resp.Failures) > 0 {
		return resp, nil
	}

	resp.Succeeded = true
	resp.Principal = principal
	resp.Authentications = authentications
	return resp, nil
}

// outcomeError lets a CredentialHandler report a specific
// AuthenticationOutcome instead of falling back to AuthBadCredentials.
type outcomeError interface {
	error
	Outcome() AuthenticationOutcome
}

func (m *AuthenticationManager) handlerFor(c Credential) CredentialHandler {
	for _, h := range m.handlers {
		if h.Supports(c) {
			return h
		}
	}
	return nil
}
