package cas

import "context"

// ProxyCallbackCredential is the credential an intermediate service
// presents when it wants validate() to mint it a proxy-granting ticket
// (a delegated Session) instead of a plain service ticket check. It
// carries the callback URL the orchestrator will verify before trusting
// the proxy chain, mirroring the CAS proxy protocol's pgtUrl.
type ProxyCallbackCredential struct {
	CallbackURL string
}

func (ProxyCallbackCredential) Kind() string { return "proxy-callback" }

// ProxyCallbackValidator decides whether a proxy callback URL is fit to
// receive a proxy-granting-ticket IOU. The orchestrator consults this
// before calling Access.CreateDelegatedSession, independently of
// AuthenticationManager — a proxy callback does not establish a new
// principal, it extends trust in the existing session's principal to a
// new delegate.
type ProxyCallbackValidator interface {
	ValidateCallback(ctx context.Context, callbackURL string) bool
}
