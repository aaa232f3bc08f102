package cas

import "context"

// PreAuthenticationPlugin runs before AuthenticationManager, in declared
// order; the first one to return a non-nil response short-circuits login
// entirely. Lets callers implement throttling, CAPTCHA, or MFA challenges
// without the core knowing about them.
type PreAuthenticationPlugin interface {
	Name() string
	ContinueWithAuthentication(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

// AuthenticationResponsePlugin runs after AuthenticationManager, in
// declared order; every plugin runs regardless of what the previous one
// did — plugins cannot veto at this stage.
type AuthenticationResponsePlugin interface {
	Name() string
	Handle(ctx context.Context, req LoginRequest, resp AuthenticationResponse)
}
