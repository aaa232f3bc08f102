package cas

import "context"

// Credential is the marker interface every credential kind implements.
// Concrete kinds live in internal/cas/handlers; the core only needs to be
// able to hand one to the first handler whose Supports returns true.
type Credential interface {
	Kind() string
}

// CredentialHandler resolves one kind of Credential to a Principal.
// Handlers are pure-ish: Authenticate must not mutate session state, only
// report success or failure.
type CredentialHandler interface {
	Name() string
	Supports(c Credential) bool
	Authenticate(ctx context.Context, c Credential) (Principal, []Authentication, map[string][]string, error)
}

// AuthenticationRequest is the input to AuthenticationManager.Authenticate.
type AuthenticationRequest struct {
	Credentials []Credential
	LongTerm    bool
}

// AuthenticationResponse is the output of AuthenticationManager.Authenticate.
type AuthenticationResponse struct {
	Succeeded       bool
	Outcome         AuthenticationOutcome
	Principal       Principal
	Authentications []Authentication
	Failures        map[string]AuthenticationOutcome
	Attributes      map[string][]string
}
