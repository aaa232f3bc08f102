package cas

// ServiceAccessRequest is the input to grantAccess.
type ServiceAccessRequest struct {
	ServiceID            string
	SessionID            string
	Credentials          []Credential
	ForceAuthentication  bool
	LongTermLoginRequest bool
	ProxiedRequest       bool
}

// Valid reports the shape-level validity check step 2 of grantAccess
// performs before touching any session state.
func (r ServiceAccessRequest) Valid() bool {
	return r.ServiceID != ""
}

// TokenServiceAccessRequest is the input to validate.
type TokenServiceAccessRequest struct {
	Token       string
	ServiceID   string
	Credentials []Credential
}

// Valid reports the shape-level validity check step 1 of validate performs.
func (r TokenServiceAccessRequest) Valid() bool {
	return r.Token != "" && r.ServiceID != ""
}

// LoginRequest is the input to login.
type LoginRequest struct {
	Credentials []Credential
	LongTerm    bool
}

// LoginResponse is the output of login. Session is nil on failure.
type LoginResponse struct {
	Session  *Session
	AuthResp AuthenticationResponse
}

// LogoutResponse is the output of both logout overloads.
type LogoutResponse struct {
	Sessions []*Session
}
