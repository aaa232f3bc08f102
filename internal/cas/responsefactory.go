package cas

// ServiceAccessResponse is the protocol-agnostic shape a ResponseFactory
// produces. It carries every partial-success case (not-found session,
// token outcomes, proxy IOU, remaining accesses of a destroyed session)
// without committing to any wire format — wire encoding is out of scope
// here, so the fields below are the boundary a wire encoder would read
// from.
type ServiceAccessResponse struct {
	Succeeded              bool
	PrincipalID            string
	Attributes             map[string][]string
	AccessID               string
	ProxyGrantingTicketIOU string
	TokenOutcome           TokenOutcome
	DelegationFailure      *AuthenticationResponse
	RemainingAccesses      []AccessSummary
	AuthResponse           *AuthenticationResponse
	Error                  error
}

// AccessSummary is a read-only, copyable snapshot of an Access — reported
// back to callers (e.g. the set of accesses torn down by a force-reauth
// principal switch) without handing out the live, mutex-guarded Access
// itself.
type AccessSummary struct {
	ID                 string
	ResourceIdentifier string
	Used               bool
}

// Summarize snapshots an Access's externally-visible state.
func (a *Access) Summarize() AccessSummary {
	return AccessSummary{
		ID:                 a.GetID(),
		ResourceIdentifier: a.GetResourceIdentifier(),
		Used:               a.IsUsed(),
	}
}

// ServiceAccessResponseFactory is consumed by the orchestrator to build a
// protocol-shaped response object for either a raw request (error paths)
// or a (session, access, ...) tuple (success and partial-success paths).
// A language with method overloading would give this several
// partial-success constructors; this core collapses those into the two
// methods below plus the ServiceAccessResponse struct, since Go has no
// overloading.
type ServiceAccessResponseFactory interface {
	Name() string
	SupportsRequest(req TokenServiceAccessRequest) bool
	SupportsAccess(a *Access) bool
	ForRequestError(req TokenServiceAccessRequest, outcome TokenOutcome, err error) ServiceAccessResponse
	ForAccess(s *Session, a *Access, outcome TokenOutcome, delegationFailure *AuthenticationResponse) ServiceAccessResponse
}

// ResponseFactoryRegistry is an ordered list of factories; the first match
// wins. No match is a programmer error (ErrConfigurationError).
type ResponseFactoryRegistry struct {
	factories []ServiceAccessResponseFactory
}

func NewResponseFactoryRegistry(factories ...ServiceAccessResponseFactory) *ResponseFactoryRegistry {
	return &ResponseFactoryRegistry{factories: factories}
}

func (r *ResponseFactoryRegistry) forRequest(req TokenServiceAccessRequest) ServiceAccessResponseFactory {
	for _, f := range r.factories {
		if f.SupportsRequest(req) {
			return f
		}
	}
	return nil
}

func (r *ResponseFactoryRegistry) forAccess(a *Access) ServiceAccessResponseFactory {
	for _, f := range r.factories {
		if f.SupportsAccess(a) {
			return f
		}
	}
	panic(&ErrConfigurationError{Reason: "no ServiceAccessResponseFactory supports this access"})
}

// cas1Factory is the plain CAS1-style factory: success carries only the
// principal id, failure carries a TokenOutcome and nothing else. No proxy
// support.
type cas1Factory struct{}

func NewCAS1Factory() ServiceAccessResponseFactory { return cas1Factory{} }

func (cas1Factory) Name() string { return "CAS1" }

func (cas1Factory) SupportsRequest(req TokenServiceAccessRequest) bool {
	return len(req.Credentials) == 0
}

func (cas1Factory) SupportsAccess(a *Access) bool {
	return true
}

func (cas1Factory) ForRequestError(req TokenServiceAccessRequest, outcome TokenOutcome, err error) ServiceAccessResponse {
	return ServiceAccessResponse{Succeeded: false, TokenOutcome: outcome, Error: err}
}

func (cas1Factory) ForAccess(s *Session, a *Access, outcome TokenOutcome, delegationFailure *AuthenticationResponse) ServiceAccessResponse {
	resp := ServiceAccessResponse{
		Succeeded:         outcome == TokenOK,
		TokenOutcome:      outcome,
		DelegationFailure: delegationFailure,
	}
	if s != nil {
		resp.PrincipalID = s.PrincipalID()
	}
	if a != nil {
		resp.AccessID = a.GetID()
	}
	return resp
}

// cas2Factory is the CAS2-style factory: success carries the principal's
// attributes. It supports delegation requests (credentials present); the
// proxy-granting-ticket IOU of a successful delegation is added to the
// response by the orchestrator, not by the factory.
type cas2Factory struct{}

func NewCAS2Factory() ServiceAccessResponseFactory { return cas2Factory{} }

func (cas2Factory) Name() string { return "CAS2" }

func (cas2Factory) SupportsRequest(req TokenServiceAccessRequest) bool {
	return len(req.Credentials) > 0
}

func (cas2Factory) SupportsAccess(a *Access) bool {
	return true
}

func (cas2Factory) ForRequestError(req TokenServiceAccessRequest, outcome TokenOutcome, err error) ServiceAccessResponse {
	return ServiceAccessResponse{Succeeded: false, TokenOutcome: outcome, Error: err}
}

func (cas2Factory) ForAccess(s *Session, a *Access, outcome TokenOutcome, delegationFailure *AuthenticationResponse) ServiceAccessResponse {
	resp := ServiceAccessResponse{
		Succeeded:         outcome == TokenOK,
		TokenOutcome:      outcome,
		DelegationFailure: delegationFailure,
	}
	if s != nil {
		resp.PrincipalID = s.PrincipalID()
		resp.Attributes = map[string][]string{}
		if auths := s.Authentications(); len(auths) > 0 {
			for k, v := range auths[0].Principal.Attributes {
				resp.Attributes[k] = v
			}
		}
	}
	if a != nil {
		resp.AccessID = a.GetID()
	}
	return resp
}
