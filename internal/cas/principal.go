package cas

import "time"

// Principal is the authenticated identity a Session is built around. It is
// immutable once minted by the AuthenticationManager.
type Principal struct {
	ID         string
	Attributes map[string][]string
}

// Authentication records one successful credential resolution. A Session
// accumulates these across re-authentications (force-reauth, delegation);
// the slice is append-only.
type Authentication struct {
	Principal   Principal
	Instant     time.Time
	Attributes  map[string][]string
	Method      string
}
