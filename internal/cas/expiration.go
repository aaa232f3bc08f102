package cas

import "time"

// ExpirationPolicy is a pure predicate over session state. Typical
// policies: hard TTL since creation, sliding TTL since last use, and
// distinct policies for ticket-granting tickets vs service tickets.
type ExpirationPolicy interface {
	IsExpired(s *Session) bool
}

// TTLPolicy expires a session a fixed duration after it was created,
// regardless of subsequent activity — the traditional CAS ticket-granting
// ticket "max timeout to live" policy.
type TTLPolicy struct {
	TTL time.Duration
}

func (p TTLPolicy) IsExpired(s *Session) bool {
	return time.Since(s.Created()) > p.TTL
}

// SlidingPolicy expires a session a fixed duration after its last use —
// the traditional CAS "idle timeout" policy.
type SlidingPolicy struct {
	Idle time.Duration
}

func (p SlidingPolicy) IsExpired(s *Session) bool {
	return time.Since(s.LastUsed()) > p.Idle
}

// RememberMePolicy selects between a long-term and a normal policy based
// on Session.longTerm: remember-me is a single boolean on the session
// that affects which ExpirationPolicy applies, not a distinct session type.
type RememberMePolicy struct {
	Normal   ExpirationPolicy
	LongTerm ExpirationPolicy
}

func (p RememberMePolicy) IsExpired(s *Session) bool {
	if s.LongTerm() {
		return p.LongTerm.IsExpired(s)
	}
	return p.Normal.IsExpired(s)
}

// Combined applies both a hard TTL and a sliding idle timeout, expiring
// whichever fires first — used for service/proxy-granting tickets that
// should not sit idle indefinitely even within their hard lifetime.
type Combined struct {
	Hard  TTLPolicy
	Idle  SlidingPolicy
}

func (p Combined) IsExpired(s *Session) bool {
	return p.Hard.IsExpired(s) || p.Idle.IsExpired(s)
}
