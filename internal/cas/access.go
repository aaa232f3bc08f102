package cas

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// UsagePolicyKind tags the variant of Access.UsagePolicy. A tagged
// variant stands in for what a CAS1/CAS2/SAML Access hierarchy would do
// with polymorphic dispatch: Validate's switch does the work virtual
// dispatch would otherwise do.
type UsagePolicyKind int

const (
	// SelfValidating accesses never consume state on validate; used for
	// ticket kinds that are inherently safe to check repeatedly.
	SelfValidating UsagePolicyKind = iota
	// BoundedUses accesses may be validated N times before TokenUsed.
	BoundedUses
	// LogoutOnly accesses never fail validate on their own account but
	// exist so a cascade-invalidate can notify the relying application.
	LogoutOnly
)

// UsagePolicy is the tagged variant. N is only meaningful when
// Kind == BoundedUses.
type UsagePolicy struct {
	Kind UsagePolicyKind
	N    int
}

// SelfValidatingPolicy never consumes state.
func SelfValidatingPolicy() UsagePolicy { return UsagePolicy{Kind: SelfValidating} }

// BoundedUsesPolicy allows exactly n validations before TokenUsed.
func BoundedUsesPolicy(n int) UsagePolicy { return UsagePolicy{Kind: BoundedUses, N: n} }

// LogoutOnlyPolicy never fails validate, but is still invalidated/notified
// on session teardown.
func LogoutOnlyPolicy() UsagePolicy { return UsagePolicy{Kind: LogoutOnly} }

// RelyingPartyNotifier performs the best-effort out-of-band notification an
// Access issues on invalidate. Concrete implementations might POST to the
// service's logout endpoint; the core only depends on this interface.
type RelyingPartyNotifier interface {
	NotifyLogout(ctx context.Context, resourceIdentifier, accessID string) bool
}

// NoopNotifier never contacts the relying party; used where no sidecar is
// configured. Returns false (notification did not happen) every time.
type NoopNotifier struct{}

func (NoopNotifier) NotifyLogout(context.Context, string, string) bool { return false }

// Access is a resource-scoped, validatable capability belonging to a
// Session — a CAS service ticket or proxy ticket.
type Access struct {
	mu sync.Mutex

	id                   string
	resourceIdentifier   string
	owningSessionID      string
	used                 bool
	localSessionDestroyed bool
	requiresStorage      bool
	usagePolicy          UsagePolicy
	remaining            int
	createdAt            time.Time

	notifier RelyingPartyNotifier
}

// NewAccess constructs an Access in the ACTIVE, unused state.
func NewAccess(id, resourceIdentifier, owningSessionID string, policy UsagePolicy, requiresStorage bool, notifier RelyingPartyNotifier) *Access {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	a := &Access{
		id:                 id,
		resourceIdentifier: resourceIdentifier,
		owningSessionID:    owningSessionID,
		requiresStorage:    requiresStorage,
		usagePolicy:        policy,
		createdAt:          time.Now().UTC(),
		notifier:           notifier,
	}
	if policy.Kind == BoundedUses {
		a.remaining = policy.N
	}
	return a
}

func (a *Access) GetID() string                 { return a.id }
func (a *Access) GetResourceIdentifier() string { return a.resourceIdentifier }
func (a *Access) OwningSessionID() string       { return a.owningSessionID }
func (a *Access) RequiresStorage() bool         { return a.requiresStorage }

// RequiresClaim reports whether this access's usage policy needs the
// cross-process claim path (AccessIndex.ClaimUse) rather than relying on
// this process's own counter alone.
func (a *Access) RequiresClaim() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usagePolicy.Kind == BoundedUses
}

func (a *Access) IsUsed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

func (a *Access) IsLocalSessionDestroyed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.localSessionDestroyed
}

// Validate applies the usage policy's state transition for a validation
// attempt. It never looks at the owning session — the orchestrator is
// responsible for the SESSION_INVALIDATED check before calling this.
func (a *Access) Validate(TokenServiceAccessRequest) TokenOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.usagePolicy.Kind {
	case SelfValidating:
		return TokenOK
	case LogoutOnly:
		return TokenOK
	case BoundedUses:
		if a.used {
			return TokenUsed
		}
		a.remaining--
		if a.remaining <= 0 {
			a.used = true
		}
		return TokenOK
	default:
		return TokenOK
	}
}

// Invalidate performs the best-effort relying-party notification. It is
// not retried by the core; the boolean return is purely informational.
func (a *Access) Invalidate(ctx context.Context) bool {
	a.mu.Lock()
	id, resource := a.id, a.resourceIdentifier
	a.mu.Unlock()

	ok := a.notifier.NotifyLogout(ctx, resource, id)

	a.mu.Lock()
	a.localSessionDestroyed = ok
	a.mu.Unlock()

	if !ok {
		logx.WithContext(ctx).Infof("cas: relying party notification for access %s was not acknowledged", id)
	}
	return ok
}

// CreateDelegatedSession mints a new, unstored Session whose parent is
// this Access. The caller (the orchestrator) is responsible for
// persisting it via SessionStorage. Access has no notion of its owning
// session's validity, so this method trusts the caller to have already
// rejected an invalidated or expired session — it does not re-check.
func (a *Access) CreateDelegatedSession(authResp AuthenticationResponse, gen IDGenerator, longTerm bool) (*Session, error) {
	id, err := gen.NewID("PGT-")
	if err != nil {
		return nil, err
	}
	return newSession(id, &a.id, authResp.Authentications, longTerm), nil
}
