package cas

import (
	"context"
	"regexp"
)

// ServicesManager decides whether a target service is permitted to use
// the authority. Unmatched services cause ErrUnauthorizedService at
// grantAccess time.
type ServicesManager interface {
	MatchesExistingService(ctx context.Context, req ServiceAccessRequest) (bool, error)
}

// RegisteredService is one entry in the services registry — the
// postgres-backed implementation persists rows of this shape (see
// internal/cas/store/postgres), but ServicesManager itself treats the
// registry as a black box; how entries get there is out of scope here.
type RegisteredService struct {
	ID           string
	Pattern      string
	Enabled      bool
	ProxyAllowed bool
}

// StaticServicesManager matches against an in-memory list of compiled
// regex patterns. Used directly in tests and as the in-process cache in
// front of the postgres-backed registry.
type StaticServicesManager struct {
	services []compiledService
}

type compiledService struct {
	svc compiledServiceRegex
	reg RegisteredService
}

type compiledServiceRegex interface {
	MatchString(string) bool
}

// NewStaticServicesManager compiles each registered service's Pattern as a
// regular expression. A service with an invalid pattern is skipped.
func NewStaticServicesManager(services []RegisteredService) *StaticServicesManager {
	m := &StaticServicesManager{}
	for _, svc := range services {
		if !svc.Enabled {
			continue
		}
		re, err := regexp.Compile(svc.Pattern)
		if err != nil {
			continue
		}
		m.services = append(m.services, compiledService{svc: re, reg: svc})
	}
	return m
}

func (m *StaticServicesManager) MatchesExistingService(_ context.Context, req ServiceAccessRequest) (bool, error) {
	for _, svc := range m.services {
		if svc.svc.MatchString(req.ServiceID) {
			if req.ProxiedRequest && !svc.reg.ProxyAllowed {
				continue
			}
			return true, nil
		}
	}
	return false, nil
}
