package cas

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"
)

// Operation names the four orchestrator methods Observer hooks bracket.
type Operation string

const (
	OpLogin       Operation = "login"
	OpLogout      Operation = "logout"
	OpValidate    Operation = "validate"
	OpGrantAccess Operation = "grantAccess"
)

// Observer is the audit/profiling cross-cut, modeled as explicit hooks
// invoked at the boundaries of the four orchestrator operations. Both
// hooks are best-effort; the orchestrator does not fail an operation
// because an observer errors.
type Observer interface {
	BeforeOperation(ctx context.Context, op Operation, sessionID, principalID string)
	AfterOperation(ctx context.Context, op Operation, sessionID, principalID string, succeeded bool)
}

// LoggingObserver wraps logx, the same logx.WithContext(ctx).Infof(...)
// call-site pattern used throughout domain/cache/cache.go's
// IsSwappableToken and loginLogic.go's cache failure logging.
type LoggingObserver struct{}

func (LoggingObserver) BeforeOperation(ctx context.Context, op Operation, sessionID, principalID string) {
	logx.WithContext(ctx).Infof("cas: %s starting session=%s principal=%s", op, sessionID, principalID)
}

func (LoggingObserver) AfterOperation(ctx context.Context, op Operation, sessionID, principalID string, succeeded bool) {
	logx.WithContext(ctx).Infof("cas: %s finished session=%s principal=%s succeeded=%v", op, sessionID, principalID, succeeded)
}

// ObserverChain invokes multiple observers in order; a panic in one
// observer does not prevent the remaining observers or the orchestrator
// operation itself from completing.
type ObserverChain []Observer

func (c ObserverChain) BeforeOperation(ctx context.Context, op Operation, sessionID, principalID string) {
	for _, o := range c {
		c.runBefore(ctx, o, op, sessionID, principalID)
	}
}

func (c ObserverChain) AfterOperation(ctx context.Context, op Operation, sessionID, principalID string, succeeded bool) {
	for _, o := range c {
		c.runAfter(ctx, o, op, sessionID, principalID, succeeded)
	}
}

func (c ObserverChain) runBefore(ctx context.Context, o Observer, op Operation, sessionID, principalID string) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithContext(ctx).Errorf("cas: observer panicked in BeforeOperation(%s): %v", op, r)
		}
	}()
	o.BeforeOperation(ctx, op, sessionID, principalID)
}

func (c ObserverChain) runAfter(ctx context.Context, o Observer, op Operation, sessionID, principalID string, succeeded bool) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithContext(ctx).Errorf("cas: observer panicked in AfterOperation(%s): %v", op, r)
		}
	}()
	o.AfterOperation(ctx, op, sessionID, principalID, succeeded)
}
