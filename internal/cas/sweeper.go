package cas

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"
)

// Sweeper periodically scans the session store for expired sessions and
// tears them down, so a session nobody ever validates again still gets
// garbage collected instead of sitting in storage forever.
type Sweeper struct {
	cas      *CentralAuthenticationService
	store    SessionStorage
	policy   ExpirationPolicy
	interval time.Duration
	stop     chan struct{}
}

func NewSweeper(cas *CentralAuthenticationService, store SessionStorage, policy ExpirationPolicy, interval time.Duration) *Sweeper {
	return &Sweeper{cas: cas, store: store, policy: policy, interval: interval, stop: make(chan struct{})}
}

// Start runs the sweep loop on a background goroutine via
// threading.GoSafe, the same panic-isolated goroutine launcher go-zero's
// own services use for long-running background work.
func (sw *Sweeper) Start() {
	threading.GoSafe(func() {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sw.sweepOnce(context.Background())
			case <-sw.stop:
				return
			}
		}
	})
}

// Stop signals the sweep loop to exit; it does not block until it has.
func (sw *Sweeper) Stop() {
	close(sw.stop)
}

func (sw *Sweeper) sweepOnce(ctx context.Context) {
	ids, err := sw.store.AllSessionIDs(ctx)
	if err != nil {
		logx.Errorf("sweeper: list session ids: %v", err)
		return
	}

	swept := 0
	for _, id := range ids {
		session, err := sw.store.FindSessionBySessionID(ctx, id)
		if err != nil {
			logx.Errorf("sweeper: find session %s: %v", id, err)
			continue
		}
		if session == nil || session.IsValid(sw.policy) {
			continue
		}
		if _, err := sw.cas.LogoutBySessionID(ctx, id); err != nil {
			logx.Errorf("sweeper: destroy expired session %s: %v", id, err)
			continue
		}
		swept++
	}
	if swept > 0 {
		logx.Infof("sweeper: expired %d session(s)", swept)
	}
}
