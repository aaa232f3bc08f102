// Package postgres persists the two durable tables the CAS core relies on
// outside the in-process session tree: the services registry (backing
// cas.ServicesManager) and the audit log (backing cas.Observer). Grounded
// in shared/repository.BaseRepository and shared/models' sqlx db-tag
// conventions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/nordkirke/cas-authority/internal/cas"
)

// ServiceRow is the services-registry row shape.
type ServiceRow struct {
	ID           string    `db:"id"`
	Pattern      string    `db:"pattern"`
	Enabled      bool      `db:"enabled"`
	ProxyAllowed bool      `db:"proxy_allowed"`
	CreatedAt    time.Time `db:"created_at"`
}

// AuditRow is one row in the audit log written by AuditObserver.
type AuditRow struct {
	ID          string    `db:"id"`
	SessionID   string    `db:"session_id"`
	PrincipalID string    `db:"principal_id"`
	Operation   string    `db:"operation"`
	Outcome     string    `db:"outcome"`
	OccurredAt  time.Time `db:"occurred_at"`
}

const (
	selectEnabledServicesQuery = `
		SELECT id, pattern, enabled, proxy_allowed, created_at
		FROM services WHERE enabled = true`

	insertAuditEventQuery = `
		INSERT INTO audit_events (id, session_id, principal_id, operation, outcome, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

// ServiceRegistry loads RegisteredService rows from Postgres, the concrete
// backing store a cas.StaticServicesManager is built from.
type ServiceRegistry struct {
	db *sqlx.DB
}

func NewServiceRegistry(db *sqlx.DB) *ServiceRegistry {
	return &ServiceRegistry{db: db}
}

// LoadServices fetches every enabled registry row and adapts it to
// cas.RegisteredService, ready to feed cas.NewStaticServicesManager.
func (r *ServiceRegistry) LoadServices(ctx context.Context) ([]cas.RegisteredService, error) {
	var rows []ServiceRow
	if err := r.db.SelectContext(ctx, &rows, selectEnabledServicesQuery); err != nil {
		logx.WithContext(ctx).Errorf("postgres: load services: %v", err)
		return nil, fmt.Errorf("cas/store/postgres: load services: %w", err)
	}

	out := make([]cas.RegisteredService, 0, len(rows))
	for _, row := range rows {
		out = append(out, cas.RegisteredService{
			ID:           row.ID,
			Pattern:      row.Pattern,
			Enabled:      row.Enabled,
			ProxyAllowed: row.ProxyAllowed,
		})
	}
	return out, nil
}

// AuditSink appends audit rows; it never blocks a caller on a unique
// constraint failure beyond reporting the error, since the core treats
// audit as best-effort observation, not a correctness boundary.
type AuditSink struct {
	db *sqlx.DB
}

func NewAuditSink(db *sqlx.DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Record(ctx context.Context, row AuditRow) error {
	_, err := s.db.ExecContext(ctx, insertAuditEventQuery,
		row.ID, row.SessionID, row.PrincipalID, row.Operation, row.Outcome, row.OccurredAt)
	if err != nil && err != sql.ErrNoRows {
		logx.WithContext(ctx).Errorf("postgres: record audit event: %v", err)
		return fmt.Errorf("cas/store/postgres: record audit event: %w", err)
	}
	return nil
}

// AuditObserver adapts AuditSink to cas.Observer, writing one row per
// orchestrator operation boundary. It only records AfterOperation — a
// BeforeOperation row would always look identical to the matching After
// row minus the outcome, so it is skipped to keep the table meaningful.
type AuditObserver struct {
	sink *AuditSink
	ids  cas.IDGenerator
}

func NewAuditObserver(sink *AuditSink, ids cas.IDGenerator) *AuditObserver {
	return &AuditObserver{sink: sink, ids: ids}
}

func (o *AuditObserver) BeforeOperation(context.Context, cas.Operation, string, string) {}

func (o *AuditObserver) AfterOperation(ctx context.Context, op cas.Operation, sessionID, principalID string, succeeded bool) {
	id, err := o.ids.NewID("audit-")
	if err != nil {
		logx.WithContext(ctx).Errorf("postgres: mint audit id: %v", err)
		return
	}
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	_ = o.sink.Record(ctx, AuditRow{
		ID:          id,
		SessionID:   sessionID,
		PrincipalID: principalID,
		Operation:   string(op),
		Outcome:     outcome,
		OccurredAt:  time.Now().UTC(),
	})
}
