// Package postgres persists audit events for later querying.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"fleetops/pkg/domain"
	audit "fleetops/pkg/platform/audit"
)

// Store implements audit.Emitter over the audit_events table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Emit inserts the event. Events are immutable, so a replayed event with an
// existing ID is ignored.
func (s *Store) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.Severity == "" {
		event.Severity = audit.SeverityInfo
	}

	var detail any
	if len(event.Detail) > 0 {
		b, err := json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		detail = b
	}

	query := `
		INSERT INTO audit_events (
			id, category, action, severity, occurred_at, account_id, actor_id,
			reason, request_id, client_ip, user_agent, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		string(event.Action),
		string(event.Severity),
		event.Timestamp,
		nullableID(event.AccountID),
		nullableID(event.ActorID),
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
		detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByAccount returns the most recent events for an account, newest first.
func (s *Store) ListByAccount(ctx context.Context, accountID domain.AccountID, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, category, action, severity, occurred_at, account_id, actor_id,
		       reason, request_id, client_ip, user_agent, detail
		FROM audit_events
		WHERE account_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, int64(accountID), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                audit.Event
			category, action string
			severity         string
			account, actor   sql.NullInt64
			detail           []byte
		)
		if err := rows.Scan(&e.ID, &category, &action, &severity, &e.Timestamp, &account, &actor,
			&e.Reason, &e.RequestID, &e.ClientIP, &e.UserAgent, &detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.Action = audit.AuditEvent(action)
		e.Severity = audit.Severity(severity)
		e.AccountID = domain.AccountID(account.Int64)
		e.ActorID = domain.AccountID(actor.Int64)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableID(id domain.AccountID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: !id.IsZero()}
}
