package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// TransitionLog is one accepted lifecycle move.
type TransitionLog struct {
	ID      int64
	Kind    string
	RefID   string
	ActorID int64
	Action  string
	From    string
	To      string
	Note    string
	At      time.Time
}

// HistoryPort receives audit and lifecycle history from services once the
// change has committed. Services discard the returned error; a failed write
// never undoes the change and is only counted by the instrumented port.
type HistoryPort interface {
	RecordAudit(ctx context.Context, log AuditLog) error
	RecordTransition(ctx context.Context, log TransitionLog) error
}

// HistoryStore persists audit logs and transition history in PostgreSQL.
type HistoryStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHistoryStore constructs HistoryStore.
func NewHistoryStore(pool *pgxpool.Pool, logger *slog.Logger) *HistoryStore {
	return &HistoryStore{pool: pool, logger: logger}
}

// RecordAudit persists the log entry.
func (s *HistoryStore) RecordAudit(ctx context.Context, log AuditLog) error {
	if s == nil {
		return errors.New("history store not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, nullTime(log.At))
	return err
}

// RecordTransition writes a lifecycle transition.
func (s *HistoryStore) RecordTransition(ctx context.Context, log TransitionLog) error {
	if s == nil {
		return errors.New("history store not initialised")
	}
	if log.Kind == "" || log.RefID == "" {
		return errors.New("transition kind and ref required")
	}
	if log.Action == "" || log.To == "" {
		return errors.New("transition action and target required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO lifecycle_transitions (kind, ref_id, actor_id, action, from_state, to_state, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`, log.Kind, log.RefID, log.ActorID, log.Action, log.From, log.To, log.Note, nullTime(log.At))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("record transition", slog.String("kind", log.Kind), slog.String("ref", log.RefID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

// ListTransitions returns the history of one document, oldest first.
func (s *HistoryStore) ListTransitions(ctx context.Context, kind, ref string) ([]TransitionLog, error) {
	if s == nil {
		return nil, errors.New("history store not initialised")
	}
	rows, err := s.pool.Query(ctx, `SELECT id, kind, ref_id, actor_id, action, from_state, to_state, note, at
FROM lifecycle_transitions WHERE kind=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, kind, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []TransitionLog
	for rows.Next() {
		var l TransitionLog
		if err := rows.Scan(&l.ID, &l.Kind, &l.RefID, &l.ActorID, &l.Action, &l.From, &l.To, &l.Note, &l.At); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
