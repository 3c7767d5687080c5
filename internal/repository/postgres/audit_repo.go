// internal/repository/postgres/audit_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"accesscore-service/internal/domain/authz"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLogRepository is the durable, authoritative audit trail. Rows are
// append-only; retention is an operational concern outside this service.
type AuditLogRepository struct {
	db *pgxpool.Pool
}

func NewAuditLogRepository(db *pgxpool.Pool) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Insert appends one decision record.
func (r *AuditLogRepository) Insert(ctx context.Context, entry *authz.LogEntry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal audit context: %w", err)
	}

	query := `
		INSERT INTO authz_audit_log
			(subject_id, resource_id, resource_type, action, allow, reason,
			 context, occurred_at, correlation_id, session_id, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.Exec(ctx, query,
		entry.SubjectID, entry.ResourceID, entry.ResourceType, entry.Action,
		entry.Allow, entry.Reason, contextJSON, entry.Timestamp,
		entry.CorrelationID, entry.SessionID, entry.IP, entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// List returns a filtered page of entries, most recent first. Timestamps
// come back at full stored precision.
func (r *AuditLogRepository) List(ctx context.Context, filter authz.HistoryFilter) ([]*authz.LogEntry, error) {
	query := `
		SELECT subject_id, resource_id, resource_type, action, allow, reason,
		       context, occurred_at, correlation_id, session_id, ip, user_agent
		FROM authz_audit_log
		WHERE 1=1
	`

	args := []interface{}{}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		query += fmt.Sprintf(" AND subject_id = $%d", len(args))
	}
	if filter.ResourceID != "" {
		args = append(args, filter.ResourceID)
		query += fmt.Sprintf(" AND resource_id = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*authz.LogEntry{}
	for rows.Next() {
		var entry authz.LogEntry
		var contextJSON []byte
		if err := rows.Scan(
			&entry.SubjectID, &entry.ResourceID, &entry.ResourceType, &entry.Action,
			&entry.Allow, &entry.Reason, &contextJSON, &entry.Timestamp,
			&entry.CorrelationID, &entry.SessionID, &entry.IP, &entry.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit context: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}

	return entries, nil
}
