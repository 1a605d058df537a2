package storage

import (
	"context"
	"fmt"

	"github.com/link-wallet/link-wallet/pkg/types"
)

// AuditLogRepository handles audit log operations
type AuditLogRepository struct {
	store *Store
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(store *Store) *AuditLogRepository {
	return &AuditLogRepository{store: store}
}

// Create creates a new audit log entry
func (r *AuditLogRepository) Create(ctx context.Context, log *types.AuditLog) error {
	query := `
		INSERT INTO audit_logs (actor, action, resource_type, resource_id, tx_hash, detail, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.store.pool.QueryRow(ctx, query,
		log.Actor,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		log.TxHash,
		log.Detail,
		log.ClientIP,
		log.UserAgent,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

// ListByResource retrieves audit logs for a resource, newest first
func (r *AuditLogRepository) ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*types.AuditLog, error) {
	query := `
		SELECT id, actor, action, resource_type, resource_id, tx_hash, detail, client_ip, user_agent, created_at
		FROM audit_logs
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.store.pool.Query(ctx, query, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*types.AuditLog
	for rows.Next() {
		var log types.AuditLog
		if err := rows.Scan(
			&log.ID,
			&log.Actor,
			&log.Action,
			&log.ResourceType,
			&log.ResourceID,
			&log.TxHash,
			&log.Detail,
			&log.ClientIP,
			&log.UserAgent,
			&log.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit log rows error: %w", err)
	}

	return logs, nil
}
