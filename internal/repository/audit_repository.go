package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/database"
)

// AuditRepository appends and reads immutable approval audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. Append is the only mutation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	entry.ID = uuid.New().String()

	query := `
		INSERT INTO approval_audit_log
		    (id, tenant_id, entity_type, entity_id,
		     step_id, action, performed_by, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8)
		RETURNING performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.EntityType,
		entry.EntityID,
		entry.StepID,
		entry.Action,
		entry.PerformedBy,
		metadataJSON,
	).Scan(&entry.PerformedAt)
}

// GetByEntity returns the audit trail for an entity ordered oldest-first.
func (r *AuditRepository) GetByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, tenant_id, entity_type, entity_id,
		       step_id, action, performed_by, performed_at, metadata
		FROM approval_audit_log
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, entityType, entityID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load audit trail")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.EntityType,
			&e.EntityID,
			&e.StepID,
			&e.Action,
			&e.PerformedBy,
			&e.PerformedAt,
			&metadataJSON,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan audit entry")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
