package repository

import (
	"context"
	"fmt"

	"github.com/dogevents/platform/internal/domain"
)

type auditRepo struct{}

// NewAuditRepository returns a pgx-backed AuditRepository.
func NewAuditRepository() AuditRepository {
	return &auditRepo{}
}

func (r *auditRepo) Append(ctx context.Context, db DBTX, entry domain.AuditEntry) error {
	_, err := db.Exec(ctx, `
		INSERT INTO audit_log (audit_key, message, created_by, created_at)
		VALUES ($1, $2, $3, $4)`,
		entry.AuditKey, entry.Message, entry.User, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
