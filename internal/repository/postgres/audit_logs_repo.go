package postgres

import (
	"context"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

func (s *Store) CreateAuditLog(ctx context.Context, l models.AuditLog) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO audit_logs(entity_type, entity_id, action, details) VALUES($1,$2,$3,$4)`,
		l.EntityType, l.EntityID, l.Action, l.Details,
	)
	return mapErr(err)
}
