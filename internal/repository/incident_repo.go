package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"scholarchat-backend/internal/models"
)

// execer is the subset of *pgxpool.Pool the repo needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type IncidentRepo struct {
	pool execer
}

func NewIncidentRepo(pool execer) *IncidentRepo {
	return &IncidentRepo{pool: pool}
}

// Record stores one flagged verdict. A zero CreatedAt is stamped with the
// current time.
func (r *IncidentRepo) Record(ctx context.Context, inc models.ModerationIncident) error {
	categories := inc.Categories
	if categories == nil {
		categories = []string{}
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now()
	}

	query := `INSERT INTO moderation_incidents (request_id, stage, action, categories, excerpt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.pool.Exec(ctx, query,
		inc.RequestID, inc.Stage, inc.Action, categories, inc.Excerpt, inc.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert moderation incident: %w", err)
	}
	return nil
}
