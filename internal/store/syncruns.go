package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	dbtypes "github.com/nitesh/news_aggregator/internal/db"
	"github.com/nitesh/news_aggregator/pkg/models"
)

func (p *PgStore) SaveSyncRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Errors == nil {
		run.Errors = dbtypes.StringSlice{}
	}
	_, err := p.db.NamedExecContext(ctx, `
INSERT INTO sync_runs (id, kind, status, started_at, finished_at, created, existing, discarded, calls, failed_calls, errors)
VALUES (:id, :kind, :status, :started_at, :finished_at, :created, :existing, :discarded, :calls, :failed_calls, :errors)`, run)
	if err != nil {
		return fmt.Errorf("insert sync run kind=%s: %w", run.Kind, err)
	}
	return nil
}

// ListSyncRuns pages through the journal, newest first.
func (p *PgStore) ListSyncRuns(ctx context.Context, f models.SyncRunFilter) (models.Page[models.SyncRun], error) {
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)

	where := sq.And{}
	if f.Kind != "" {
		where = append(where, sq.Eq{"kind": f.Kind})
	}
	total, offset, err := p.paginate(ctx, p.sb.Select("COUNT(*)").From("sync_runs").Where(where), f.Page, f.PageSize)
	if err != nil {
		return models.Page[models.SyncRun]{}, err
	}

	query, args, err := p.sb.
		Select("id", "kind", "status", "started_at", "finished_at", "created", "existing", "discarded", "calls", "failed_calls", "errors").
		From("sync_runs").
		Where(where).
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(f.PageSize)).
		Offset(offset).
		ToSql()
	if err != nil {
		return models.Page[models.SyncRun]{}, fmt.Errorf("build sync run list: %w", err)
	}
	rows := []models.SyncRun{}
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return models.Page[models.SyncRun]{}, fmt.Errorf("list sync runs: %w", err)
	}
	return models.NewPage(rows, total, f.Page, f.PageSize), nil
}
