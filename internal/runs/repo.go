package runs

import "context"

// Repo defines persistence operations for workflow runs.
type Repo interface {
	Create(ctx context.Context, run Run) error
	Update(ctx context.Context, run Run) error
	GetByID(ctx context.Context, runID string) (Run, error)
	GetLatestByListID(ctx context.Context, listID, analysisID string) (Run, error)
	List(ctx context.Context, limit, offset int) ([]Run, error)
}
