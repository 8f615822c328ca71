package ports

import (
	"context"

	"github.com/dysonhq/dyson/core/domain"
)

// CleanerService is the port implemented by the business component CleanerService
type CleanerService interface {
	Plan(ctx context.Context) (domain.Plan, error)
	Apply(ctx context.Context, plan domain.Plan) ([]domain.DeletionResult, error)
	// Report summarizes a run and hands the summary to every notifier.
	Report(ctx context.Context, title string, plan domain.Plan, results []domain.DeletionResult) domain.Summary
}
