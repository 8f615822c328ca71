package services

import (
	"context"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
)

// MockCleanerService returns a fixed plan, or domain.ErrMockError when not happy
type MockCleanerService struct {
	happy bool
	plan  domain.Plan
}

var _ ports.CleanerService = (*MockCleanerService)(nil)

func NewMockCleanerService(happy bool, entries []domain.PlanEntry) *MockCleanerService {
	return &MockCleanerService{happy: happy, plan: domain.NewPlan("mock", entries, nil)}
}

func (m MockCleanerService) Plan(context.Context) (domain.Plan, error) {
	if m.happy {
		return m.plan, nil
	}
	return domain.Plan{}, domain.ErrMockError
}

func (m MockCleanerService) Apply(_ context.Context, plan domain.Plan) ([]domain.DeletionResult, error) {
	if !m.happy {
		return nil, domain.ErrMockError
	}
	if !plan.Built() {
		return nil, domain.ErrPlanNotBuilt
	}
	results := make([]domain.DeletionResult, len(plan.Entries))
	for i, e := range plan.Entries {
		outcome := domain.OutcomeSkipped
		if e.Decision() == domain.Delete {
			outcome = domain.OutcomeDeleted
		}
		results[i] = domain.DeletionResult{ID: e.Image.ID, Outcome: outcome}
	}
	return results, nil
}

func (m MockCleanerService) Report(_ context.Context, title string, plan domain.Plan, results []domain.DeletionResult) domain.Summary {
	return NewSummary(title, plan, results, "mock")
}
