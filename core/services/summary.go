package services

import (
	"sort"

	"github.com/dysonhq/dyson/core/domain"
)

const (
	TitlePlan  = "Plan Result"
	TitleApply = "Delete Complete"
)

// NewSummary counts plan entries by decision and reason. With results it also
// counts outcomes and collects failures, and per-repository figures reflect
// deleted images instead of deletion candidates.
func NewSummary(title string, plan domain.Plan, results []domain.DeletionResult, runID string) domain.Summary {
	s := domain.Summary{
		Title:      title,
		Registry:   plan.Registry,
		RunID:      runID,
		Entries:    len(plan.Entries),
		ByDecision: map[domain.Decision]int{},
		ByReason:   map[domain.Reason]int{},
		Applied:    results != nil,
		Warnings:   plan.Warnings,
	}
	for _, e := range plan.Entries {
		s.ByDecision[e.Decision()]++
		s.ByReason[e.Verdict.Reason()]++
	}

	counted := map[domain.ImageID]bool{}
	if s.Applied {
		for _, r := range results {
			switch r.Outcome {
			case domain.OutcomeDeleted:
				s.Deleted++
				counted[r.ID] = true
			case domain.OutcomeFailed:
				s.Failed++
				s.Failures = append(s.Failures, r)
			case domain.OutcomeSkipped:
				s.Skipped++
			}
		}
	}

	byRepository := map[string]*domain.RepositorySummary{}
	for _, e := range plan.Entries {
		if e.Decision() != domain.Delete {
			continue
		}
		if s.Applied && !counted[e.Image.ID] {
			continue
		}
		repository := e.Image.ID.Repository
		r, ok := byRepository[repository]
		if !ok {
			r = &domain.RepositorySummary{Repository: repository}
			byRepository[repository] = r
		}
		r.Images++
		r.Tags += len(e.Image.Tags)
	}
	for _, r := range byRepository {
		s.Repositories = append(s.Repositories, *r)
	}
	sort.Slice(s.Repositories, func(i, j int) bool {
		return s.Repositories[i].Repository < s.Repositories[j].Repository
	})
	return s
}
