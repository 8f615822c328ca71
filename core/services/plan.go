package services

import (
	"sort"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
)

// PlanBuilder turns a catalog snapshot and a usage set into a Plan
type PlanBuilder struct {
	engine *FilterEngine
}

func NewPlanBuilder(engine *FilterEngine) *PlanBuilder {
	return &PlanBuilder{engine: engine}
}

// Build evaluates every image of every non-excluded repository. Entries are
// ordered by repository name, then push time, then digest, so the same inputs
// always produce the same plan.
func (b *PlanBuilder) Build(registry string, catalog ports.CatalogRepository, usage domain.UsageSet, warnings []domain.Warning, now time.Time) domain.Plan {
	repositories := catalog.Repositories()
	sort.Strings(repositories)
	var entries []domain.PlanEntry
	for _, repository := range repositories {
		if b.engine.IsExcluded(repository) {
			continue
		}
		images := catalog.Images(repository)
		domain.SortImages(images)
		for _, image := range images {
			entries = append(entries, domain.PlanEntry{
				Image:   image,
				Verdict: b.engine.Evaluate(image, usage, now),
			})
		}
	}
	return domain.NewPlan(registry, entries, warnings)
}
