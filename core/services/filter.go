package services

import (
	"fmt"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/hashicorp/go-multierror"
)

type compiledFilter struct {
	ref        domain.FilterRef
	pattern    domain.Pattern
	daysAfter  *int
	ignoreTags []domain.Pattern
}

// FilterEngine decides whether a single image is kept or deleted. Evaluate is a
// pure function of its arguments.
type FilterEngine struct {
	excludes []domain.Pattern
	filters  []compiledFilter
}

// NewFilterEngine compiles the registry excludes and filters, reporting every invalid pattern.
func NewFilterEngine(registry domain.Registry) (*FilterEngine, error) {
	var errs error
	excludes, err := domain.ParsePatterns(registry.Excludes)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("excludes: %w", err))
	}
	filters := make([]compiledFilter, 0, len(registry.Filters))
	for i, f := range registry.Filters {
		pattern, err := domain.ParsePattern(f.Pattern)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("filters[%d].pattern: %w", i, err))
			continue
		}
		if f.DaysAfter != nil && *f.DaysAfter < 0 {
			errs = multierror.Append(errs, fmt.Errorf("filters[%d].days_after: must not be negative", i))
			continue
		}
		ignore, err := domain.ParsePatterns(f.IgnoreTagPatterns)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("filters[%d].ignore_tag_patterns: %w", i, err))
			continue
		}
		filters = append(filters, compiledFilter{
			ref:        domain.FilterRef{Index: i, Pattern: f.Pattern},
			pattern:    pattern,
			daysAfter:  f.DaysAfter,
			ignoreTags: ignore,
		})
	}
	if errs != nil {
		return nil, &domain.ConfigurationError{Err: errs}
	}
	return &FilterEngine{excludes: excludes, filters: filters}, nil
}

// IsExcluded reports whether a repository matches any exclude pattern.
func (f *FilterEngine) IsExcluded(repository string) bool {
	return domain.MatchAny(f.excludes, repository)
}

// Evaluate applies, in order: excludes, usage, the first filter whose
// pattern matches the repository, and finally whether usage of the
// repository is known at all.
func (f *FilterEngine) Evaluate(image domain.Image, usage domain.UsageSet, now time.Time) domain.Verdict {
	repository := image.ID.Repository
	if f.IsExcluded(repository) {
		return domain.Kept(domain.ReasonExcludedRepository)
	}
	if usage.Contains(image.ID) {
		return domain.Kept(domain.ReasonInUse)
	}
	filter, ok := f.match(repository)
	if !ok {
		return domain.Kept(domain.ReasonNoMatchingFilter)
	}
	if filter.daysAfter != nil && TooRecent(image.PushedAt, now, *filter.daysAfter) {
		return domain.KeptBy(domain.ReasonTooRecent, filter.ref)
	}
	for _, tag := range image.Tags {
		if domain.MatchAny(filter.ignoreTags, tag) {
			return domain.KeptBy(domain.ReasonProtectedTag, filter.ref)
		}
	}
	if usage.IsUnknown(repository) {
		return domain.KeptBy(domain.ReasonUsageUnknown, filter.ref)
	}
	return domain.DeletedBy(filter.ref)
}

func (f *FilterEngine) match(repository string) (compiledFilter, bool) {
	for _, filter := range f.filters {
		if filter.pattern.Match(repository) {
			return filter, true
		}
	}
	return compiledFilter{}, false
}

// TooRecent reports whether an image pushed at pushedAt is younger than daysAfter days.
// An image exactly daysAfter days old is old enough.
func TooRecent(pushedAt, now time.Time, daysAfter int) bool {
	return now.Sub(pushedAt) < time.Duration(daysAfter)*24*time.Hour
}

