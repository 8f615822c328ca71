package services

import (
	"testing"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}

func intPtr(i int) *int {
	return &i
}

func defaultRegistry() domain.Registry {
	return domain.Registry{
		Name:     "my-registry",
		Profile:  "profile1",
		Excludes: []string{"exclude/*"},
		Filters: []domain.Filter{
			{Pattern: "*", DaysAfter: intPtr(30), IgnoreTagPatterns: []string{"latest"}},
		},
	}
}

func image(repository, digest string, pushed time.Time, tags ...string) domain.Image {
	return domain.Image{ID: domain.ImageID{Repository: repository, Digest: digest}, Tags: tags, PushedAt: pushed}
}

func TestFilterEngine_Evaluate(t *testing.T) {
	inUse := domain.NewUsageSet()
	inUse.Add(domain.ImageID{Repository: "app", Digest: "sha256:d"})
	tests := []struct {
		name       string
		image      domain.Image
		usage      domain.UsageSet
		want       domain.Reason
		wantFilter bool
	}{
		{
			name:       "scenario A: latest tag is protected",
			image:      image("app", "sha256:a", daysAgo(100), "latest"),
			want:       domain.ReasonProtectedTag,
			wantFilter: true,
		},
		{
			name:       "scenario B: old untagged image is deleted",
			image:      image("app", "sha256:b", daysAgo(31)),
			want:       domain.ReasonFilterMatch,
			wantFilter: true,
		},
		{
			name:       "scenario C: recent image is kept",
			image:      image("app", "sha256:c", daysAgo(10)),
			want:       domain.ReasonTooRecent,
			wantFilter: true,
		},
		{
			name:  "scenario D: in-use overrides age",
			image: image("app", "sha256:d", daysAgo(90)),
			usage: inUse,
			want:  domain.ReasonInUse,
		},
		{
			name:  "scenario E: excluded repository",
			image: image("exclude/foo", "sha256:e", daysAgo(365)),
			want:  domain.ReasonExcludedRepository,
		},
		{
			name:       "exactly days_after old is old enough",
			image:      image("app", "sha256:f", daysAgo(30)),
			want:       domain.ReasonFilterMatch,
			wantFilter: true,
		},
		{
			name:       "one second short of days_after is too recent",
			image:      image("app", "sha256:g", daysAgo(30).Add(time.Second)),
			want:       domain.ReasonTooRecent,
			wantFilter: true,
		},
		{
			name:       "non protected tag",
			image:      image("app", "sha256:h", daysAgo(31), "v1"),
			want:       domain.ReasonFilterMatch,
			wantFilter: true,
		},
	}
	engine, err := NewFilterEngine(defaultRegistry())
	tools.EnsureSetup(t, err == nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := engine.Evaluate(tt.image, tt.usage, now)
			assert.Equal(t, tt.want, v.Reason())
			_, ok := v.Filter()
			assert.Equal(t, tt.wantFilter, ok)
		})
	}
}

func TestFilterEngine_FirstMatchWins(t *testing.T) {
	engine, err := NewFilterEngine(domain.Registry{
		Filters: []domain.Filter{
			{Pattern: "team/*", DaysAfter: intPtr(365)},
			{Pattern: "*", DaysAfter: intPtr(1)},
		},
	})
	require.NoError(t, err)
	v := engine.Evaluate(image("team/api", "sha256:1", daysAgo(30)), domain.UsageSet{}, now)
	assert.Equal(t, domain.ReasonTooRecent, v.Reason())
	f, _ := v.Filter()
	assert.Equal(t, domain.FilterRef{Index: 0, Pattern: "team/*"}, f)

	v = engine.Evaluate(image("other", "sha256:1", daysAgo(30)), domain.UsageSet{}, now)
	assert.Equal(t, domain.ReasonFilterMatch, v.Reason())
	f, _ = v.Filter()
	assert.Equal(t, 1, f.Index)
}

func TestFilterEngine_NoFilters(t *testing.T) {
	engine, err := NewFilterEngine(domain.Registry{})
	require.NoError(t, err)
	v := engine.Evaluate(image("app", "sha256:1", daysAgo(1000)), domain.UsageSet{}, now)
	assert.Equal(t, domain.ReasonNoMatchingFilter, v.Reason())
	assert.Equal(t, domain.Keep, v.Decision())
}

func TestFilterEngine_NoAgeRequirement(t *testing.T) {
	engine, err := NewFilterEngine(domain.Registry{Filters: []domain.Filter{{Pattern: "tmp/*"}}})
	require.NoError(t, err)
	v := engine.Evaluate(image("tmp/x", "sha256:1", now), domain.UsageSet{}, now)
	assert.Equal(t, domain.ReasonFilterMatch, v.Reason())
}

func TestFilterEngine_UsageUnknown(t *testing.T) {
	engine, err := NewFilterEngine(defaultRegistry())
	require.NoError(t, err)
	usage := domain.NewUsageSet()
	patterns, err := domain.ParsePatterns([]string{"team/*"})
	require.NoError(t, err)
	usage.MarkUnknown(domain.UnknownScope{Target: "prod", Cause: domain.WarningProbe, Patterns: patterns})

	v := engine.Evaluate(image("team/api", "sha256:1", daysAgo(100)), usage, now)
	assert.Equal(t, domain.ReasonUsageUnknown, v.Reason())
	assert.Equal(t, domain.Keep, v.Decision())

	// rules that keep the image anyway take precedence
	v = engine.Evaluate(image("team/api", "sha256:2", daysAgo(1)), usage, now)
	assert.Equal(t, domain.ReasonTooRecent, v.Reason())

	v = engine.Evaluate(image("other", "sha256:3", daysAgo(100)), usage, now)
	assert.Equal(t, domain.ReasonFilterMatch, v.Reason())
}

func TestNewFilterEngine_Invalid(t *testing.T) {
	_, err := NewFilterEngine(domain.Registry{
		Excludes: []string{"["},
		Filters: []domain.Filter{
			{Pattern: "[a"},
			{Pattern: "*", DaysAfter: intPtr(-1)},
			{Pattern: "*", IgnoreTagPatterns: []string{"[b"}},
		},
	})
	require.Error(t, err)
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)
	for _, want := range []string{"excludes", "filters[0].pattern", "filters[1].days_after", "filters[2].ignore_tag_patterns"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestTooRecent(t *testing.T) {
	assert.True(t, TooRecent(daysAgo(0), now, 1))
	assert.False(t, TooRecent(daysAgo(1), now, 1))
	assert.False(t, TooRecent(daysAgo(0), now, 0))
}
