package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dysonhq/dyson/adapters"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/dysonhq/dyson/repositories"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func newCatalog() ports.CatalogRepository {
	return repositories.NewMemoryCatalog()
}

type fixture struct {
	registry  *adapters.MockRegistry
	connector *adapters.MockConnector
	notifier  *adapters.MockNotifier
	targets   []domain.ScanTarget
}

func scenarioFixture() fixture {
	return fixture{
		registry: adapters.NewMockRegistry(identity,
			image("app", "sha256:a", daysAgo(100), "latest"),
			image("app", "sha256:b", daysAgo(31)),
			image("app", "sha256:c", daysAgo(10)),
			image("app", "sha256:d", daysAgo(90), "v1"),
			image("exclude/foo", "sha256:e", daysAgo(365)),
		),
		connector: adapters.NewMockConnector().
			WithProbes("prod", adapters.NewMockProbe(domain.Service, record(domain.Service, "prod", tagRef("app", "v1")))),
		notifier: adapters.NewMockNotifier(true),
		targets:  []domain.ScanTarget{{Name: "prod", Profile: "profile2"}},
	}
}

func (f fixture) service(t *testing.T) *CleanerService {
	s, err := NewCleanerService(defaultRegistry(), f.targets, f.registry, f.registry, f.connector,
		[]ports.Notifier{f.notifier},
		CleanerOptions{
			Concurrency: 2,
			ScanTimeout: time.Second,
			Executor:    fastRetries(100),
			Clock:       testingclock.NewFakePassiveClock(now),
			NewCatalog:  newCatalog,
		})
	require.NoError(t, err)
	return s
}

func reasons(plan domain.Plan) map[string]domain.Reason {
	out := map[string]domain.Reason{}
	for _, e := range plan.Entries {
		out[e.Image.ID.Digest] = e.Verdict.Reason()
	}
	return out
}

func TestCleanerService_Plan(t *testing.T) {
	f := scenarioFixture()
	s := f.service(t)
	plan, err := s.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Reason{
		"sha256:a": domain.ReasonProtectedTag,
		"sha256:b": domain.ReasonFilterMatch,
		"sha256:c": domain.ReasonTooRecent,
		"sha256:d": domain.ReasonInUse,
	}, reasons(plan))
	assert.Empty(t, plan.Warnings)

	// planning never deletes anything
	assert.True(t, f.registry.Has(domain.ImageID{Repository: "app", Digest: "sha256:b"}))
	assert.Empty(t, f.registry.Batches)
}

func TestCleanerService_PlanIsIdempotent(t *testing.T) {
	s := scenarioFixture().service(t)
	first, err := s.Plan(context.Background())
	require.NoError(t, err)
	second, err := s.Plan(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(first, second, cmp.AllowUnexported(domain.Plan{}, domain.Verdict{})); diff != "" {
		t.Errorf("Plan() differs between runs (-first +second):\n%s", diff)
	}
}

func TestCleanerService_Apply(t *testing.T) {
	f := scenarioFixture()
	// present in the registry but not in the plan
	late := image("app", "sha256:late", daysAgo(400))
	s := f.service(t)
	plan, err := s.Plan(context.Background())
	require.NoError(t, err)
	f.registry.AddImage(late)

	results, err := s.Apply(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, results, len(plan.Entries))
	for i, r := range results {
		want := domain.OutcomeSkipped
		if plan.Entries[i].Decision() == domain.Delete {
			want = domain.OutcomeDeleted
		}
		assert.Equal(t, want, r.Outcome, r.ID.String())
	}
	assert.False(t, f.registry.Has(domain.ImageID{Repository: "app", Digest: "sha256:b"}))
	assert.True(t, f.registry.Has(late.ID))
	assert.True(t, f.registry.Has(domain.ImageID{Repository: "exclude/foo", Digest: "sha256:e"}))
}

func TestCleanerService_ProbeFailureKeepsEverything(t *testing.T) {
	f := scenarioFixture()
	f.connector = adapters.NewMockConnector().
		WithProbes("prod",
			adapters.NewMockProbe(domain.Service).Failing(errors.New("access denied")),
			adapters.NewMockProbe(domain.ComputeFunction))
	s := f.service(t)
	plan, err := s.Plan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Deletions())
	assert.Equal(t, domain.ReasonUsageUnknown, reasons(plan)["sha256:b"])
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, "prod", plan.Warnings[0].Target)
}

func TestCleanerService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		wantErr any
	}{
		{
			name: "catalog failure",
			setup: func(f *fixture) {
				f.registry.BreakCatalog(domain.ErrMockError)
			},
			wantErr: &domain.CatalogError{},
		},
		{
			name: "repository listing failure",
			setup: func(f *fixture) {
				f.registry.Break("app", domain.ErrMockError)
			},
			wantErr: &domain.CatalogError{},
		},
		{
			name: "required target authentication failure",
			setup: func(f *fixture) {
				f.targets[0].Required = true
				f.connector.WithAuthFailure("prod", errors.New("no credentials"))
			},
			wantErr: &domain.AuthenticationError{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := scenarioFixture()
			tt.setup(&f)
			_, err := f.service(t).Plan(context.Background())
			require.Error(t, err)
			switch want := tt.wantErr.(type) {
			case *domain.CatalogError:
				assert.ErrorAs(t, err, &want)
			case *domain.AuthenticationError:
				assert.ErrorAs(t, err, &want)
			}
		})
	}
}

func TestCleanerService_Report(t *testing.T) {
	tests := []struct {
		name  string
		happy bool
	}{
		{name: "delivered", happy: true},
		{name: "delivery failure is not fatal", happy: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := scenarioFixture()
			f.notifier = adapters.NewMockNotifier(tt.happy)
			s := f.service(t)
			plan, err := s.Plan(context.Background())
			require.NoError(t, err)
			summary := s.Report(context.Background(), TitlePlan, plan, nil)
			assert.Equal(t, TitlePlan, summary.Title)
			assert.Equal(t, 1, summary.ByDecision[domain.Delete])
			require.Len(t, f.notifier.Summaries(), 1)
			assert.Equal(t, summary.RunID, f.notifier.Summaries()[0].RunID)
		})
	}
}

func TestNewCleanerService_InvalidFilters(t *testing.T) {
	f := scenarioFixture()
	reg := defaultRegistry()
	reg.Filters = append(reg.Filters, domain.Filter{Pattern: "["})
	_, err := NewCleanerService(reg, nil, f.registry, f.registry, f.connector, nil, CleanerOptions{NewCatalog: newCatalog})
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}
