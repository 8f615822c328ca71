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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	account = "123456789012"
	region  = "us-east-1"
)

var identity = domain.RegistryIdentity{AccountID: account, Region: region}

func tagRef(repository, tag string) domain.ImageReference {
	return domain.ImageReference{AccountID: account, Region: region, Repository: repository, Tag: tag}
}

func digestRef(repository, digest string) domain.ImageReference {
	return domain.ImageReference{AccountID: account, Region: region, Repository: repository, Digest: digest}
}

func record(kind domain.SourceKind, target string, ref domain.ImageReference) domain.UsageRecord {
	return domain.UsageRecord{Kind: kind, Target: target, Reference: ref}
}

func snapshot() ports.CatalogRepository {
	c := repositories.NewMemoryCatalog()
	c.StoreRepository("app", false)
	c.StoreRepository("team/api", false)
	c.StoreRepository("exclude/foo", true)
	c.StoreImages("app", []domain.Image{
		image("app", "sha256:1", daysAgo(90), "v1"),
		image("app", "sha256:2", daysAgo(60), "latest"),
	})
	c.StoreImages("team/api", []domain.Image{
		image("team/api", "sha256:3", daysAgo(90), "v3"),
	})
	return c
}

func TestUsageAggregator_Aggregate(t *testing.T) {
	connector := adapters.NewMockConnector().
		WithProbes("prod",
			adapters.NewMockProbe(domain.Service, record(domain.Service, "prod", tagRef("app", "v1"))),
			adapters.NewMockProbe(domain.ComputeFunction, record(domain.ComputeFunction, "prod", digestRef("team/api", "sha256:3"))),
			adapters.NewMockProbe(domain.DefinitionRevision,
				// other account
				record(domain.DefinitionRevision, "prod", domain.ImageReference{AccountID: "999999999999", Region: region, Repository: "app", Tag: "latest"}),
				// excluded repository
				record(domain.DefinitionRevision, "prod", tagRef("exclude/foo", "v1")),
				// digest already gone
				record(domain.DefinitionRevision, "prod", digestRef("app", "sha256:9")),
			),
		)
	a := NewUsageAggregator(connector, 2, time.Second)
	usage, warnings, err := a.Aggregate(context.Background(), []domain.ScanTarget{{Name: "prod"}}, snapshot(), identity)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []domain.ImageID{
		{Repository: "app", Digest: "sha256:1"},
		{Repository: "team/api", Digest: "sha256:3"},
	}, usage.IDs())
	assert.Empty(t, usage.UnknownScopes())
}

func TestUsageAggregator_FailClosed(t *testing.T) {
	tests := []struct {
		name        string
		connector   *adapters.MockConnector
		targets     []domain.ScanTarget
		wantKind    string
		wantUnknown []string
		wantKnown   []string
		wantErr     bool
	}{
		{
			name: "probe failure marks the target scope unknown",
			connector: adapters.NewMockConnector().
				WithProbes("prod", adapters.NewMockProbe(domain.Service).Failing(domain.ErrMockError)).
				WithProbes("dev", adapters.NewMockProbe(domain.Service)),
			targets: []domain.ScanTarget{
				{Name: "prod", Repositories: []string{"team/*"}},
				{Name: "dev"},
			},
			wantKind:    domain.WarningProbe,
			wantUnknown: []string{"team/api"},
			wantKnown:   []string{"app"},
		},
		{
			name:        "probe timeout",
			connector:   adapters.NewMockConnector().WithProbes("prod", adapters.NewMockProbe(domain.Service).Slow(time.Second)),
			targets:     []domain.ScanTarget{{Name: "prod"}},
			wantKind:    domain.WarningTimeout,
			wantUnknown: []string{"app", "team/api"},
		},
		{
			name:        "optional target authentication failure",
			connector:   adapters.NewMockConnector().WithAuthFailure("prod", errors.New("expired token")),
			targets:     []domain.ScanTarget{{Name: "prod"}},
			wantKind:    domain.WarningAuthentication,
			wantUnknown: []string{"app", "team/api"},
		},
		{
			name:      "required target authentication failure",
			connector: adapters.NewMockConnector().WithAuthFailure("prod", errors.New("expired token")),
			targets:   []domain.ScanTarget{{Name: "prod", Required: true}},
			wantErr:   true,
		},
		{
			name: "dangling tag protects its repository",
			connector: adapters.NewMockConnector().
				WithProbes("prod", adapters.NewMockProbe(domain.Service, record(domain.Service, "prod", tagRef("team/api", "gone")))),
			targets:     []domain.ScanTarget{{Name: "prod"}},
			wantKind:    domain.WarningDanglingReference,
			wantUnknown: []string{"team/api"},
			wantKnown:   []string{"app"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewUsageAggregator(tt.connector, 4, 50*time.Millisecond)
			usage, warnings, err := a.Aggregate(context.Background(), tt.targets, snapshot(), identity)
			if tt.wantErr {
				var authErr *domain.AuthenticationError
				assert.ErrorAs(t, err, &authErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, warnings, 1)
			assert.Equal(t, tt.wantKind, warnings[0].Kind)
			for _, r := range tt.wantUnknown {
				assert.True(t, usage.IsUnknown(r), r)
			}
			for _, r := range tt.wantKnown {
				assert.False(t, usage.IsUnknown(r), r)
			}
		})
	}
}

func TestUsageAggregator_Cancelled(t *testing.T) {
	connector := adapters.NewMockConnector().
		WithProbes("prod", adapters.NewMockProbe(domain.Service, record(domain.Service, "prod", tagRef("app", "v1"))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewUsageAggregator(connector, 1, time.Second)
	usage, warnings, err := a.Aggregate(ctx, []domain.ScanTarget{{Name: "prod"}}, snapshot(), identity)
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
	assert.True(t, usage.IsUnknown("app"))
}

func TestUsageAggregator_CancelledWhileListing(t *testing.T) {
	connector := adapters.NewMockConnector().
		WithProbes("prod", adapters.NewMockProbe(domain.Service, record(domain.Service, "prod", tagRef("app", "v1"))).Slow(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)
	a := NewUsageAggregator(connector, 1, time.Second)
	usage, warnings, err := a.Aggregate(ctx, []domain.ScanTarget{{Name: "prod"}}, snapshot(), identity)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.False(t, usage.IsUnknown("app"))
	assert.True(t, usage.Contains(domain.ImageID{Repository: "app", Digest: "sha256:1"}))
}

func TestUsageAggregator_Deterministic(t *testing.T) {
	connector := adapters.NewMockConnector().
		WithProbes("a", adapters.NewMockProbe(domain.Service).Failing(errors.New("a failed"))).
		WithProbes("b", adapters.NewMockProbe(domain.ComputeFunction).Failing(errors.New("b failed")))
	targets := []domain.ScanTarget{{Name: "b"}, {Name: "a"}}
	a := NewUsageAggregator(connector, 4, time.Second)
	_, first, err := a.Aggregate(context.Background(), targets, snapshot(), identity)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, again, err := a.Aggregate(context.Background(), targets, snapshot(), identity)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "a", first[0].Target)
}

func TestUsageAggregator_InvalidScope(t *testing.T) {
	a := NewUsageAggregator(adapters.NewMockConnector(), 1, time.Second)
	_, _, err := a.Aggregate(context.Background(), []domain.ScanTarget{{Name: "prod", Repositories: []string{"["}}}, snapshot(), identity)
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}
