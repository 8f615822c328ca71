package v1

import (
	"bytes"
	"testing"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() domain.Plan {
	pushed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return domain.NewPlan("my-registry", []domain.PlanEntry{
		{
			Image:   domain.Image{ID: domain.ImageID{Repository: "app", Digest: digestA}, Tags: []string{"v2", "v1"}, PushedAt: pushed},
			Verdict: domain.DeletedBy(domain.FilterRef{Index: 0, Pattern: "*"}),
		},
		{
			Image:   domain.Image{ID: domain.ImageID{Repository: "app", Digest: digestB}, PushedAt: pushed},
			Verdict: domain.Kept(domain.ReasonInUse),
		},
	}, []domain.Warning{{Target: "prod", Kind: domain.WarningProbe, Source: "service", Message: "access denied"}})
}

func TestRenderPlan(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPlan(&buf, testPlan()))
	out := buf.String()
	for _, want := range []string{"REPOSITORY", "sha256:be178c0543eb", "v1,v2", "2024-03-01", "delete", "filter-match", "#0 *", "in-use"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderResults(t *testing.T) {
	var buf bytes.Buffer
	results := []domain.DeletionResult{
		{ID: domain.ImageID{Repository: "app", Digest: digestA}, Outcome: domain.OutcomeDeleted, AlreadyAbsent: true},
		{ID: domain.ImageID{Repository: "app", Digest: digestB}, Outcome: domain.OutcomeSkipped},
	}
	require.NoError(t, RenderResults(&buf, testPlan(), results))
	assert.Contains(t, buf.String(), "deleted (already absent)")
	assert.NotContains(t, buf.String(), "sha256:f2269e73124d")
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	s := testSummary()
	s.Warnings = testPlan().Warnings
	require.NoError(t, RenderSummary(&buf, s))
	out := buf.String()
	for _, want := range []string{
		"Delete Complete: my-registry",
		"images: 3, keep: 1, delete: 2",
		"in-use: 1",
		"deleted: 1, failed: 1, skipped: 1",
		"Total",
		"failed: app@sha256:2: boom",
		"warning: [prod/service] access denied",
	} {
		assert.Contains(t, out, want)
	}
}

func TestWritePlanJSON(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, WritePlanJSON(&first, testPlan()))
	require.NoError(t, WritePlanJSON(&second, testPlan()))
	assert.Equal(t, first.String(), second.String())
	assert.Contains(t, first.String(), `"reason": "filter-match"`)
}
