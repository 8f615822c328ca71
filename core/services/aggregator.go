package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/dysonhq/dyson/internal/metrics"
	"github.com/eapache/go-resiliency/deadline"
	"github.com/gammazero/workerpool"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

type connectResult struct {
	target int
	probes []ports.UsageProbe
	err    error
}

type probeResult struct {
	target  int
	kind    domain.SourceKind
	records []domain.UsageRecord
	err     error
}

// UsageAggregator runs every usage probe of every scan target and merges the
// results into one UsageSet. Probes run on a bounded worker pool; merging is
// done by the caller goroutine once all tasks have reported.
type UsageAggregator struct {
	connector   ports.ScanTargetConnector
	concurrency int
	timeout     time.Duration
}

func NewUsageAggregator(connector ports.ScanTargetConnector, concurrency int, timeout time.Duration) *UsageAggregator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &UsageAggregator{
		connector:   connector,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// Aggregate returns the images referenced by any workload of any target. A
// target or probe that fails, times out or is cancelled leaves a warning and
// marks its repositories as unknown. Only the authentication failure of a
// required target is returned as an error.
func (a *UsageAggregator) Aggregate(ctx context.Context, targets []domain.ScanTarget, catalog ports.CatalogRepository, identity domain.RegistryIdentity) (domain.UsageSet, []domain.Warning, error) {
	ctx, span := otel.Tracer("").Start(ctx, "UsageAggregator.Aggregate")
	defer span.End()

	usage := domain.NewUsageSet()
	var warnings []domain.Warning

	scopes := make([][]domain.Pattern, len(targets))
	for i, target := range targets {
		patterns, err := domain.ParsePatterns(target.Scope())
		if err != nil {
			return usage, nil, &domain.ConfigurationError{Err: fmt.Errorf("scans[%d].repositories: %w", i, err)}
		}
		scopes[i] = patterns
	}

	// phase 1: one authenticated session per target
	connected := a.connect(ctx, targets)
	var tasks []probeTask
	for _, c := range connected {
		target := targets[c.target]
		if c.err != nil {
			authErr := &domain.AuthenticationError{Target: target.DisplayName(), Err: c.err}
			if target.Required {
				return usage, warnings, authErr
			}
			logger.L().Ctx(ctx).Warning("scan target unavailable, its repositories are kept",
				helpers.String("target", target.DisplayName()),
				helpers.Error(c.err))
			metrics.ProbeFailure("authentication")
			warnings = append(warnings, domain.Warning{
				Target:  target.DisplayName(),
				Kind:    domain.WarningAuthentication,
				Message: authErr.Error(),
			})
			usage.MarkUnknown(domain.UnknownScope{Target: target.DisplayName(), Cause: domain.WarningAuthentication, Patterns: scopes[c.target]})
			continue
		}
		for _, probe := range c.probes {
			tasks = append(tasks, probeTask{target: c.target, probe: probe})
		}
	}

	// phase 2: one task per (target, probe kind)
	results := a.probe(ctx, targets, tasks)

	// merge
	for _, r := range results {
		target := targets[r.target]
		if r.err != nil {
			kind := domain.WarningProbe
			if errors.Is(r.err, domain.ErrProbeTimedOut) {
				kind = domain.WarningTimeout
			}
			probeErr := &domain.ProbeError{Target: target.DisplayName(), Kind: r.kind, Err: r.err}
			logger.L().Ctx(ctx).Warning("usage probe failed, its repositories are kept",
				helpers.String("target", target.DisplayName()),
				helpers.String("kind", r.kind.String()),
				helpers.Error(r.err))
			metrics.ProbeFailure(r.kind.String())
			warnings = append(warnings, domain.Warning{
				Target:  target.DisplayName(),
				Kind:    kind,
				Source:  r.kind.String(),
				Message: probeErr.Error(),
			})
			usage.MarkUnknown(domain.UnknownScope{Target: target.DisplayName(), Cause: kind, Patterns: scopes[r.target]})
			continue
		}
		for _, record := range r.records {
			ref := record.Reference
			if !identity.Owns(ref) {
				continue
			}
			id, resolution := catalog.Resolve(ref)
			switch resolution {
			case ports.Resolved:
				usage.Add(id)
			case ports.Excluded:
				// excluded repositories are never deleted
			case ports.Absent:
				logger.L().Debug("reference to an image not in the registry",
					helpers.String("target", target.DisplayName()),
					helpers.String("reference", ref.String()))
			case ports.Dangling:
				logger.L().Ctx(ctx).Warning("unresolvable image reference, repository is kept",
					helpers.String("target", target.DisplayName()),
					helpers.String("reference", ref.String()))
				warnings = append(warnings, domain.Warning{
					Target:  target.DisplayName(),
					Kind:    domain.WarningDanglingReference,
					Source:  record.Kind.String(),
					Message: fmt.Sprintf("%s does not resolve to an image in the registry", ref),
				})
				usage.MarkUnknown(domain.UnknownScope{
					Target:   target.DisplayName(),
					Cause:    domain.WarningDanglingReference,
					Patterns: []domain.Pattern{domain.LiteralPattern(ref.Repository)},
				})
			}
		}
	}
	return usage, dedupeWarnings(warnings), nil
}

func (a *UsageAggregator) connect(ctx context.Context, targets []domain.ScanTarget) []connectResult {
	out := make(chan connectResult, len(targets))
	wp := workerpool.New(a.concurrency)
	for i := range targets {
		wp.Submit(func() {
			if err := ctx.Err(); err != nil {
				out <- connectResult{target: i, err: err}
				return
			}
			var probes []ports.UsageProbe
			err := a.withTimeout(ctx, func(ctx context.Context) error {
				var err error
				probes, err = a.connector.Connect(ctx, targets[i])
				return err
			})
			if err != nil {
				out <- connectResult{target: i, err: err}
				return
			}
			out <- connectResult{target: i, probes: probes}
		})
	}
	wp.StopWait()
	close(out)

	results := make([]connectResult, 0, len(targets))
	for r := range out {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].target < results[j].target
	})
	return results
}

type probeTask struct {
	target int
	probe  ports.UsageProbe
}

func (a *UsageAggregator) probe(ctx context.Context, targets []domain.ScanTarget, tasks []probeTask) []probeResult {
	out := make(chan probeResult, len(tasks))
	wp := workerpool.New(a.concurrency)
	for _, task := range tasks {
		wp.Submit(func() {
			kind := task.probe.Kind()
			// stop issuing new probes once cancelled
			if err := ctx.Err(); err != nil {
				out <- probeResult{target: task.target, kind: kind, err: err}
				return
			}
			logger.L().Debug("running usage probe",
				helpers.String("target", targets[task.target].DisplayName()),
				helpers.String("kind", kind.String()))
			var records []domain.UsageRecord
			err := a.withTimeout(ctx, func(ctx context.Context) error {
				var err error
				records, err = task.probe.ListUsage(ctx)
				return err
			})
			if err != nil {
				out <- probeResult{target: task.target, kind: kind, err: err}
				return
			}
			out <- probeResult{target: task.target, kind: kind, records: records}
		})
	}
	wp.StopWait()
	close(out)

	results := make([]probeResult, 0, len(tasks))
	for r := range out {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].target != results[j].target {
			return results[i].target < results[j].target
		}
		return results[i].kind < results[j].kind
	})
	return results
}

// withTimeout runs fn under a deadline. A call still running when the deadline
// expires is abandoned and reported as domain.ErrProbeTimedOut. Cancelling ctx
// does not abort a call that has already started.
func (a *UsageAggregator) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	if a.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	err := deadline.New(a.timeout).Run(func(stopper <-chan struct{}) error {
		return fn(ctx)
	})
	switch {
	case errors.Is(err, deadline.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return domain.ErrProbeTimedOut
	default:
		return err
	}
}

func dedupeWarnings(warnings []domain.Warning) []domain.Warning {
	sort.SliceStable(warnings, func(i, j int) bool {
		a, b := warnings[i], warnings[j]
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Message < b.Message
	})
	out := warnings[:0]
	for i, w := range warnings {
		if i > 0 && w == warnings[i-1] {
			continue
		}
		out = append(out, w)
	}
	return out
}
