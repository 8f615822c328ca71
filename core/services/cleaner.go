package services

import (
	"context"
	"errors"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/dysonhq/dyson/internal/metrics"
	"github.com/google/uuid"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
	"k8s.io/utils/clock"
)

const DefaultScanTimeout = 2 * time.Minute

// CleanerOptions carry the tunables of a CleanerService
type CleanerOptions struct {
	Concurrency int
	ScanTimeout time.Duration
	Executor    ExecutorOptions
	Clock       clock.PassiveClock
	// NewCatalog returns an empty snapshot for each planning run.
	NewCatalog func() ports.CatalogRepository
}

// CleanerService implements CleanerService from ports, this is the business component
// business logic should be independent of implementations
type CleanerService struct {
	registry   domain.Registry
	targets    []domain.ScanTarget
	reader     ports.CatalogReader
	loader     *CatalogLoader
	aggregator *UsageAggregator
	builder    *PlanBuilder
	executor   *DeletionExecutor
	notifiers  []ports.Notifier
	newCatalog func() ports.CatalogRepository
	clock      clock.PassiveClock
	runID      string
}

var _ ports.CleanerService = (*CleanerService)(nil)

// NewCleanerService initializes the CleanerService with all injected dependencies
func NewCleanerService(registry domain.Registry, targets []domain.ScanTarget, reader ports.CatalogReader, deleter ports.ImageDeleter, connector ports.ScanTargetConnector, notifiers []ports.Notifier, opts CleanerOptions) (*CleanerService, error) {
	if opts.NewCatalog == nil {
		return nil, errors.New("no catalog snapshot constructor")
	}
	engine, err := NewFilterEngine(registry)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	return &CleanerService{
		registry:   registry,
		targets:    targets,
		reader:     reader,
		loader:     NewCatalogLoader(reader, engine, registry.Name, opts.Concurrency),
		aggregator: NewUsageAggregator(connector, opts.Concurrency, opts.ScanTimeout),
		builder:    NewPlanBuilder(engine),
		executor:   NewDeletionExecutor(deleter, opts.Executor),
		notifiers:  notifiers,
		newCatalog: opts.NewCatalog,
		clock:      opts.Clock,
		runID:      uuid.NewString(),
	}, nil
}

// Plan reads the catalog, probes every scan target and evaluates every image.
// Probe failures only add warnings; catalog failures and authentication
// failures of required targets abort.
func (s *CleanerService) Plan(ctx context.Context) (domain.Plan, error) {
	ctx, span := otel.Tracer("").Start(ctx, "CleanerService.Plan")
	defer span.End()

	logger.L().Ctx(ctx).Info("planning",
		helpers.String("registry", s.registry.Name),
		helpers.String("runID", s.runID),
		helpers.Int("scanTargets", len(s.targets)))

	snapshot := s.newCatalog()
	if err := s.loader.Load(ctx, snapshot); err != nil {
		return domain.Plan{}, err
	}
	usage, warnings, err := s.aggregator.Aggregate(ctx, s.targets, snapshot, s.reader.Identity())
	if err != nil {
		return domain.Plan{}, err
	}
	plan := s.builder.Build(s.registry.Name, snapshot, usage, warnings, s.clock.Now())
	metrics.ObservePlan(plan)

	logger.L().Ctx(ctx).Info("plan built",
		helpers.String("runID", s.runID),
		helpers.Int("entries", len(plan.Entries)),
		helpers.Int("deletions", len(plan.Deletions())),
		helpers.Int("inUse", usage.Len()),
		helpers.Int("warnings", len(plan.Warnings)))
	return plan, nil
}

// Apply deletes the images the plan marks for deletion and nothing else.
func (s *CleanerService) Apply(ctx context.Context, plan domain.Plan) ([]domain.DeletionResult, error) {
	ctx, span := otel.Tracer("").Start(ctx, "CleanerService.Apply")
	defer span.End()

	results, err := s.executor.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	metrics.ObserveResults(results)
	summary := NewSummary(TitleApply, plan, results, s.runID)
	logger.L().Ctx(ctx).Info("apply finished",
		helpers.String("runID", s.runID),
		helpers.Int("deleted", summary.Deleted),
		helpers.Int("failed", summary.Failed),
		helpers.Int("skipped", summary.Skipped))
	return results, nil
}

// Report summarizes the run and sends it to every notifier. Delivery failures are logged only.
func (s *CleanerService) Report(ctx context.Context, title string, plan domain.Plan, results []domain.DeletionResult) domain.Summary {
	ctx, span := otel.Tracer("").Start(ctx, "CleanerService.Report")
	defer span.End()

	summary := NewSummary(title, plan, results, s.runID)
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			notifyErr := &domain.NotificationError{Notifier: n.Name(), Err: err}
			logger.L().Ctx(ctx).Warning("notification not delivered",
				helpers.String("runID", s.runID),
				helpers.Error(notifyErr))
		}
	}
	return summary
}
