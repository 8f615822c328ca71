package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/eapache/go-resiliency/retrier"
	"github.com/gammazero/workerpool"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

const (
	DefaultBatchSize      = 100
	DefaultMaxAttempts    = 5
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// ExecutorOptions tune how deletions are issued
type ExecutorOptions struct {
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	Concurrency int
}

// DeletionExecutor removes the images a plan marks for deletion, one
// repository batch per registry call
type DeletionExecutor struct {
	deleter     ports.ImageDeleter
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	concurrency int
}

func NewDeletionExecutor(deleter ports.ImageDeleter, opts ExecutorOptions) *DeletionExecutor {
	e := &DeletionExecutor{
		deleter:     deleter,
		batchSize:   opts.BatchSize,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		concurrency: opts.Concurrency,
	}
	if e.batchSize < 1 {
		e.batchSize = DefaultBatchSize
	}
	if limit := deleter.MaxBatchSize(); limit > 0 && e.batchSize > limit {
		e.batchSize = limit
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = DefaultMaxAttempts
	}
	if e.baseDelay <= 0 {
		e.baseDelay = DefaultRetryBaseDelay
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	return e
}

type batch struct {
	repository string
	entries    []int
}

type batchOutcome struct {
	batch    batch
	failures map[domain.ImageID]domain.ImageFailure
	err      error
}

// Execute returns one result per plan entry, in plan order. Entries not marked
// for deletion are skipped. A batch that fails after all retries marks its
// images as failed and the remaining batches still run.
func (e *DeletionExecutor) Execute(ctx context.Context, plan domain.Plan) ([]domain.DeletionResult, error) {
	ctx, span := otel.Tracer("").Start(ctx, "DeletionExecutor.Execute")
	defer span.End()

	if !plan.Built() {
		return nil, domain.ErrPlanNotBuilt
	}

	results := make([]domain.DeletionResult, len(plan.Entries))
	for i, entry := range plan.Entries {
		results[i] = domain.DeletionResult{ID: entry.Image.ID, Outcome: domain.OutcomeSkipped, Reason: entry.Verdict.Reason().String()}
	}

	batches := e.batches(plan)
	outcomes := make(chan batchOutcome, len(batches))
	wp := workerpool.New(e.concurrency)
	for _, b := range batches {
		wp.Submit(func() {
			// stop issuing new batches once cancelled
			if err := ctx.Err(); err != nil {
				outcomes <- batchOutcome{batch: b, err: fmt.Errorf("%w: %v", domain.ErrCancelled, err)}
				return
			}
			outcomes <- e.run(ctx, plan, b)
		})
	}
	wp.StopWait()
	close(outcomes)

	for o := range outcomes {
		if o.err != nil {
			batchErr := &domain.DeletionBatchError{Repository: o.batch.repository, Images: len(o.batch.entries), Err: o.err}
			logger.L().Ctx(ctx).Error("deletion batch failed",
				helpers.String("repository", o.batch.repository),
				helpers.Int("images", len(o.batch.entries)),
				helpers.Error(o.err))
			reason := batchErr.Error()
			if errors.Is(o.err, domain.ErrCancelled) {
				reason = "cancelled"
			}
			for _, i := range o.batch.entries {
				results[i] = domain.DeletionResult{ID: plan.Entries[i].Image.ID, Outcome: domain.OutcomeFailed, Reason: reason}
			}
			continue
		}
		for _, i := range o.batch.entries {
			id := plan.Entries[i].Image.ID
			failure, failed := o.failures[id]
			switch {
			case !failed:
				results[i] = domain.DeletionResult{ID: id, Outcome: domain.OutcomeDeleted}
			case failure.NotFound:
				results[i] = domain.DeletionResult{ID: id, Outcome: domain.OutcomeDeleted, AlreadyAbsent: true}
			default:
				results[i] = domain.DeletionResult{ID: id, Outcome: domain.OutcomeFailed, Reason: failureReason(failure)}
			}
		}
	}
	return results, nil
}

// batches groups the delete entries by repository, in plan order, and splits
// each group into chunks of at most batchSize images. Every image lands in
// exactly one batch.
func (e *DeletionExecutor) batches(plan domain.Plan) []batch {
	var order []string
	groups := map[string][]int{}
	for i, entry := range plan.Entries {
		if entry.Decision() != domain.Delete {
			continue
		}
		repository := entry.Image.ID.Repository
		if _, ok := groups[repository]; !ok {
			order = append(order, repository)
		}
		groups[repository] = append(groups[repository], i)
	}
	var out []batch
	for _, repository := range order {
		indices := groups[repository]
		for start := 0; start < len(indices); start += e.batchSize {
			end := min(start+e.batchSize, len(indices))
			out = append(out, batch{repository: repository, entries: indices[start:end]})
		}
	}
	return out
}

func (e *DeletionExecutor) run(ctx context.Context, plan domain.Plan, b batch) batchOutcome {
	ids := make([]domain.ImageID, len(b.entries))
	for n, i := range b.entries {
		ids[n] = plan.Entries[i].Image.ID
	}
	r := retrier.New(retrier.ExponentialBackoff(e.maxAttempts-1, e.baseDelay), transientClassifier{ctx: ctx})
	attempt := 0
	var failures []domain.ImageFailure
	err := r.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			logger.L().Debug("retrying deletion batch",
				helpers.String("repository", b.repository),
				helpers.Int("attempt", attempt))
		}
		// a request already issued runs to completion after an interrupt
		var err error
		failures, err = e.deleter.DeleteImages(context.WithoutCancel(ctx), b.repository, ids)
		return err
	})
	if err != nil {
		if cause := ctx.Err(); cause != nil && (errors.Is(err, cause) || errors.Is(err, domain.ErrTransient)) {
			err = fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		return batchOutcome{batch: b, err: err}
	}
	byID := make(map[domain.ImageID]domain.ImageFailure, len(failures))
	for _, f := range failures {
		byID[f.ID] = f
	}
	return batchOutcome{batch: b, failures: byID}
}

func failureReason(f domain.ImageFailure) string {
	switch {
	case f.Code != "" && f.Message != "":
		return f.Code + ": " + f.Message
	case f.Code != "":
		return f.Code
	default:
		return f.Message
	}
}

// transientClassifier retries errors wrapping domain.ErrTransient until ctx is done
type transientClassifier struct {
	ctx context.Context
}

func (c transientClassifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case c.ctx.Err() != nil:
		return retrier.Fail
	case errors.Is(err, domain.ErrTransient):
		return retrier.Retry
	default:
		return retrier.Fail
	}
}
