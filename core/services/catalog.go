package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/dysonhq/dyson/goroutinelimits"
	"github.com/hashicorp/go-multierror"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

// CatalogLoader reads the registry catalog into a snapshot, listing
// repositories concurrently
type CatalogLoader struct {
	reader      ports.CatalogReader
	engine      *FilterEngine
	registry    string
	concurrency int
}

func NewCatalogLoader(reader ports.CatalogReader, engine *FilterEngine, registry string, concurrency int) *CatalogLoader {
	if concurrency < 1 {
		concurrency = goroutinelimits.MaxCatalogRoutines
	}
	return &CatalogLoader{
		reader:      reader,
		engine:      engine,
		registry:    registry,
		concurrency: concurrency,
	}
}

// Load stores every repository in snapshot and the images of the non-excluded ones.
// Any listing failure is a CatalogError.
func (l *CatalogLoader) Load(ctx context.Context, snapshot ports.CatalogRepository) error {
	ctx, span := otel.Tracer("").Start(ctx, "CatalogLoader.Load")
	defer span.End()

	repositories, err := l.reader.ListRepositories(ctx)
	if err != nil {
		return &domain.CatalogError{Registry: l.registry, Err: err}
	}
	guardian, err := goroutinelimits.CreateCoroutineGuardian(l.concurrency)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var errs error
	var wg sync.WaitGroup
	for _, repository := range repositories {
		excluded := l.engine.IsExcluded(repository)
		snapshot.StoreRepository(repository, excluded)
		if excluded {
			logger.L().Debug("skipping excluded repository", helpers.String("repository", repository))
			continue
		}
		if err := guardian.WaitContext(ctx); err != nil {
			mu.Lock()
			errs = multierror.Append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(repository string) {
			defer wg.Done()
			defer guardian.Release()
			images, err := l.reader.ListImages(ctx, repository)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", repository, err))
				mu.Unlock()
				return
			}
			snapshot.StoreImages(repository, images)
		}(repository)
	}
	wg.Wait()
	if errs != nil {
		return &domain.CatalogError{Registry: l.registry, Err: errs}
	}
	logger.L().Ctx(ctx).Debug("catalog loaded",
		helpers.String("registry", l.registry),
		helpers.Int("repositories", len(repositories)))
	return nil
}
