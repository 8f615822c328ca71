package ports

import (
	"context"

	"github.com/dysonhq/dyson/core/domain"
)

// CatalogReader is the port implemented by registry adapters to list repositories and their images
type CatalogReader interface {
	Identity() domain.RegistryIdentity
	ListRepositories(ctx context.Context) ([]string, error)
	ListImages(ctx context.Context, repository string) ([]domain.Image, error)
}

// ImageDeleter is the port implemented by registry adapters to remove images.
// DeleteImages issues one registry call; per-image failures are returned
// separately from call-level errors, which wrap domain.ErrTransient when a retry may succeed.
type ImageDeleter interface {
	MaxBatchSize() int
	DeleteImages(ctx context.Context, repository string, ids []domain.ImageID) ([]domain.ImageFailure, error)
}

// UsageProbe is the port implemented by adapters that discover image references of one workload kind
type UsageProbe interface {
	Kind() domain.SourceKind
	ListUsage(ctx context.Context) ([]domain.UsageRecord, error)
}

// ScanTargetConnector opens an authenticated session on a scan target and
// returns the probes bound to it. Errors are authentication failures.
type ScanTargetConnector interface {
	Connect(ctx context.Context, target domain.ScanTarget) ([]UsageProbe, error)
}

// Notifier is the port implemented by adapters delivering run summaries
type Notifier interface {
	Name() string
	Notify(ctx context.Context, summary domain.Summary) error
}
