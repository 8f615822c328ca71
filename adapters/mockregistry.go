package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"go.opentelemetry.io/otel"
)

// MockRegistry implements a mocked registry, both CatalogReader and ImageDeleter, to be used for tests
type MockRegistry struct {
	mu           sync.Mutex
	identity     domain.RegistryIdentity
	repositories map[string][]domain.Image
	// throttle makes the next n delete calls fail with a transient error
	throttle int
	// broken repositories fail every call
	broken     map[string]error
	catalogErr error
	// Batches records every delete call that reached the registry.
	Batches [][]domain.ImageID
}

var _ ports.CatalogReader = (*MockRegistry)(nil)

var _ ports.ImageDeleter = (*MockRegistry)(nil)

// NewMockRegistry initializes the MockRegistry struct with a copy of images
func NewMockRegistry(identity domain.RegistryIdentity, images ...domain.Image) *MockRegistry {
	m := &MockRegistry{
		identity:     identity,
		repositories: map[string][]domain.Image{},
		broken:       map[string]error{},
	}
	for _, img := range images {
		m.AddImage(img)
	}
	return m
}

func (m *MockRegistry) AddImage(img domain.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repositories[img.ID.Repository] = append(m.repositories[img.ID.Repository], img)
}

// AddRepository creates an empty repository
func (m *MockRegistry) AddRepository(repository string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repositories[repository]; !ok {
		m.repositories[repository] = nil
	}
}

// Throttle makes the next n delete calls fail with domain.ErrTransient
func (m *MockRegistry) Throttle(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttle = n
}

// Break makes every call touching repository fail with err
func (m *MockRegistry) Break(repository string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broken[repository] = err
}

// BreakCatalog makes listing repositories fail with err
func (m *MockRegistry) BreakCatalog(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogErr = err
}

func (m *MockRegistry) Has(id domain.ImageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range m.repositories[id.Repository] {
		if img.ID == id {
			return true
		}
	}
	return false
}

func (m *MockRegistry) Identity() domain.RegistryIdentity {
	return m.identity
}

func (m *MockRegistry) MaxBatchSize() int {
	return 100
}

func (m *MockRegistry) ListRepositories(ctx context.Context) ([]string, error) {
	_, span := otel.Tracer("").Start(ctx, "MockRegistry.ListRepositories")
	defer span.End()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.catalogErr != nil {
		return nil, m.catalogErr
	}
	names := make([]string, 0, len(m.repositories))
	for name := range m.repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockRegistry) ListImages(ctx context.Context, repository string) ([]domain.Image, error) {
	_, span := otel.Tracer("").Start(ctx, "MockRegistry.ListImages")
	defer span.End()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.broken[repository]; ok {
		return nil, err
	}
	images, ok := m.repositories[repository]
	if !ok {
		return nil, fmt.Errorf("repository %s not found", repository)
	}
	out := make([]domain.Image, len(images))
	copy(out, images)
	return out, nil
}

func (m *MockRegistry) DeleteImages(ctx context.Context, repository string, ids []domain.ImageID) ([]domain.ImageFailure, error) {
	_, span := otel.Tracer("").Start(ctx, "MockRegistry.DeleteImages")
	defer span.End()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.throttle > 0 {
		m.throttle--
		return nil, fmt.Errorf("throttled: %w", domain.ErrTransient)
	}
	if err, ok := m.broken[repository]; ok {
		return nil, err
	}
	batch := make([]domain.ImageID, len(ids))
	copy(batch, ids)
	m.Batches = append(m.Batches, batch)

	var failures []domain.ImageFailure
	for _, id := range ids {
		images := m.repositories[repository]
		found := false
		for i, img := range images {
			if img.ID == id {
				m.repositories[repository] = append(images[:i:i], images[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			failures = append(failures, domain.ImageFailure{ID: id, Code: "ImageNotFound", Message: "image not found", NotFound: true})
		}
	}
	return failures, nil
}
