package repositories

import (
	"sort"
	"sync"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
)

type repositoryEntry struct {
	excluded bool
	images   []domain.Image
	digests  map[string]int
	tags     map[string]int
}

// MemoryCatalog implements CatalogRepository with in-memory maps, one snapshot per planning run
type MemoryCatalog struct {
	mu           sync.RWMutex
	repositories map[string]*repositoryEntry
}

var _ ports.CatalogRepository = (*MemoryCatalog)(nil)

// NewMemoryCatalog initializes the MemoryCatalog struct and its maps
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		repositories: map[string]*repositoryEntry{},
	}
}

// StoreRepository records a repository name, excluded repositories never get images
func (m *MemoryCatalog) StoreRepository(repository string, excluded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.repositories[repository]; ok {
		e.excluded = excluded
		return
	}
	m.repositories[repository] = &repositoryEntry{excluded: excluded}
}

// StoreImages replaces the images of a repository and indexes their digests and tags
func (m *MemoryCatalog) StoreImages(repository string, images []domain.Image) {
	sorted := make([]domain.Image, len(images))
	copy(sorted, images)
	domain.SortImages(sorted)
	e := &repositoryEntry{
		images:  sorted,
		digests: make(map[string]int, len(sorted)),
		tags:    map[string]int{},
	}
	for i, img := range sorted {
		e.digests[img.ID.Digest] = i
		for _, tag := range img.Tags {
			e.tags[tag] = i
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.repositories[repository]; ok {
		e.excluded = old.excluded
	}
	m.repositories[repository] = e
}

// Repositories returns the sorted names of the non-excluded repositories
func (m *MemoryCatalog) Repositories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, e := range m.repositories {
		if !e.excluded {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Images returns a copy of the images of a repository, oldest first
func (m *MemoryCatalog) Images(repository string) []domain.Image {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.repositories[repository]
	if !ok || e.excluded {
		return nil
	}
	out := make([]domain.Image, len(e.images))
	copy(out, e.images)
	return out
}

// Resolve maps a tag or digest reference onto a catalog image
func (m *MemoryCatalog) Resolve(ref domain.ImageReference) (domain.ImageID, ports.Resolution) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.repositories[ref.Repository]
	switch {
	case !ok:
		return domain.ImageID{}, ports.Dangling
	case e.excluded:
		return domain.ImageID{}, ports.Excluded
	case ref.ByDigest():
		if i, ok := e.digests[ref.Digest]; ok {
			return e.images[i].ID, ports.Resolved
		}
		return domain.ImageID{}, ports.Absent
	}
	if i, ok := e.tags[ref.Tag]; ok {
		return e.images[i].ID, ports.Resolved
	}
	return domain.ImageID{}, ports.Dangling
}
