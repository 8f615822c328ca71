package ports

import (
	"github.com/dysonhq/dyson/core/domain"
)

// Resolution is the outcome of resolving an image reference against the catalog snapshot
type Resolution int

const (
	// Resolved references point at an image in the catalog.
	Resolved Resolution = iota
	// Excluded references point into an excluded repository.
	Excluded
	// Dangling references name a repository or tag the catalog does not hold.
	Dangling
	// Absent references name a digest the catalog does not hold.
	Absent
)

// CatalogRepository holds the registry contents read once per planning run
type CatalogRepository interface {
	StoreRepository(repository string, excluded bool)
	StoreImages(repository string, images []domain.Image)
	// Repositories returns the non-excluded repositories, sorted.
	Repositories() []string
	// Images returns the images of repository ordered by push time then digest.
	Images(repository string) []domain.Image
	Resolve(ref domain.ImageReference) (domain.ImageID, Resolution)
}
