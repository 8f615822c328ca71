package domain

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// SourceKind is the kind of workload a usage probe inspects
type SourceKind int

const (
	ComputeFunction SourceKind = iota
	Service
	DefinitionRevision
)

// SourceKinds lists every probe kind in evaluation order.
var SourceKinds = []SourceKind{ComputeFunction, Service, DefinitionRevision}

func (k SourceKind) String() string {
	switch k {
	case ComputeFunction:
		return "compute-function"
	case Service:
		return "service"
	case DefinitionRevision:
		return "definition-revision"
	}
	return "unknown"
}

// UsageRecord is one image reference observed by a probe.
type UsageRecord struct {
	Kind      SourceKind
	Target    string
	Reference ImageReference
}

// UnknownScope marks repositories whose usage could not be determined.
type UnknownScope struct {
	Target   string
	Cause    string
	Patterns []Pattern
}

// UsageSet is the set of images referenced by any workload, together with
// the repositories for which that set is known to be incomplete.
type UsageSet struct {
	images  mapset.Set[ImageID]
	unknown []UnknownScope
}

func NewUsageSet() UsageSet {
	return UsageSet{images: mapset.NewThreadUnsafeSet[ImageID]()}
}

func (u *UsageSet) Add(id ImageID) {
	if u.images == nil {
		u.images = mapset.NewThreadUnsafeSet[ImageID]()
	}
	u.images.Add(id)
}

func (u UsageSet) Contains(id ImageID) bool {
	return u.images != nil && u.images.Contains(id)
}

func (u UsageSet) Len() int {
	if u.images == nil {
		return 0
	}
	return u.images.Cardinality()
}

// IDs returns the referenced images in a stable order.
func (u UsageSet) IDs() []ImageID {
	if u.images == nil {
		return nil
	}
	ids := u.images.ToSlice()
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Repository != ids[j].Repository {
			return ids[i].Repository < ids[j].Repository
		}
		return ids[i].Digest < ids[j].Digest
	})
	return ids
}

func (u *UsageSet) MarkUnknown(scope UnknownScope) {
	u.unknown = append(u.unknown, scope)
}

func (u UsageSet) UnknownScopes() []UnknownScope {
	return u.unknown
}

// IsUnknown reports whether usage of repository could not be fully determined.
func (u UsageSet) IsUnknown(repository string) bool {
	for _, scope := range u.unknown {
		if MatchAny(scope.Patterns, repository) {
			return true
		}
	}
	return false
}
