package domain

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/opencontainers/go-digest"
)

// ImageID identifies a stored image by its repository and manifest digest.
type ImageID struct {
	Repository string `json:"repository"`
	Digest     string `json:"digest"`
}

func (i ImageID) String() string {
	return i.Repository + "@" + i.Digest
}

// Image is one manifest stored in the registry, with the tags pointing at it
type Image struct {
	ID       ImageID
	Tags     []string
	PushedAt time.Time
}

// SortImages orders images by push time, oldest first, falling back to the digest.
func SortImages(images []Image) {
	sort.SliceStable(images, func(i, j int) bool {
		if !images[i].PushedAt.Equal(images[j].PushedAt) {
			return images[i].PushedAt.Before(images[j].PushedAt)
		}
		return images[i].ID.Digest < images[j].ID.Digest
	})
}

// ImageReference is an image location extracted from a workload definition.
// Exactly one of Tag and Digest is set.
type ImageReference struct {
	AccountID  string
	Region     string
	Repository string
	Tag        string
	Digest     string
}

func (r ImageReference) ByDigest() bool {
	return r.Digest != ""
}

func (r ImageReference) String() string {
	host := fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", r.AccountID, r.Region)
	if r.ByDigest() {
		return host + "/" + r.Repository + "@" + r.Digest
	}
	return host + "/" + r.Repository + ":" + r.Tag
}

var ecrHost = regexp.MustCompile(`^(\d{12})\.dkr\.ecr\.([a-z0-9-]+)\.amazonaws\.com(\.cn)?$`)

// ParseImageURI parses a private ECR image URI. ok is false for anything
// else (public registries, malformed references). A reference without a tag
// or digest resolves to the latest tag.
func ParseImageURI(uri string) (ImageReference, bool) {
	ref, err := name.ParseReference(uri)
	if err != nil {
		return ImageReference{}, false
	}
	m := ecrHost.FindStringSubmatch(ref.Context().RegistryStr())
	if m == nil {
		return ImageReference{}, false
	}
	out := ImageReference{
		AccountID:  m[1],
		Region:     m[2],
		Repository: ref.Context().RepositoryStr(),
	}
	switch r := ref.(type) {
	case name.Digest:
		d, err := digest.Parse(r.DigestStr())
		if err != nil {
			return ImageReference{}, false
		}
		out.Digest = d.String()
	case name.Tag:
		out.Tag = r.TagStr()
	}
	return out, true
}

// RegistryIdentity is the account and region a registry lives in
type RegistryIdentity struct {
	AccountID string
	Region    string
}

// Owns reports whether ref points into this registry. Empty identity fields match anything.
func (r RegistryIdentity) Owns(ref ImageReference) bool {
	if r.AccountID != "" && r.AccountID != ref.AccountID {
		return false
	}
	if r.Region != "" && r.Region != ref.Region {
		return false
	}
	return true
}
