package domain

import (
	"encoding/json"
	"time"
)

type Decision int

const (
	Keep Decision = iota
	Delete
)

func (d Decision) String() string {
	if d == Delete {
		return "delete"
	}
	return "keep"
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Reason explains a decision. Every reason maps to exactly one decision.
type Reason int

const (
	ReasonExcludedRepository Reason = iota
	ReasonInUse
	ReasonNoMatchingFilter
	ReasonTooRecent
	ReasonProtectedTag
	ReasonUsageUnknown
	ReasonFilterMatch
)

// Reasons lists every reason in the order checks are applied.
var Reasons = []Reason{
	ReasonExcludedRepository,
	ReasonInUse,
	ReasonNoMatchingFilter,
	ReasonTooRecent,
	ReasonProtectedTag,
	ReasonUsageUnknown,
	ReasonFilterMatch,
}

func (r Reason) String() string {
	switch r {
	case ReasonExcludedRepository:
		return "excluded-repository"
	case ReasonInUse:
		return "in-use"
	case ReasonNoMatchingFilter:
		return "no-matching-filter"
	case ReasonTooRecent:
		return "too-recent"
	case ReasonProtectedTag:
		return "protected-tag"
	case ReasonUsageUnknown:
		return "usage-unknown"
	case ReasonFilterMatch:
		return "filter-match"
	}
	return "unknown"
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r Reason) Decision() Decision {
	switch r {
	case ReasonFilterMatch:
		return Delete
	case ReasonExcludedRepository, ReasonInUse, ReasonNoMatchingFilter,
		ReasonTooRecent, ReasonProtectedTag, ReasonUsageUnknown:
		return Keep
	}
	return Keep
}

// FilterRef points at the configured filter that governed a verdict.
type FilterRef struct {
	Index   int    `json:"index"`
	Pattern string `json:"pattern"`
}

// Verdict is the outcome of evaluating one image. Its decision is derived
// from its reason, so a delete verdict always names the filter behind it.
type Verdict struct {
	reason Reason
	filter *FilterRef
}

// Kept returns a keep verdict that no filter took part in.
func Kept(reason Reason) Verdict {
	if reason.Decision() != Keep {
		reason = ReasonNoMatchingFilter
	}
	return Verdict{reason: reason}
}

// KeptBy returns a keep verdict reached while evaluating filter f.
func KeptBy(reason Reason, f FilterRef) Verdict {
	v := Kept(reason)
	v.filter = &f
	return v
}

// DeletedBy returns a delete verdict issued by filter f.
func DeletedBy(f FilterRef) Verdict {
	return Verdict{reason: ReasonFilterMatch, filter: &f}
}

func (v Verdict) Reason() Reason {
	return v.reason
}

func (v Verdict) Decision() Decision {
	return v.reason.Decision()
}

func (v Verdict) Filter() (FilterRef, bool) {
	if v.filter == nil {
		return FilterRef{}, false
	}
	return *v.filter, true
}

// PlanEntry is the verdict for one image.
type PlanEntry struct {
	Image   Image
	Verdict Verdict
}

func (e PlanEntry) Decision() Decision {
	return e.Verdict.Decision()
}

type planEntryJSON struct {
	Repository string     `json:"repository"`
	Digest     string     `json:"digest"`
	Tags       []string   `json:"tags"`
	PushedAt   time.Time  `json:"pushed_at"`
	Decision   Decision   `json:"decision"`
	Reason     Reason     `json:"reason"`
	Filter     *FilterRef `json:"filter,omitempty"`
}

func (e PlanEntry) MarshalJSON() ([]byte, error) {
	tags := e.Image.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(planEntryJSON{
		Repository: e.Image.ID.Repository,
		Digest:     e.Image.ID.Digest,
		Tags:       tags,
		PushedAt:   e.Image.PushedAt.UTC(),
		Decision:   e.Decision(),
		Reason:     e.Verdict.Reason(),
		Filter:     e.Verdict.filter,
	})
}

// Warning is a non-fatal problem found while planning
type Warning struct {
	Target  string `json:"target"`
	Kind    string `json:"kind"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

const (
	WarningAuthentication    = "authentication"
	WarningProbe             = "probe"
	WarningTimeout           = "timeout"
	WarningDanglingReference = "dangling-reference"
)

// Plan is the ordered list of verdicts for a registry. Plans are only
// produced by NewPlan, so a plan handed to the executor is always complete.
type Plan struct {
	Registry string      `json:"registry"`
	Entries  []PlanEntry `json:"entries"`
	Warnings []Warning   `json:"warnings"`
	built    bool
}

func NewPlan(registry string, entries []PlanEntry, warnings []Warning) Plan {
	if entries == nil {
		entries = []PlanEntry{}
	}
	if warnings == nil {
		warnings = []Warning{}
	}
	return Plan{Registry: registry, Entries: entries, Warnings: warnings, built: true}
}

func (p Plan) Built() bool {
	return p.built
}

// Deletions returns the entries marked for deletion, in plan order.
func (p Plan) Deletions() []PlanEntry {
	var out []PlanEntry
	for _, e := range p.Entries {
		if e.Decision() == Delete {
			out = append(out, e)
		}
	}
	return out
}
