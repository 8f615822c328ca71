package domain

// Registry is the registry being cleaned
type Registry struct {
	Name     string
	Profile  string
	Region   string
	Excludes []string
	Filters  []Filter
}

// Filter is a retention rule for repositories matching Pattern.
// A nil DaysAfter puts no age requirement on deletion.
type Filter struct {
	Pattern           string
	DaysAfter         *int
	IgnoreTagPatterns []string
}

// ScanTarget is an account whose workloads are probed for image usage.
type ScanTarget struct {
	Name    string
	Profile string
	Region  string
	// Required targets abort planning when they cannot be authenticated.
	Required bool
	// Repositories limits which registry repositories the target can vouch for.
	Repositories []string
}

func (t ScanTarget) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Profile
}

// Scope returns the repository patterns the target is responsible for.
func (t ScanTarget) Scope() []string {
	if len(t.Repositories) == 0 {
		return []string{"*"}
	}
	return t.Repositories
}
