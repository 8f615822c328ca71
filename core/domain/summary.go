package domain

// Summary is the notification payload describing a plan or an apply run.
type Summary struct {
	Title    string
	Registry string
	RunID    string
	Entries  int
	// ByDecision and ByReason count plan entries.
	ByDecision map[Decision]int
	ByReason   map[Reason]int
	// Repositories lists deletion candidates per repository, sorted by name.
	Repositories []RepositorySummary
	Applied      bool
	Deleted      int
	Failed       int
	Skipped      int
	Failures     []DeletionResult
	Warnings     []Warning
}

type RepositorySummary struct {
	Repository string
	Tags       int
	Images     int
}
