package domain

// Run statuses.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// RunRecord represents one simulation run. Corresponds to the
// simulation_runs table in PostgreSQL.
type RunRecord struct {
	RunID       string // PRIMARY KEY, caller-chosen identifier
	Seed        int64  // source of all randomness in the run
	Days        int    // simulated horizon
	AgentCount  int
	Controller  string // controller kind, e.g. "P"
	Status      string // running | finished | failed
	FailureMsg  *string
	StartedAtMs int64 // Unix timestamp in milliseconds
	EndedAtMs   *int64
}
