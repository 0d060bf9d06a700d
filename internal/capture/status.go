package capture

// Status is an immutable snapshot of a capture session. A fresh value is
// published after every count- or path-affecting event; it is never mutated
// after construction.
type Status struct {
	SessionID string
	Running   bool
	Count     int
	LastPath  string
	Label     string
}

// Observer receives status snapshots. At most one observer is registered at
// a time; panics inside it are caught and logged, never propagated into the
// capture loop.
type Observer func(Status)
