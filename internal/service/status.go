package service

// BuildState describes the outcome of a worker's last build iteration.
type BuildState int

const (
	BuildStateUnknown BuildState = iota
	BuildStateSuccess
	BuildStateBuildFailed
	BuildStateEmitFailed
	BuildStateInternalError
)

func (s BuildState) String() string {
	switch s {
	case BuildStateSuccess:
		return "success"
	case BuildStateBuildFailed:
		return "build_failed"
	case BuildStateEmitFailed:
		return "emit_failed"
	case BuildStateInternalError:
		return "internal_error"
	}
	return "unknown"
}

// Status is the last reported worker state.
type Status struct {
	State    BuildState
	Message  string
	Warnings int
	Errors   int
}
