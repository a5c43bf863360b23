package syncer

// Status tags the outcome of a sync operation
type Status int

const (
	// StatusSuccess means the operation completed against the server
	StatusSuccess Status = iota
	// StatusFailure means nothing took effect remotely
	StatusFailure
	// StatusPartialFailure means some items of a bulk or import succeeded
	// and some failed
	StatusPartialFailure
	// StatusQueued means the manual strategy recorded the change for a
	// later sync pass without touching the network
	StatusQueued
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusPartialFailure:
		return "partial_failure"
	case StatusQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Result is the outcome of executing a sync operation
type Result struct {
	Status    Status
	Message   string
	FailedIDs []string
}

// Success is true for completed and queued outcomes
func (r *Result) Success() bool {
	return r.Status == StatusSuccess || r.Status == StatusQueued
}

// SuccessResult builds an immediate-success outcome
func SuccessResult() *Result {
	return &Result{Status: StatusSuccess}
}

// QueuedResult builds a manual-queued outcome
func QueuedResult() *Result {
	return &Result{Status: StatusQueued}
}

// FailureResult builds a complete-failure outcome
func FailureResult(message string, failedIDs ...string) *Result {
	return &Result{Status: StatusFailure, Message: message, FailedIDs: failedIDs}
}

// PartialFailureResult builds a partial-failure outcome
func PartialFailureResult(message string, failedIDs []string) *Result {
	return &Result{Status: StatusPartialFailure, Message: message, FailedIDs: failedIDs}
}

// aggregateResult applies the bulk aggregation rule: no failures is success,
// all failures is complete failure, anything in between is partial.
func aggregateResult(total int, failedIDs []string, message string) *Result {
	switch {
	case len(failedIDs) == 0:
		return SuccessResult()
	case len(failedIDs) >= total:
		return FailureResult(message, failedIDs...)
	default:
		return PartialFailureResult(message, failedIDs)
	}
}
