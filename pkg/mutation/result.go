package mutation

// Result is the outcome of applying one batch. The whole batch is one
// transaction: Success false always means OperationsApplied 0, because an
// aborted transaction contributes nothing to the store no matter how many
// operations executed before the failure.
type Result struct {
	Success           bool     `json:"success"`
	OperationsApplied int      `json:"operations_applied"`
	Errors            []string `json:"errors"`
}

func failedResult(errs []string) *Result {
	return &Result{Success: false, OperationsApplied: 0, Errors: errs}
}
