package mutation

import "fmt"

// BatchError is a fatal diagnostic. Line is 1-based; Index is the 0-based
// operation index, or -1 when the line produced no operation (parse errors).
type BatchError struct {
	Line    int    `json:"line"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

func (e BatchError) Error() string {
	return fmt.Sprintf("Line %d: %s", e.Line, e.Message)
}

// ParsedOp pairs one operation with its non-blocking warnings.
type ParsedOp struct {
	Op       Operation `json:"-"`
	Warnings []string  `json:"warnings"`
}

// Batch is the result of parsing one submission. Parse errors and structural
// errors are kept apart so validation can be re-run idempotently; both are
// fatal, and a batch with any fatal error must never reach the applier.
type Batch struct {
	Ops []ParsedOp

	parseErrors      []BatchError
	structuralErrors []BatchError
}

// Errors returns all fatal diagnostics, parse errors first.
func (b *Batch) Errors() []BatchError {
	if len(b.parseErrors) == 0 && len(b.structuralErrors) == 0 {
		return nil
	}
	out := make([]BatchError, 0, len(b.parseErrors)+len(b.structuralErrors))
	out = append(out, b.parseErrors...)
	out = append(out, b.structuralErrors...)
	return out
}

// HasFatalErrors reports whether the batch is blocked from apply.
func (b *Batch) HasFatalErrors() bool {
	return len(b.parseErrors) > 0 || len(b.structuralErrors) > 0
}

// ErrorStrings formats all fatal diagnostics for a Result.
func (b *Batch) ErrorStrings() []string {
	errs := b.Errors()
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

// WarningCount totals warnings across all operations.
func (b *Batch) WarningCount() int {
	total := 0
	for _, op := range b.Ops {
		total += len(op.Warnings)
	}
	return total
}

func (b *Batch) addParseError(line int, format string, args ...any) {
	b.parseErrors = append(b.parseErrors, BatchError{
		Line:    line,
		Index:   -1,
		Message: fmt.Sprintf(format, args...),
	})
}

func (b *Batch) addStructuralError(op Operation, format string, args ...any) {
	pos := op.Pos()
	b.structuralErrors = append(b.structuralErrors, BatchError{
		Line:    pos.Line,
		Index:   pos.Index,
		Message: fmt.Sprintf(format, args...),
	})
}
