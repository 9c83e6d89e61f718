package mutation

// SortForExecution returns the deterministic execution order: every DEFINE
// first, then everything else, preserving original relative order within each
// group. A stable partition, not a dependency-aware sort: a node CREATE is
// not guaranteed to precede an edge CREATE that references it, and a
// violation surfaces as an apply-time error.
func SortForExecution(ops []ParsedOp) []ParsedOp {
	if len(ops) == 0 {
		return nil
	}
	defines := make([]ParsedOp, 0, len(ops))
	others := make([]ParsedOp, 0, len(ops))
	for _, op := range ops {
		if op.Op.Kind() == OpDefine {
			defines = append(defines, op)
		} else {
			others = append(others, op)
		}
	}
	return append(defines, others...)
}
