package mutation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// Summary is the read-only breakdown produced for very large inputs instead
// of full structural linting: counts per operation kind plus the first N
// parse errors. It bounds worst-case preview latency regardless of size.
type Summary struct {
	Defines     int      `json:"defines"`
	Creates     int      `json:"creates"`
	Updates     int      `json:"updates"`
	Deletes     int      `json:"deletes"`
	Skipped     int      `json:"skipped"`
	ParseErrors int      `json:"parse_errors"`
	FirstErrors []string `json:"first_errors,omitempty"`
	TotalLines  int      `json:"total_lines"`
}

// Operations totals the recognized operations.
func (s *Summary) Operations() int {
	return s.Defines + s.Creates + s.Updates + s.Deletes
}

// Summarize counts operations per kind without building an operation model.
// Only the discriminator of each line is decoded.
func Summarize(text string, maxErrors int) *Summary {
	summary := &Summary{}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			summary.Skipped++
			continue
		}

		var rec struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			summary.recordError(lineNo, "invalid syntax", maxErrors)
			continue
		}
		switch OpKind(strings.ToUpper(strings.TrimSpace(rec.Op))) {
		case OpDefine:
			summary.Defines++
		case OpCreate:
			summary.Creates++
		case OpUpdate:
			summary.Updates++
		case OpDelete:
			summary.Deletes++
		default:
			summary.recordError(lineNo, fmt.Sprintf("unknown operation %q", rec.Op), maxErrors)
		}
	}
	summary.TotalLines = lineNo

	return summary
}

func (s *Summary) recordError(line int, message string, maxErrors int) {
	s.ParseErrors++
	if len(s.FirstErrors) < maxErrors {
		s.FirstErrors = append(s.FirstErrors, fmt.Sprintf("Line %d: %s", line, message))
	}
}
