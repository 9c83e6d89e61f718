package mutation

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
)

// Lines longer than the default bufio.Scanner limit are legal; a single
// CREATE can carry large property payloads.
const maxLineBytes = 4 * 1024 * 1024

// wireRecord is the decoded shape of one batch line. Fields not used by the
// line's variant are ignored during classification and caught by validation.
type wireRecord struct {
	Op                 string         `json:"op"`
	Type               string         `json:"type"`
	Label              string         `json:"label"`
	ID                 string         `json:"id"`
	Description        string         `json:"description"`
	RequiredProperties []string       `json:"required_properties"`
	OptionalProperties []string       `json:"optional_properties"`
	StartID            string         `json:"start_id"`
	EndID              string         `json:"end_id"`
	SetProperties      map[string]any `json:"set_properties"`
	RemoveProperties   []string       `json:"remove_properties"`
}

// Parse decodes a batch of newline-delimited operations.
//
// Blank lines and lines starting with "//" or "#" are skipped and do not
// consume operation indices. A line that fails to decode contributes a fatal
// parse error and no operation, but parsing continues: all errors in a batch
// are collected, never short-circuited.
func Parse(text string) *Batch {
	batch := &Batch{}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}

		var rec wireRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			batch.addParseError(lineNo, "invalid syntax")
			continue
		}

		op, ok := classify(&rec, Pos{Index: len(batch.Ops), Line: lineNo})
		if !ok {
			if strings.TrimSpace(rec.Op) == "" {
				batch.addParseError(lineNo, "missing operation discriminator")
			} else {
				batch.addParseError(lineNo, "unknown operation %q", rec.Op)
			}
			continue
		}
		batch.Ops = append(batch.Ops, ParsedOp{Op: op})
	}
	if err := scanner.Err(); err != nil {
		batch.addParseError(lineNo+1, "invalid syntax")
	}

	return batch
}

// classify maps the "op" discriminator to a variant. The entity kind is
// carried through even when missing or unrecognized; the validator reports
// that as a structural error on the operation's index.
func classify(rec *wireRecord, pos Pos) (Operation, bool) {
	kind, _ := schema.ParseEntityKind(rec.Type)

	switch strings.ToUpper(strings.TrimSpace(rec.Op)) {
	case string(OpDefine):
		return Define{
			opBase:      opBase{pos: pos},
			EntityKind:  kind,
			Label:       rec.Label,
			Description: rec.Description,
			Required:    rec.RequiredProperties,
			Optional:    rec.OptionalProperties,
		}, true
	case string(OpCreate):
		return Create{
			opBase:        opBase{pos: pos},
			EntityKind:    kind,
			Label:         rec.Label,
			ID:            rec.ID,
			StartID:       rec.StartID,
			EndID:         rec.EndID,
			SetProperties: rec.SetProperties,
		}, true
	case string(OpUpdate):
		return Update{
			opBase:           opBase{pos: pos},
			EntityKind:       kind,
			ID:               rec.ID,
			SetProperties:    rec.SetProperties,
			RemoveProperties: rec.RemoveProperties,
		}, true
	case string(OpDelete):
		return Delete{
			opBase:     opBase{pos: pos},
			EntityKind: kind,
			ID:         rec.ID,
		}, true
	default:
		return nil, false
	}
}
