package query

import (
	"bytes"
	"encoding/json"
)

// Kind tags the recognized shapes of a machine-structured answer.
type Kind string

const (
	KindTable  Kind = "table"
	KindList   Kind = "list"
	KindOpaque Kind = "opaque"
)

// Table is a row-shaped payload: {"type":"table","rows":[{...},...]}.
type Table struct {
	Rows []map[string]any `json:"rows"`
}

// List is an item-shaped payload: {"type":"list","items":[...]}.
type List struct {
	Items []any `json:"items"`
}

// Payload is a tagged variant over the recognized structured shapes, with
// arbitrary JSON falling back to the opaque variant. Renderers switch on
// Kind exhaustively instead of sniffing shapes.
type Payload struct {
	Kind   Kind            `json:"kind"`
	Table  *Table          `json:"table,omitempty"`
	List   *List           `json:"list,omitempty"`
	Opaque json.RawMessage `json:"opaque,omitempty"`
}

// typeTag peeks at the discriminator field of a JSON object.
type typeTag struct {
	Type string `json:"type"`
}

// ParsePayload classifies raw JSON into a Payload. Anything that isn't a
// recognized table or list shape becomes opaque; invalid JSON returns nil.
func ParsePayload(raw []byte) *Payload {
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return nil
	}
	if len(raw) == 0 || (raw[0] != '{' && raw[0] != '[') {
		return nil
	}

	var tag typeTag
	if err := json.Unmarshal(raw, &tag); err == nil {
		switch tag.Type {
		case "table":
			var t Table
			if err := json.Unmarshal(raw, &t); err == nil && t.Rows != nil {
				return &Payload{Kind: KindTable, Table: &t}
			}
		case "list":
			var l List
			if err := json.Unmarshal(raw, &l); err == nil && l.Items != nil {
				return &Payload{Kind: KindList, List: &l}
			}
		}
	}

	return &Payload{Kind: KindOpaque, Opaque: json.RawMessage(raw)}
}
