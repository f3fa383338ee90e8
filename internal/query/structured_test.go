package query

import (
	"testing"
)

func TestParsePayload_Table(t *testing.T) {
	raw := []byte(`{"type":"table","rows":[{"name":"a","n":1},{"name":"b","n":2}]}`)
	p := ParsePayload(raw)
	if p == nil {
		t.Fatal("got nil payload")
	}
	if p.Kind != KindTable {
		t.Fatalf("got kind %s, want table", p.Kind)
	}
	if len(p.Table.Rows) != 2 {
		t.Errorf("got %d rows, want 2", len(p.Table.Rows))
	}
}

func TestParsePayload_TableWithEmptyRows(t *testing.T) {
	p := ParsePayload([]byte(`{"type":"table","rows":[]}`))
	if p == nil || p.Kind != KindTable {
		t.Fatalf("empty rows is still a table, got %+v", p)
	}
	if len(p.Table.Rows) != 0 {
		t.Errorf("got %d rows, want 0", len(p.Table.Rows))
	}
}

func TestParsePayload_TableMissingRowsIsOpaque(t *testing.T) {
	p := ParsePayload([]byte(`{"type":"table"}`))
	if p == nil || p.Kind != KindOpaque {
		t.Errorf("table tag without rows should fall back to opaque, got %+v", p)
	}
}

func TestParsePayload_List(t *testing.T) {
	p := ParsePayload([]byte(`{"type":"list","items":["x","y"]}`))
	if p == nil || p.Kind != KindList {
		t.Fatalf("got %+v, want list", p)
	}
	if len(p.List.Items) != 2 {
		t.Errorf("got %d items, want 2", len(p.List.Items))
	}
}

func TestParsePayload_UnknownObjectIsOpaque(t *testing.T) {
	p := ParsePayload([]byte(`{"anything":"goes"}`))
	if p == nil || p.Kind != KindOpaque {
		t.Errorf("got %+v, want opaque", p)
	}
}

func TestParsePayload_ArrayIsOpaque(t *testing.T) {
	p := ParsePayload([]byte(`[1,2,3]`))
	if p == nil || p.Kind != KindOpaque {
		t.Errorf("got %+v, want opaque", p)
	}
}

func TestParsePayload_PlainTextIsNil(t *testing.T) {
	for _, raw := range []string{"just a sentence", "", "42", `"a json string"`} {
		if p := ParsePayload([]byte(raw)); p != nil {
			t.Errorf("ParsePayload(%q) = %+v, want nil", raw, p)
		}
	}
}

func TestParsePayload_InvalidJSONIsNil(t *testing.T) {
	if p := ParsePayload([]byte(`{"type":"table",`)); p != nil {
		t.Errorf("got %+v, want nil for invalid JSON", p)
	}
}
