package db

import (
	"encoding/json"
	"testing"

	"gorm.io/datatypes"
)

func TestNewInsert_RendersLegacyLiteralForm(t *testing.T) {
	stmt, err := NewInsert("Predictions", []string{"EventTime", "Score"}, []any{"20240115 09:30:05 AM", int64(42)})
	if err != nil {
		t.Fatalf("new insert: %v", err)
	}

	want := "INSERT INTO Predictions (EventTime,Score) VALUES ('20240115 09:30:05 AM',42)"
	if got := stmt.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := stmt.SQL(); got != "INSERT INTO Predictions (EventTime,Score) VALUES (?,?)" {
		t.Fatalf("unexpected parameterized sql %q", got)
	}
	if len(stmt.Values) != 2 || stmt.Values[0] != "20240115 09:30:05 AM" || stmt.Values[1] != int64(42) {
		t.Fatalf("unexpected values %#v", stmt.Values)
	}
}

func TestNewInsert_RendersNumbersExactly(t *testing.T) {
	stmt, err := NewInsert("Predictions",
		[]string{"Whole", "Ratio", "Huge", "Tiny"},
		[]any{42.0, 0.25, json.Number("12345678901234567890"), 1.5e-7})
	if err != nil {
		t.Fatalf("new insert: %v", err)
	}
	want := "INSERT INTO Predictions (Whole,Ratio,Huge,Tiny) VALUES (42.0,0.25,12345678901234567890,1.5e-07)"
	if got := stmt.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if stmt.Values[2] != json.Number("12345678901234567890") {
		t.Fatalf("large integer must be bound unchanged, got %#v", stmt.Values[2])
	}
}

func TestNewInsert_QuotesEmbeddedQuotesOnlyInLogText(t *testing.T) {
	stmt, err := NewInsert("dbo.Predictions", []string{"Label"}, []any{"it's"})
	if err != nil {
		t.Fatalf("new insert: %v", err)
	}
	if got := stmt.String(); got != "INSERT INTO dbo.Predictions (Label) VALUES ('it''s')" {
		t.Fatalf("unexpected rendering %q", got)
	}
	if stmt.Values[0] != "it's" {
		t.Fatalf("bound value must be passed unchanged, got %#v", stmt.Values[0])
	}
}

func TestNewInsert_BindsNestedValuesAsJSON(t *testing.T) {
	stmt, err := NewInsert("t", []string{"Meta", "Empty"}, []any{map[string]any{"k": "v"}, nil})
	if err != nil {
		t.Fatalf("new insert: %v", err)
	}
	js, ok := stmt.Values[0].(datatypes.JSON)
	if !ok {
		t.Fatalf("expected datatypes.JSON, got %T", stmt.Values[0])
	}
	if string(js) != `{"k":"v"}` {
		t.Fatalf("unexpected json %s", string(js))
	}
	if got := stmt.String(); got != `INSERT INTO t (Meta,Empty) VALUES ('{"k":"v"}',NULL)` {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestNewInsert_RejectsUnsafeIdentifiers(t *testing.T) {
	if _, err := NewInsert("t; DROP TABLE x", []string{"a"}, []any{1}); err == nil {
		t.Fatalf("expected invalid table error")
	}
	if _, err := NewInsert("t", []string{"a b"}, []any{1}); err == nil {
		t.Fatalf("expected invalid column error")
	}
	if _, err := NewInsert("t", []string{"a"}, []any{1, 2}); err == nil {
		t.Fatalf("expected arity error")
	}
	if _, err := NewInsert("t", nil, nil); err == nil {
		t.Fatalf("expected empty column error")
	}
}
