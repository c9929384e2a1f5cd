package jsonb

import "testing"

func TestScanAcceptsBytesAndString(t *testing.T) {
	var ids []string
	if err := Scan([]byte(`["a","b"]`), &ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[1] != "b" {
		t.Errorf("unexpected ids: %v", ids)
	}

	var n int
	if err := Scan("42", &n); err != nil || n != 42 {
		t.Errorf("Scan(string) = %d, %v", n, err)
	}
	if err := Scan(3.5, &n); err == nil {
		t.Errorf("expected error for float source")
	}
}

func TestValueProducesJSONText(t *testing.T) {
	v, err := Value([]string{"x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != `["x"]` {
		t.Errorf("Value() = %v", v)
	}
}
