package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestFprintJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := FprintJSON(&buf, "query", map[string]int{"count": 2}); err != nil {
		t.Fatal(err)
	}

	var got JSONResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.OK || got.Command != "query" || got.Version == "" {
		t.Errorf("unexpected envelope %+v", got)
	}
	if got.Error != "" || got.Code != 0 {
		t.Errorf("success envelope carries error fields: %+v", got)
	}
}

func TestFprintJSONKeepsArabicAndAngleBrackets(t *testing.T) {
	var buf bytes.Buffer
	FprintJSON(&buf, "query", []string{"وليد <VIP>"})
	if !strings.Contains(buf.String(), "وليد <VIP>") {
		t.Errorf("expected unescaped text, got %s", buf.String())
	}
}

func TestPrintJSONErrorFields(t *testing.T) {
	var buf bytes.Buffer
	err := encode(&buf, JSONResult{Command: "query", Error: errors.New("boom").Error(), Code: ExitSystemError})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"ok": false`) || !strings.Contains(buf.String(), `"code": 2`) {
		t.Errorf("unexpected error envelope %s", buf.String())
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.WriteTable([]string{"NAME", "ROOM"}, [][]string{
		{"Walid", "101"},
		{"Sara\tB", "2\n02"},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[2], "Sara B") || !strings.HasSuffix(lines[2], "2 02") {
		t.Errorf("cells not flattened: %q", lines[2])
	}
	if strings.Index(lines[0], "ROOM") != strings.Index(lines[1], "101") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestTermHeight(t *testing.T) {
	t.Setenv("LINES", "")
	if got := TermHeight(); got != defaultTermHeight {
		t.Errorf("TermHeight() = %d", got)
	}
	t.Setenv("LINES", "55")
	if got := TermHeight(); got != 55 {
		t.Errorf("TermHeight() = %d", got)
	}
}
