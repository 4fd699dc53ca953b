package indexer

import (
	"strings"
	"testing"
)

func TestStreamRecordsParsesArray(t *testing.T) {
	input := `[
		{"Path":"a.txt","Name":"a.txt","Size":123,"ModTime":"2026-01-01T00:00:00.000000000Z","IsDir":false},
		{"Path":"dir","Name":"dir","Size":0,"ModTime":"2026-01-01T00:00:00.000000000Z","IsDir":true}
	]`

	var recs []record
	if err := streamRecords(strings.NewReader(input), func(r record) error {
		recs = append(recs, r)
		return nil
	}); err != nil {
		t.Fatalf("streamRecords: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Path != "a.txt" || recs[0].Size != 123 || recs[0].IsDir {
		t.Errorf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Path != "dir" || !recs[1].IsDir {
		t.Errorf("unexpected second record: %+v", recs[1])
	}
	if recs[0].ModTime != "2026-01-01T00:00:00" {
		t.Errorf("ModTime = %q, want truncated to seconds precision", recs[0].ModTime)
	}
}

func TestStreamRecordsHandlesEscapedQuotesAndBraces(t *testing.T) {
	input := `[{"Path":"weird \"name\" {with braces}.txt","Name":"weird \"name\" {with braces}.txt","Size":1,"ModTime":"2026-01-01T00:00:00Z","IsDir":false}]`

	var recs []record
	if err := streamRecords(strings.NewReader(input), func(r record) error {
		recs = append(recs, r)
		return nil
	}); err != nil {
		t.Fatalf("streamRecords: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if !strings.Contains(recs[0].Path, "with braces") {
		t.Errorf("expected braces inside string to not break the parser, got %q", recs[0].Path)
	}
}

func TestStreamRecordsSkipsIncompleteTrailingObject(t *testing.T) {
	input := `[{"Path":"a.txt","Name":"a.txt","Size":1,"ModTime":"2026-01-01T00:00:00Z","IsDir":false},{"Path":"b.txt"`

	var recs []record
	if err := streamRecords(strings.NewReader(input), func(r record) error {
		recs = append(recs, r)
		return nil
	}); err != nil {
		t.Fatalf("streamRecords: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected only the complete object to be emitted, got %d", len(recs))
	}
}

func TestExtractRecordMissingRequiredKeysRejected(t *testing.T) {
	_, ok := extractRecord([]byte(`{"Size":1,"IsDir":false}`))
	if ok {
		t.Error("expected extractRecord to reject an object missing Path/Name")
	}
}

func TestExtractInt64AndBool(t *testing.T) {
	s := `{"Size":-42,"IsDir":true}`
	n, ok := extractInt64(s, "Size")
	if !ok || n != -42 {
		t.Errorf("extractInt64 = %v, %v, want -42, true", n, ok)
	}
	b, ok := extractBool(s, "IsDir")
	if !ok || !b {
		t.Errorf("extractBool = %v, %v, want true, true", b, ok)
	}
}
