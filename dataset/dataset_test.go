package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/bassamadnan/mailsort/email"
)

func openTemp(t *testing.T, name string, format Format) (Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	w, err := Open(path, format)
	if err != nil {
		t.Fatalf("opening %s dataset: %v", format, err)
	}
	t.Cleanup(func() { w.Close() })
	return w, path
}

func record(id string, label int) Record {
	return Record{
		MessageID: id,
		ThreadID:  "t-" + id,
		Date:      "Tue, 2 May 2023 10:04:05 -0700",
		Sender:    "jane@example.com",
		Receiver:  "me@example.org",
		Subject:   "subject " + id,
		Body:      "line one\nline, \"two\"",
		Keywords:  []string{"line", "two"},
		Label:     label,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name, path string
		want       Format
	}{
		{"csv", "", CSV},
		{"JSON", "", JSON},
		{"jsonl", "", JSON},
		{"sqlite", "", SQLite},
		{"", "out/labels.csv", CSV},
		{"", "labels.jsonl", JSON},
		{"", "labels.db", SQLite},
		{"json", "labels.csv", JSON},
	}
	for _, test := range tests {
		got, err := ParseFormat(test.name, test.path)
		if err != nil || got != test.want {
			t.Errorf("ParseFormat(%q, %q)=%q, %v, want %q", test.name, test.path, got, err, test.want)
		}
	}
	for _, bad := range [][2]string{{"xml", ""}, {"", "labels.txt"}} {
		if _, err := ParseFormat(bad[0], bad[1]); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("ParseFormat(%q, %q) err=%v, want ErrUnknownFormat", bad[0], bad[1], err)
		}
	}
}

func TestInvalidLabel(t *testing.T) {
	ctx := context.Background()
	for _, format := range []Format{CSV, JSON, SQLite} {
		w, _ := openTemp(t, "labels", format)
		for _, label := range []int{-1, 5} {
			if err := w.Append(ctx, record("m1", label)); !errors.Is(err, ErrInvalidLabel) {
				t.Errorf("%s: Append(label %d) err=%v, want ErrInvalidLabel", format, label, err)
			}
		}
		if ok, err := w.Labeled(ctx, "m1"); err != nil || ok {
			t.Errorf("%s: Labeled after rejected appends=%v, %v", format, ok, err)
		}
	}
}

func TestCSVHeaderWrittenOnce(t *testing.T) {
	ctx := context.Background()
	w, path := openTemp(t, "labels.csv", CSV)
	for i, id := range []string{"m1", "m2"} {
		if err := w.Append(ctx, record(id, i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	w2, err := Open(path, CSV)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	if ok, _ := w2.Labeled(ctx, "m2"); !ok {
		t.Errorf("reopened dataset does not know m2")
	}
	if err := w2.Append(ctx, record("m3", 4)); err != nil {
		t.Fatal(err)
	}
	w2.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header plus 3", len(rows))
	}
	if !reflect.DeepEqual(rows[0], csvHeader) {
		t.Errorf("header=%v", rows[0])
	}
	last := rows[3]
	if last[1] != "m3" || last[7] != "line one\nline, \"two\"" || last[8] != "line; two" || last[9] != "4" {
		t.Errorf("last row=%q", last)
	}
	if _, err := uuid.Parse(last[0]); err != nil {
		t.Errorf("id %q is not a uuid: %v", last[0], err)
	}
}

func TestJSONLines(t *testing.T) {
	ctx := context.Background()
	w, path := openTemp(t, "labels.jsonl", JSON)
	for i, id := range []string{"m1", "m2", "m3"} {
		if err := w.Append(ctx, record(id, i)); err != nil {
			t.Fatal(err)
		}
	}
	w.Close()
	if err := w.Append(ctx, record("m4", 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after Close err=%v, want ErrClosed", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var got []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 3 {
		t.Fatalf("got %d lines, want 3", len(got))
	}
	if got[2].MessageID != "m3" || got[2].Label != 2 || got[2].ID == uuid.Nil || got[2].LabeledAt.IsZero() {
		t.Errorf("last record=%+v", got[2])
	}
	if !reflect.DeepEqual(got[0].Keywords, []string{"line", "two"}) {
		t.Errorf("keywords=%v", got[0].Keywords)
	}

	w2, err := Open(path, JSON)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	if ok, _ := w2.Labeled(ctx, "m1"); !ok {
		t.Errorf("reopened dataset does not know m1")
	}
}

func TestSQLiteRelabel(t *testing.T) {
	ctx := context.Background()
	w, path := openTemp(t, "labels.db", SQLite)
	if err := w.Append(ctx, record("m1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(ctx, record("m1", 3)); err != nil {
		t.Fatal(err)
	}
	if ok, err := w.Labeled(ctx, "m1"); err != nil || !ok {
		t.Fatalf("Labeled(m1)=%v, %v", ok, err)
	}
	if ok, _ := w.Labeled(ctx, "m2"); ok {
		t.Errorf("Labeled(m2)=true")
	}

	db := w.(*sqliteWriter).db
	var rows []struct {
		Label    int    `db:"label"`
		Keywords string `db:"keywords"`
	}
	if err := db.Select(&rows, "SELECT label, keywords FROM labeled_emails"); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Label != 3 || rows[0].Keywords != `["line","two"]` {
		t.Errorf("rows=%+v, want one row with label 3", rows)
	}
	w.Close()

	w2, err := Open(path, SQLite)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer w2.Close()
	var version int
	if err := w2.(*sqliteWriter).db.Get(&version, "SELECT MAX(version) FROM schema_version"); err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("schema version=%d, want %d", version, len(migrations))
	}
}

func TestNewRecord(t *testing.T) {
	e := &email.Email{
		ID:       "m1",
		ThreadID: "t1",
		Sender:   "jane@example.com",
		Subject:  "hello",
		Body:     map[string]string{"text/html": "reduced html", "text/plain": "plain text"},
	}
	r := NewRecord(e, []string{"plain"}, 2)
	if r.MessageID != "m1" || r.Body != "plain text" || r.Label != 2 || r.ID != uuid.Nil {
		t.Errorf("NewRecord()=%+v", r)
	}
}
