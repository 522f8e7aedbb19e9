package bot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klytics/rosterbot/internal/formats/xlsx"
	"github.com/klytics/rosterbot/internal/roster"
)

var header = []string{"الاسم و اللقب", "رقم الهاتف", "الصفة", "الرحلة", "الفدق", "الغرفة"}

func workbook(t *testing.T, names ...string) []byte {
	t.Helper()
	return workbookSheet(t, roster.DefaultSheet, names...)
}

func workbookSheet(t *testing.T, sheet string, names ...string) []byte {
	t.Helper()
	rows := [][]string{header}
	for _, n := range names {
		rows = append(rows, []string{n, "*", "حاج", "SV10", "*", "*"})
	}
	data, err := xlsx.Bytes(&xlsx.Workbook{Sheets: []xlsx.Sheet{{Name: sheet, Rows: rows}}})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func mustReplacer(t *testing.T, live, tempDir string, store Reloader) *Replacer {
	t.Helper()
	r, err := NewReplacer(live, tempDir, "data.xlsx", store)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func newReplacer(t *testing.T) (*Replacer, *roster.Store, string) {
	t.Helper()
	dir := t.TempDir()
	live := filepath.Join(dir, "data", "data.xlsx")
	if err := os.MkdirAll(filepath.Dir(live), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(live, workbook(t, "Walid"), 0644); err != nil {
		t.Fatal(err)
	}
	store := roster.New(live, roster.DefaultSheet)
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	return mustReplacer(t, live, filepath.Join(dir, "data", "tmp"), store), store, live
}

func TestConfirmWithoutPending(t *testing.T) {
	r, store, live := newReplacer(t)
	before, _ := os.ReadFile(live)

	if _, err := r.Confirm(); !errors.Is(err, ErrNoPending) {
		t.Fatalf("expected ErrNoPending, got %v", err)
	}
	after, _ := os.ReadFile(live)
	if string(before) != string(after) {
		t.Error("live file changed without a pending upload")
	}
	if store.Len() != 1 {
		t.Errorf("store changed: %d records", store.Len())
	}
}

func TestStageAndConfirm(t *testing.T) {
	r, store, live := newReplacer(t)

	if err := r.Stage(workbook(t, "Sara", "Karim")); err != nil {
		t.Fatal(err)
	}
	if r.Pending() == "" {
		t.Fatal("expected pending upload")
	}

	n, err := r.Confirm()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || store.Len() != 2 {
		t.Errorf("records after confirm = %d / %d, want 2", n, store.Len())
	}
	if r.Pending() != "" {
		t.Error("pending should be cleared")
	}
	if _, err := os.Stat(r.tempPath); !os.IsNotExist(err) {
		t.Error("temp file should have been moved")
	}
	if _, err := os.Stat(live); err != nil {
		t.Errorf("live file missing: %v", err)
	}

	if _, err := r.Confirm(); !errors.Is(err, ErrNoPending) {
		t.Errorf("second confirm = %v, want ErrNoPending", err)
	}
}

func TestStageLastWriteWins(t *testing.T) {
	r, store, _ := newReplacer(t)

	r.Stage(workbook(t, "A"))
	r.Stage(workbook(t, "B", "C", "D"))

	n, err := r.Confirm()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected the later upload (3 records), got %d", n)
	}
	if got := store.All()[0].Value(header[0]); got != "B" {
		t.Errorf("first record = %q", got)
	}
}

func TestConfirmWhenLiveMissing(t *testing.T) {
	r, store, live := newReplacer(t)
	os.Remove(live)

	r.Stage(workbook(t, "X"))
	if _, err := r.Confirm(); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 || store.All()[0].Value(header[0]) != "X" {
		t.Errorf("unexpected table after confirm: %d records", store.Len())
	}
}

func TestConfirmMoveFailureKeepsPending(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	os.WriteFile(blocker, []byte("not a dir"), 0644)

	store := roster.New(filepath.Join(blocker, "data.xlsx"), "")
	r := mustReplacer(t, filepath.Join(blocker, "data.xlsx"), filepath.Join(dir, "tmp"), store)
	if err := r.Stage(workbook(t, "X")); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Confirm(); err == nil {
		t.Fatal("expected confirm to fail")
	}
	if r.Pending() == "" {
		t.Error("pending must survive a failed move")
	}
}

// brokenReloader moves files like the real store but cannot parse them.
type brokenReloader struct{ *roster.Store }

func (brokenReloader) Reload() error { return errors.New("corrupt workbook") }

func TestConfirmReloadFailure(t *testing.T) {
	_, store, live := newReplacer(t)
	r := mustReplacer(t, live, filepath.Join(t.TempDir(), "tmp"), brokenReloader{store})

	if err := r.Stage(workbook(t, "X", "Y")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Confirm(); err == nil {
		t.Fatal("expected reload error")
	}
	if r.Pending() != "" {
		t.Error("pending should be cleared once the file moved")
	}
	if store.Len() != 1 {
		t.Errorf("previous table should survive a failed reload, got %d records", store.Len())
	}
}

func TestNewReplacerRejectsStagingOnLiveFile(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "data.xlsx")
	original := workbook(t, "Walid")
	if err := os.WriteFile(live, original, 0644); err != nil {
		t.Fatal(err)
	}
	store := roster.New(live, "")

	for _, tempDir := range []string{dir, dir + string(filepath.Separator), filepath.Join(dir, "tmp", "..")} {
		if _, err := NewReplacer(live, tempDir, "data.xlsx", store); !errors.Is(err, ErrSamePath) {
			t.Errorf("temp dir %q: err = %v, want ErrSamePath", tempDir, err)
		}
	}

	got, _ := os.ReadFile(live)
	if string(got) != string(original) {
		t.Error("live dataset touched by a rejected replacer")
	}
	if _, err := NewReplacer(live, dir, "upload.xlsx", store); err != nil {
		t.Errorf("distinct staging name should be accepted: %v", err)
	}
}

func TestStageRejectsInvalidUploads(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{"not a workbook", func(*testing.T) []byte { return []byte("this is not a workbook") }},
		{"missing sheet", func(t *testing.T) []byte { return workbookSheet(t, "Sheet1", "A") }},
		{"empty sheet", func(t *testing.T) []byte {
			data, err := xlsx.Bytes(&xlsx.Workbook{Sheets: []xlsx.Sheet{{Name: roster.DefaultSheet}}})
			if err != nil {
				t.Fatal(err)
			}
			return data
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, _ := newReplacer(t)
			if err := r.Stage(workbook(t, "Earlier")); err != nil {
				t.Fatal(err)
			}

			if err := r.Stage(tt.data(t)); !errors.Is(err, ErrInvalidUpload) {
				t.Fatalf("Stage = %v, want ErrInvalidUpload", err)
			}
			if _, err := r.Confirm(); err != nil {
				t.Fatal(err)
			}
			if got := store.All()[0].Value(header[0]); got != "Earlier" {
				t.Errorf("rejected upload replaced the pending one: first record %q", got)
			}
		})
	}
}
