package bot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klytics/rosterbot/internal/formats/xlsx"
)

// ErrNoPending is returned by Confirm when no uploaded dataset awaits
// confirmation.
var ErrNoPending = errors.New("no pending dataset replacement")

// ErrInvalidUpload marks an upload that is not a workbook holding the
// required sheet. Nothing is staged for it.
var ErrInvalidUpload = errors.New("invalid dataset upload")

// ErrSamePath is returned by NewReplacer when the staging path is the live
// dataset itself.
var ErrSamePath = errors.New("upload staging path is the live dataset")

// Reloader is the part of the roster the replacement workflow drives.
type Reloader interface {
	Reload() error
	Len() int
	Sheet() string
}

// Replacer stages an uploaded dataset next to the live one and swaps it in
// on confirmation. At most one upload is pending; a newer upload replaces it.
type Replacer struct {
	livePath string
	tempPath string
	filename string
	store    Reloader

	mu      sync.Mutex
	pending string
}

// NewReplacer stages uploads named filename under tempDir and replaces
// livePath on confirmation. Staging must not land on livePath, or an upload
// would go live before it is confirmed.
func NewReplacer(livePath, tempDir, filename string, store Reloader) (*Replacer, error) {
	tempPath := filepath.Join(tempDir, filename)
	if SamePath(livePath, tempPath) {
		return nil, fmt.Errorf("%w: %s (move upload.temp_dir elsewhere)", ErrSamePath, livePath)
	}
	return &Replacer{
		livePath: livePath,
		tempPath: tempPath,
		filename: filename,
		store:    store,
	}, nil
}

// SamePath reports whether a and b name the same file once made absolute.
func SamePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// Filename is the upload name that qualifies for replacement.
func (r *Replacer) Filename() string { return r.filename }

// Sheet is the sheet an upload must contain.
func (r *Replacer) Sheet() string { return r.store.Sheet() }

// Pending returns the staged file path, or "" when idle.
func (r *Replacer) Pending() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Stage checks that data is a workbook with a non-empty required sheet, then
// writes it to the temporary path, overwriting any earlier upload, and marks
// it pending. A rejected upload leaves an earlier pending one in place.
func (r *Replacer) Stage(data []byte) error {
	if err := r.check(data); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.tempPath), 0755); err != nil {
		return fmt.Errorf("could not create upload dir: %w", err)
	}
	if err := os.WriteFile(r.tempPath, data, 0644); err != nil {
		return fmt.Errorf("could not stage upload: %w", err)
	}
	r.pending = r.tempPath
	return nil
}

func (r *Replacer) check(data []byte) error {
	wb, err := xlsx.ReadBytes(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUpload, err)
	}
	sheet, err := wb.GetSheet(r.store.Sheet())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUpload, err)
	}
	if sheet.RowCount() == 0 {
		return fmt.Errorf("%w: sheet %q is empty", ErrInvalidUpload, sheet.Name)
	}
	return nil
}

// Confirm replaces the live dataset with the pending upload and reloads the
// store, returning the new record count. The pending slot is cleared once
// the file has been moved; if the move fails it stays set so a later Confirm
// retries.
func (r *Replacer) Confirm() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == "" {
		return 0, ErrNoPending
	}

	if err := os.Remove(r.livePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("could not remove current dataset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.livePath), 0755); err != nil {
		return 0, fmt.Errorf("could not create data dir: %w", err)
	}
	if err := os.Rename(r.pending, r.livePath); err != nil {
		return 0, fmt.Errorf("could not move upload into place: %w", err)
	}
	r.pending = ""

	if err := r.store.Reload(); err != nil {
		return 0, fmt.Errorf("reload after replacement: %w", err)
	}
	return r.store.Len(), nil
}
