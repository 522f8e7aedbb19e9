package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klytics/rosterbot/cmd/version"
)

// Exit codes for consistent error reporting.
const (
	ExitOK          = 0 // success
	ExitUserError   = 1 // bad flags, missing file, unknown column
	ExitSystemError = 2 // unreadable spreadsheet, IO error
)

// JSONResult is the envelope every --json command prints.
type JSONResult struct {
	OK      bool   `json:"ok"`
	Command string `json:"command"`
	Version string `json:"version"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// PrintJSON writes a success envelope to stdout.
func PrintJSON(cmd string, data any) error {
	return FprintJSON(os.Stdout, cmd, data)
}

// FprintJSON writes a success envelope to w.
func FprintJSON(w io.Writer, cmd string, data any) error {
	return encode(w, JSONResult{
		OK:      true,
		Command: cmd,
		Version: version.Version,
		Data:    data,
	})
}

// PrintJSONError writes an error envelope to stdout.
func PrintJSONError(cmd string, err error, code int) error {
	result := JSONResult{
		OK:      false,
		Command: cmd,
		Version: version.Version,
		Error:   err.Error(),
		Code:    code,
	}
	if encErr := encode(os.Stdout, result); encErr != nil {
		return fmt.Errorf("could not encode JSON error: %w", encErr)
	}
	return nil
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
