package cli

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// wantJSON reports whether list output should be JSON: either requested,
// or the output is a file that is not a terminal.
func wantJSON(out io.Writer, requested bool) bool {
	if requested {
		return true
	}
	if f, ok := out.(*os.File); ok {
		return !term.IsTerminal(int(f.Fd()))
	}
	return false
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
