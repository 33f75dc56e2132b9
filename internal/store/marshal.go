package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/pourkiosk/internal/checkout"
)

// timeLayout stores timestamps with fixed-width nanoseconds so they sort as
// text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalLines converts order lines to JSON TEXT for storage.
// HTML escaping is disabled so beverage names are stored verbatim.
func marshalLines(lines []checkout.Line) (string, error) {
	if lines == nil {
		lines = []checkout.Line{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(lines); err != nil {
		return "", fmt.Errorf("marshal lines: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func unmarshalLines(s string) ([]checkout.Line, error) {
	var lines []checkout.Line
	if err := json.Unmarshal([]byte(s), &lines); err != nil {
		return nil, fmt.Errorf("unmarshal lines: %w", err)
	}
	return lines, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
