package event

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed indicates a push-event line that does not carry exactly
// three fields. The whole event stream is rejected in that case.
var ErrMalformed = errors.New("malformed push event")

// Update represents one reference changed by the current push, as reported
// by git on the post-receive hook's standard input.
type Update struct {
	OldSHA  string
	NewSHA  string
	RefName string
}

// Read parses the post-receive event stream: one "<old-sha> <new-sha> <ref>"
// line per updated reference. Encounter order is preserved and duplicate ref
// names are kept; blank lines are skipped so a trailing newline does not fail
// the push. Any line with a different field count aborts the whole read, since
// partial processing of a corrupt stream could silently drop a ref.
func Read(r io.Reader) ([]Update, error) {
	var updates []Update

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w at line %d: expected 3 fields, got %d", ErrMalformed, lineNo, len(fields))
		}

		updates = append(updates, Update{
			OldSHA:  fields[0],
			NewSHA:  fields[1],
			RefName: fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read push events: %w", err)
	}

	return updates, nil
}

// RefNames returns the ref-name column of the event stream, keeping order
// and duplicates.
func RefNames(updates []Update) []string {
	names := make([]string, 0, len(updates))
	for _, u := range updates {
		names = append(names, u.RefName)
	}
	return names
}
