// Package weblog keeps an append-only log of raw webhook request bodies for
// offline debugging. Writes are best-effort: a logging failure never fails
// the request being logged.
package weblog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Logger appends timestamp-prefixed raw request bodies to a single file.
type Logger struct {
	mu   sync.Mutex
	path string
}

// New creates a Logger writing to path.
func New(path string) *Logger {
	return &Logger{path: path}
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Append writes one entry: "[<RFC3339 UTC>] <quoted body>\n". The body is
// Go-quoted so one line stays one entry and strconv.Unquote recovers the
// original bytes, newlines included.
func (l *Logger) Append(body []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("open webhook log: %w", err)
	}
	defer f.Close()

	entry := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), strconv.Quote(string(body)))
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append webhook log: %w", err)
	}
	return nil
}

// Prune rewrites the log keeping only entries newer than maxAge. Entries
// whose timestamp prefix cannot be parsed are kept. Returns the number of
// entries dropped. A missing log file is not an error.
func (l *Logger) Prune(maxAge time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open webhook log: %w", err)
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	var kept []string
	dropped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if ts, ok := entryTime(line); ok && ts.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, line)
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return 0, fmt.Errorf("scan webhook log: %w", scanErr)
	}
	if dropped == 0 {
		return 0, nil
	}

	tmp := l.path + ".tmp"
	out := strings.Join(kept, "\n")
	if len(kept) > 0 {
		out += "\n"
	}
	if err := os.WriteFile(tmp, []byte(out), 0640); err != nil {
		return 0, fmt.Errorf("write pruned log: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return 0, fmt.Errorf("replace webhook log: %w", err)
	}
	return dropped, nil
}

// entryTime parses the "[<RFC3339>]" prefix of one log line.
func entryTime(line string) (time.Time, bool) {
	if len(line) < 2 || line[0] != '[' {
		return time.Time{}, false
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, line[1:end])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
