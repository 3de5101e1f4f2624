// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	excerptRadius  = 50
	maxExcerptLen  = 200
	redactedMarker = "[REDACTED]"
	// RowContextLimit caps the context built from a database row.
	RowContextLimit = 200
	rowPeerLimit    = 50
)

// HashValue returns the hex sha256 of the trimmed value. This is the only
// representation of a matched value that leaves the pipeline.
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(value)))
	return hex.EncodeToString(sum[:])
}

// locate returns the byte span of raw inside text, preferring the
// caller-supplied offsets when they are accurate.
func locate(text, raw string, start, end int) (int, int, bool) {
	if raw == "" {
		return 0, 0, false
	}
	if start >= 0 && end <= len(text) && start < end && text[start:end] == raw {
		return start, end, true
	}
	if i := strings.Index(text, raw); i >= 0 {
		return i, i + len(raw), true
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && trimmed != raw {
		if i := strings.Index(text, trimmed); i >= 0 {
			return i, i + len(trimmed), true
		}
	}
	return 0, 0, false
}

// excerpt cuts a window of excerptRadius bytes on each side of
// text[start:end], with the match and any other occurrence of the value
// replaced by a marker. Occurrences are replaced before the window is cut so
// no fragment of the value survives at the edges.
func excerpt(text, raw string, start, end int) string {
	value := strings.TrimSpace(raw)
	reach := excerptRadius + len(value)

	lo := start - reach
	if lo < 0 {
		lo = 0
	}
	hi := end + reach
	if hi > len(text) {
		hi = len(text)
	}
	left, right := text[lo:start], text[end:hi]
	if value != "" {
		left = strings.ReplaceAll(left, value, redactedMarker)
		right = strings.ReplaceAll(right, value, redactedMarker)
	}
	left = tail(left, excerptRadius)
	right = truncate(right, excerptRadius)

	out := strings.Join(strings.Fields(left+redactedMarker+right), " ")
	return truncate(out, maxExcerptLen)
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := len(s) - limit
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ExtractLineContext returns the lines within window lines of the 1-indexed
// line number, joined with newlines.
func ExtractLineContext(r io.Reader, line, window int) (string, error) {
	if line < 1 {
		return "", fmt.Errorf("line number must be positive, got %d", line)
	}
	if window < 0 {
		window = 0
	}
	first := line - window
	last := line + window

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var b strings.Builder
	n := 0
	for sc.Scan() {
		n++
		if n < first {
			continue
		}
		if n > last {
			break
		}
		b.WriteString(sc.Text())
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read context: %w", err)
	}
	return b.String(), nil
}

// ExtractFileContext is ExtractLineContext over a file. Unreadable files
// yield an empty context rather than an error.
func ExtractFileContext(path string, line, window int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	ctx, err := ExtractLineContext(f, line, window)
	if err != nil {
		return ""
	}
	return ctx
}

// RowContext renders a database row as "col: value | col: value" in column
// order. The PII column is rendered in full and peers are cut to 50
// characters; the whole context is capped at RowContextLimit.
func RowContext(columns []string, row map[string]interface{}, column string) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		val := fmt.Sprint(row[col])
		if row[col] == nil {
			val = "NULL"
		}
		if col != column {
			val = truncate(val, rowPeerLimit)
		}
		parts = append(parts, col+": "+val)
	}
	return truncate(strings.Join(parts, " | "), RowContextLimit)
}

// LineOf returns the 1-indexed line holding byte offset off of text.
func LineOf(text string, off int) int {
	if off > len(text) {
		off = len(text)
	}
	if off < 0 {
		off = 0
	}
	return 1 + strings.Count(text[:off], "\n")
}

// lineOffset returns the byte offset where 1-indexed line n starts.
func lineOffset(text string, n int) int {
	off := 0
	for i := 1; i < n; i++ {
		j := strings.IndexByte(text[off:], '\n')
		if j < 0 {
			return len(text)
		}
		off += j + 1
	}
	return off
}

// WithFileContext records the line of each candidate and narrows its
// surrounding text to the lines within window of it, read from the file at
// path. text is the file content the candidates were found in. Candidates
// keep the full text when the file cannot be read.
func WithFileContext(candidates []Candidate, path, text string, window int) {
	if window < 0 {
		window = 0
	}
	for i := range candidates {
		c := &candidates[i]
		line := LineOf(text, c.MatchStart)
		c.Source.Line = line
		if c.Source.Path == "" {
			c.Source.Path = path
		}
		lines := ExtractFileContext(path, line, window)
		if lines == "" {
			continue
		}
		first := line - window
		if first < 1 {
			first = 1
		}
		off := lineOffset(text, first)
		c.SurroundingText = lines
		c.MatchStart -= off
		c.MatchEnd -= off
	}
}

// WithRowContext sets the surrounding text of each candidate found in one
// database column to the rendering of its row.
func WithRowContext(candidates []Candidate, table string, columns []string, row map[string]interface{}, column string) {
	rendered := RowContext(columns, row, column)
	for i := range candidates {
		c := &candidates[i]
		c.SurroundingText = rendered
		c.MatchStart, c.MatchEnd = -1, -1
		c.Source.Table = table
		c.Source.Column = column
	}
}
