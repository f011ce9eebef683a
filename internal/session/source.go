package session

import (
	"regexp"
	"strings"

	"github.com/google/go-dap"
)

// launchContinuation is a launch waiting for the client to deliver source.
type launchContinuation struct {
	request *dap.LaunchRequest
	uri     string
}

// splitLines splits source on CRLF when present, otherwise LF, dropping any
// stray line terminators.
func splitLines(source string) []string {
	sep := "\n"
	if strings.Contains(source, "\r\n") {
		sep = "\r\n"
	}
	lines := strings.Split(source, sep)
	for i, l := range lines {
		lines[i] = strings.NewReplacer("\r", "", "\n", "").Replace(l)
	}
	return lines
}

// baseName returns the last path segment of a path or URI, accepting either
// separator.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

var labelOnly = regexp.MustCompile(`^[A-Za-z_][A-Za-z_0-9.]*[ \t]*:$`)

// executableLine returns the first line at or after line (1-based) holding
// more than a comment or a bare label. When there is none the requested line
// is returned with ok false.
func executableLine(lines []string, line int) (int, bool) {
	if line < 1 {
		return line, false
	}
	for l := line; l <= len(lines); l++ {
		code, _, _ := strings.Cut(lines[l-1], "#")
		code = strings.TrimSpace(code)
		if code == "" || labelOnly.MatchString(code) {
			continue
		}
		return l, true
	}
	return line, false
}
