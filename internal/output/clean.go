// Package output post-processes decoded model text.
package output

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
)

const (
	jsonFence  = "```json"
	closeFence = "```"
)

// reZeroPadded matches an unquoted field value with leading zeros, e.g. `": 0042`.
var reZeroPadded = regexp.MustCompile(`": 0+(\d+)`)

// Clean trims text and, when it opens with a ```json fence, returns the fenced body
// with zero-padded numbers rewritten as valid JSON numbers.
//
// Text without the fence is returned trimmed and otherwise untouched, unless strict
// is set, in which case a common.ErrUnexpectedFormat is returned.
func Clean(text string, strict bool) (string, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, jsonFence) {
		if strict {
			return "", common.NewUnexpectedFormatError("model output is not a ```json fenced block")
		}
		return trimmed, nil
	}
	return StripLeadingZeros(fencedBody(trimmed)), nil
}

// IsFenced reports whether the trimmed text opens with a ```json fence.
func IsFenced(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), jsonFence)
}

// fencedBody returns what sits between the first ```json and the next ```,
// or everything after the opening fence when it is never closed.
func fencedBody(s string) string {
	_, body, _ := strings.Cut(s, jsonFence)
	body, _, _ = strings.Cut(body, closeFence)
	return strings.TrimSpace(body)
}

// StripLeadingZeros rewrites every `": 0+<digits>` as `": <digits>`.
func StripLeadingZeros(s string) string {
	return reZeroPadded.ReplaceAllString(s, `": $1`)
}
