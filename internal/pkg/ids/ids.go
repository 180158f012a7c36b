// Package ids generates prefixed identifiers such as "job_3f0c...".
package ids

import (
	"strings"

	"github.com/google/uuid"
)

const (
	Template = "tpl"
	Job      = "job"
	Asset    = "ast"
	Result   = "res"
)

// New returns prefix + "_" + a random UUID without dashes.
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HasPrefix reports whether id was generated for prefix.
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	return ok && len(rest) == 32
}

// Request returns a bare UUID for request correlation.
func Request() string { return uuid.NewString() }
