package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// forbiddenSQL lists statement keywords that must never reach the data
// store. The generator refuses to emit them and the executor rejects them
// again; defense in depth, neither layer trusts the other. REPLACE is only
// a write as "REPLACE INTO"; bare REPLACE is the legitimate string function.
var forbiddenSQL = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|replace\s+into|attach|detach|pragma|vacuum|grant)\b`)

// guardReadOnly validates that q is a single read-only SELECT statement.
func guardReadOnly(q string) error {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ";"))
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return fmt.Errorf("only SELECT statements are allowed")
	}

	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}

	if match := forbiddenSQL.FindString(trimmed); match != "" {
		return fmt.Errorf("statement contains forbidden keyword %q", strings.ToUpper(match))
	}

	return nil
}

// stripSQLFences extracts the query from a model completion that may wrap it
// in markdown code fences or prepend commentary.
func stripSQLFences(s string) string {
	s = strings.TrimSpace(s)

	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "sql")
		rest = strings.TrimPrefix(rest, "\n")
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	return strings.TrimSuffix(strings.TrimSpace(s), ";")
}

var (
	dsnPasswordRe = regexp.MustCompile(`(?i)(password|passwd|pwd)=\S+`)
	dsnUserInfoRe = regexp.MustCompile(`://[^/@\s]+@`)
)

// sanitizeDBError strips connection-string secrets from a database error
// before it is surfaced in a turn-local failure.
func sanitizeDBError(err error) string {
	msg := err.Error()
	msg = dsnPasswordRe.ReplaceAllString(msg, "$1=***")
	msg = dsnUserInfoRe.ReplaceAllString(msg, "://***@")
	return msg
}
