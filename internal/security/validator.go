package security

import (
	"encoding/json"
	"mime"
	"net/url"
	"regexp"
	"strconv"

	"github.com/corazawaf/libinjection-go"
)

// SQL-injection signatures: keyword clauses, comment tokens, and
// OR/AND-equality tautologies. Bare quotes are deliberately not flagged so
// ordinary prose ("John O'Brien") passes.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(select\s+.+\s+from|insert\s+into|update\s+\w+\s+set|delete\s+from|drop\s+(table|database)|create\s+(table|database)|alter\s+table|exec(\s+|\()|union\s+(all\s+)?select)\b`),
	regexp.MustCompile(`(--|/\*|\*/)`),
	regexp.MustCompile(`(?i)('\s*or\s*'|\b(or|and)\b\s+\d+\s*=\s*\d+|\b1\s*=\s*1\b)`),
}

// XSS signatures: script tags, javascript: URIs, inline event handlers,
// and embeddable tags.
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?is)<iframe[^>]*>`),
	regexp.MustCompile(`(?is)<object[^>]*>`),
	regexp.MustCompile(`(?is)<embed[^>]*>`),
}

// PatternValidator scans request payloads for injection signatures. Beyond
// the regex sets it runs every string leaf through libinjection, which
// catches obfuscated payloads the signatures miss.
type PatternValidator struct {
	maxFieldLength int
}

// NewPatternValidator constructs a validator. maxFieldLength caps every
// string leaf; zero or negative selects the default of 10000.
func NewPatternValidator(maxFieldLength int) *PatternValidator {
	if maxFieldLength <= 0 {
		maxFieldLength = 10000
	}
	return &PatternValidator{maxFieldLength: maxFieldLength}
}

// ValidateBody parses body per contentType and scans it. JSON and
// URL-encoded forms are scanned; multipart uploads are exempt (handled by
// the upload path); anything else passes. Parse failures are validation
// failures.
func (v *PatternValidator) ValidateBody(contentType string, body []byte) Verdict {
	if v == nil || len(body) == 0 {
		return Verdict{Valid: true}
	}
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	switch mediaType {
	case "application/json":
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			return Verdict{Valid: false, Reason: "Invalid request body"}
		}
		return v.Validate(payload)
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return Verdict{Valid: false, Reason: "Invalid request body"}
		}
		return v.ValidateForm(values)
	default:
		return Verdict{Valid: true}
	}
}

// Validate recursively walks a JSON-like value and scans every string
// leaf, short-circuiting on the first violation.
func (v *PatternValidator) Validate(payload any) Verdict {
	if v == nil {
		return Verdict{Valid: true}
	}
	return v.walk(payload, "")
}

// ValidateForm scans every value of a URL-encoded form.
func (v *PatternValidator) ValidateForm(values url.Values) Verdict {
	if v == nil {
		return Verdict{Valid: true}
	}
	for field, entries := range values {
		for _, entry := range entries {
			if verdict := v.validateString(entry, field); !verdict.Valid {
				return verdict
			}
		}
	}
	return Verdict{Valid: true}
}

func (v *PatternValidator) walk(value any, path string) Verdict {
	switch typed := value.(type) {
	case string:
		return v.validateString(typed, path)
	case map[string]any:
		for key, child := range typed {
			if verdict := v.walk(child, joinPath(path, key)); !verdict.Valid {
				return verdict
			}
		}
	case []any:
		for i, child := range typed {
			if verdict := v.walk(child, joinPath(path, strconv.Itoa(i))); !verdict.Valid {
				return verdict
			}
		}
	}
	return Verdict{Valid: true}
}

func (v *PatternValidator) validateString(value, field string) Verdict {
	if len(value) > v.maxFieldLength {
		return Verdict{Valid: false, Reason: "Field " + field + " exceeds maximum length"}
	}
	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(value) {
			return Verdict{Valid: false, Reason: "Potential SQL injection in field " + field}
		}
	}
	if found, _ := libinjection.IsSQLi(value); found {
		return Verdict{Valid: false, Reason: "Potential SQL injection in field " + field}
	}
	for _, pattern := range xssPatterns {
		if pattern.MatchString(value) {
			return Verdict{Valid: false, Reason: "Potential XSS in field " + field}
		}
	}
	if libinjection.IsXSS(value) {
		return Verdict{Valid: false, Reason: "Potential XSS in field " + field}
	}
	return Verdict{Valid: true}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
