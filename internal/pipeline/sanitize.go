package pipeline

import (
	"context"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// classTokens accepts space separated class names such as
// "language-go" or "math math-display".
var classTokens = regexp.MustCompile(`^[\w\- ]+$`)

// Sanitizer abstracts HTML sanitization.
type Sanitizer interface {
	Sanitize(ctx context.Context, htmlContent string) string
}

// PolicySanitizer sanitizes HTML with a bluemonday policy.
type PolicySanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a PolicySanitizer with the default policy.
func NewSanitizer() *PolicySanitizer {
	return &PolicySanitizer{policy: DefaultPolicy()}
}

// NewPolicySanitizer wraps a caller-supplied policy.
func NewPolicySanitizer(policy *bluemonday.Policy) *PolicySanitizer {
	return &PolicySanitizer{policy: policy}
}

// DefaultPolicy returns the user-generated-content policy extended with
// what rendered markdown needs: language and math classes, heading ids,
// collapsible sections and task list checkboxes. Scripts, event handlers
// and javascript: URLs are removed.
func DefaultPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(classTokens).OnElements("code", "pre", "span", "div")
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6", "li", "sup")
	p.AllowElements("details", "summary")
	p.AllowAttrs("open").Matching(regexp.MustCompile(`(?i)^(|open)$`)).OnElements("details")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").Matching(regexp.MustCompile(`(?i)^(|checked|disabled)$`)).OnElements("input")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("role").Matching(regexp.MustCompile(`^doc-(noteref|backlink|endnotes)$`)).OnElements("a", "div")
	return p
}

// Sanitize returns htmlContent with disallowed markup removed.
// On cancellation the input is returned unchanged; callers check ctx.
func (s *PolicySanitizer) Sanitize(ctx context.Context, htmlContent string) string {
	if ctx.Err() != nil {
		return htmlContent
	}
	return s.policy.Sanitize(htmlContent)
}
