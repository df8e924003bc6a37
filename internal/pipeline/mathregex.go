package pipeline

import "regexp"

var (
	// $$...$$ across lines, shortest match
	blockMathPattern = regexp.MustCompile(`\$\$([\s\S]+?)\$\$`)

	// $...$ on one line whose left boundary is not another $
	inlineMathPattern = regexp.MustCompile(`(^|[^$])\$([^\n$]+?)\$`)
)

// TagMathDelimiters wraps $$...$$ in <div class="math"> and $...$ in
// <span class="math"> by pattern matching serialized HTML.
//
// This is purely textual: nested dollars, escaped dollars and dollars
// inside <code> are not understood. MathExtension handles those cases
// during parsing and is the default.
func TagMathDelimiters(htmlContent string) string {
	htmlContent = blockMathPattern.ReplaceAllString(htmlContent, `<div class="`+MathClass+`">${1}</div>`)
	return inlineMathPattern.ReplaceAllString(htmlContent, `${1}<span class="`+MathClass+`">${2}</span>`)
}
