package pipeline

import (
	"context"
	"regexp"
	"strings"
)

// Precompiled regex patterns for performance.
var (
	// Line ending normalization
	crlfOrCR = regexp.MustCompile(`\r\n?`)

	// Fence opener with optional info string, and bare closing fences
	fenceOpener = regexp.MustCompile("```+[\\w-]*\\n?")
	fenceCloser = regexp.MustCompile("(?m)```+$")

	// Leading indentation of two or more spaces, or any run of tabs
	leadingIndent = regexp.MustCompile(`(?m)^( {2,}|\t+)`)

	// Backslash-escaped punctuation commonly emitted by language models
	escapedPunct = regexp.MustCompile("\\\\([*_`~\\[\\](){}<>])")

	// Fenced code block delimiter (backticks or tildes)
	fencedCodeBlock = regexp.MustCompile("^\\s*(```|~~~)")
)

// Transform is a pure text-to-text rewrite applied before parsing.
type Transform func(string) string

// MarkdownPreprocessor defines the contract for markdown preprocessing.
type MarkdownPreprocessor interface {
	PreprocessMarkdown(ctx context.Context, content string) string
}

// Preprocessor applies an ordered chain of transforms.
// The zero value is a pass-through.
type Preprocessor struct {
	transforms []Transform
}

// NewPreprocessor creates a Preprocessor running transforms in order.
func NewPreprocessor(transforms ...Transform) *Preprocessor {
	return &Preprocessor{transforms: append([]Transform(nil), transforms...)}
}

// NewLLMPreprocessor creates the cleanup chain for generative-model output.
// Order matters: line endings first, then fences, then indentation, then escapes.
func NewLLMPreprocessor() *Preprocessor {
	return NewPreprocessor(
		NormalizeLineEndings,
		StripTripleBackticks,
		NormalizeIndentation,
		FixEscapes,
	)
}

// Add appends transforms to the chain.
func (p *Preprocessor) Add(transforms ...Transform) {
	p.transforms = append(p.transforms, transforms...)
}

// Len returns the number of transforms in the chain.
func (p *Preprocessor) Len() int {
	return len(p.transforms)
}

// PreprocessMarkdown applies all transforms in order.
func (p *Preprocessor) PreprocessMarkdown(ctx context.Context, content string) string {
	for _, t := range p.transforms {
		// Check for cancellation between passes
		if ctx.Err() != nil {
			return content
		}
		content = t(content)
	}
	return content
}

// NormalizeLineEndings converts \r\n and \r to \n.
func NormalizeLineEndings(content string) string {
	return crlfOrCR.ReplaceAllString(content, "\n")
}

// StripTripleBackticks removes fence openers (with their language tag)
// and closing fence markers, leaving the fenced content in place.
func StripTripleBackticks(content string) string {
	content = fenceOpener.ReplaceAllString(content, "")
	return fenceCloser.ReplaceAllString(content, "")
}

// NormalizeIndentation removes leading runs of two or more spaces, or of
// tabs, from every line. Lines inside fenced code blocks are left alone.
func NormalizeIndentation(content string) string {
	return mapOutsideFences(content, func(line string) string {
		return leadingIndent.ReplaceAllString(line, "")
	})
}

// FixEscapes undoes escaping that language models add to markdown:
// \* becomes *, a literal \n becomes a newline, and \\ becomes \.
// Lines inside fenced code blocks are left alone.
func FixEscapes(content string) string {
	return mapOutsideFences(content, func(line string) string {
		line = escapedPunct.ReplaceAllString(line, "$1")
		line = strings.ReplaceAll(line, `\n`, "\n")
		return strings.ReplaceAll(line, `\\`, `\`)
	})
}

// mapOutsideFences applies fn to each line that is not inside a fenced
// code block. Fence delimiter lines themselves are kept verbatim.
func mapOutsideFences(content string, fn func(string) string) string {
	lines := strings.Split(content, "\n")
	inCodeBlock := false

	for i, line := range lines {
		if fencedCodeBlock.MatchString(line) {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}
		lines[i] = fn(line)
	}

	return strings.Join(lines, "\n")
}
