package pipeline

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// CSS classes carried by math containers. The lifecycle manager looks for
// span.math and div.math to decide whether typesetting is needed.
const (
	MathClass        = "math"
	MathDisplayClass = "math-display"
)

var dollars = []byte("$$")

// KindMath is the NodeKind of inline math.
var KindMath = ast.NewNodeKind("Math")

// KindMathBlock is the NodeKind of block math.
var KindMathBlock = ast.NewNodeKind("MathBlock")

// Math is an inline $...$ (or single-line $$...$$) expression.
type Math struct {
	ast.BaseInline
	Expr    []byte
	Display bool
}

// Dump implements ast.Node.
func (n *Math) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Expr": string(n.Expr)}, nil)
}

// Kind implements ast.Node.
func (n *Math) Kind() ast.NodeKind {
	return KindMath
}

// MathBlock is a $$ ... $$ block spanning one or more lines.
type MathBlock struct {
	ast.BaseBlock
	Expr   []byte
	closed bool
}

// Dump implements ast.Node.
func (n *MathBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Expr": string(n.Expr)}, nil)
}

// Kind implements ast.Node.
func (n *MathBlock) Kind() ast.NodeKind {
	return KindMathBlock
}

// IsRaw implements ast.Node. Block content is never parsed as markdown.
func (n *MathBlock) IsRaw() bool {
	return true
}

type inlineMathParser struct{}

// Trigger implements parser.InlineParser.
func (p *inlineMathParser) Trigger() []byte {
	return []byte{'$'}
}

// Parse implements parser.InlineParser.
// An opening $ must be followed by a non-space; the closing $ must not be
// preceded by a space nor followed by a digit ("$5 and $10" stays text).
// Backslash-escaped dollars inside the expression do not close it.
func (p *inlineMathParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if len(line) < 2 {
		return nil
	}

	if line[1] == '$' {
		end := bytes.Index(line[2:], dollars)
		if end < 1 || bytes.ContainsAny(line[2:2+end], "\r\n") {
			return nil
		}
		node := &Math{Expr: copyBytes(line[2 : 2+end]), Display: true}
		block.Advance(end + 4)
		return node
	}

	if isSpace(line[1]) {
		return nil
	}

	for i := 1; i < len(line); i++ {
		switch line[i] {
		case '\n', '\r':
			return nil
		case '\\':
			i++
		case '$':
			if isSpace(line[i-1]) {
				return nil
			}
			if i+1 < len(line) && line[i+1] >= '0' && line[i+1] <= '9' {
				return nil
			}
			node := &Math{Expr: copyBytes(line[1:i])}
			block.Advance(i + 1)
			return node
		}
	}
	return nil
}

type mathBlockParser struct{}

// Trigger implements parser.BlockParser.
func (b *mathBlockParser) Trigger() []byte {
	return []byte{'$'}
}

// Open implements parser.BlockParser.
func (b *mathBlockParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, seg := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || !bytes.HasPrefix(line[pos:], dollars) {
		return nil, parser.NoChildren
	}

	body := line[pos+2:]
	node := &MathBlock{}

	// Single-line form: $$ expr $$ with nothing after the closer.
	if end := bytes.Index(body, dollars); end >= 0 {
		if !util.IsBlank(body[end+2:]) {
			return nil, parser.NoChildren
		}
		node.Expr = copyBytes(bytes.TrimSpace(body[:end]))
		node.closed = true
		return node, parser.NoChildren
	}

	// Without a closing $$ further down, the opener is plain text.
	if !bytes.Contains(reader.Source()[seg.Stop:], dollars) {
		return nil, parser.NoChildren
	}

	if t := bytes.TrimSpace(body); len(t) > 0 {
		node.Expr = append(node.Expr, t...)
		node.Expr = append(node.Expr, '\n')
	}
	return node, parser.NoChildren
}

// Continue implements parser.BlockParser.
func (b *mathBlockParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	n := node.(*MathBlock)
	if n.closed {
		return parser.Close
	}

	line, _ := reader.PeekLine()
	if end := bytes.Index(line, dollars); end >= 0 {
		if t := bytes.TrimSpace(line[:end]); len(t) > 0 {
			n.Expr = append(n.Expr, t...)
		}
		n.Expr = bytes.TrimRight(n.Expr, "\n")
		n.closed = true

		// Consume the closing line up to its newline so it is not reopened.
		newline := 0
		if len(line) > 0 && line[len(line)-1] == '\n' {
			newline = 1
		}
		reader.Advance(len(line) - newline)
		return parser.Close
	}

	n.Expr = append(n.Expr, line...)
	return parser.Continue | parser.NoChildren
}

// Close implements parser.BlockParser.
func (b *mathBlockParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {
	n := node.(*MathBlock)
	n.Expr = bytes.TrimRight(n.Expr, "\n")
}

// CanInterruptParagraph implements parser.BlockParser.
func (b *mathBlockParser) CanInterruptParagraph() bool {
	return true
}

// CanAcceptIndentedLine implements parser.BlockParser.
func (b *mathBlockParser) CanAcceptIndentedLine() bool {
	return false
}

// mathHTMLRenderer writes math nodes as tagged containers holding the
// escaped expression text.
type mathHTMLRenderer struct{}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *mathHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMath, r.renderMath)
	reg.Register(KindMathBlock, r.renderMathBlock)
}

func (r *mathHTMLRenderer) renderMath(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*Math)
	if n.Display {
		_, _ = w.WriteString(`<span class="` + MathClass + ` ` + MathDisplayClass + `">`)
	} else {
		_, _ = w.WriteString(`<span class="` + MathClass + `">`)
	}
	_, _ = w.Write(util.EscapeHTML(n.Expr))
	_, _ = w.WriteString("</span>")
	return ast.WalkSkipChildren, nil
}

func (r *mathHTMLRenderer) renderMathBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*MathBlock)
	_, _ = w.WriteString(`<div class="` + MathClass + `">`)
	_, _ = w.Write(util.EscapeHTML(n.Expr))
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}

type mathExtension struct{}

// Extend implements goldmark.Extender.
func (e *mathExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithBlockParsers(util.Prioritized(&mathBlockParser{}, 750)),
		parser.WithInlineParsers(util.Prioritized(&inlineMathParser{}, 500)),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(util.Prioritized(&mathHTMLRenderer{}, 500)),
	)
}

// MathExtension tags $...$ and $$...$$ during parsing, so escaped dollars
// and dollars inside code spans or code blocks are never treated as math.
var MathExtension goldmark.Extender = &mathExtension{}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
