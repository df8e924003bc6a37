package mdrender

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/net/html"
)

// Default chroma styles per theme.
const (
	DefaultLightStyle = "github"
	DefaultDarkStyle  = "monokai"
)

// highlightedAttr marks code blocks already highlighted.
const highlightedAttr = "data-highlighted"

const languagePrefix = "language-"

// formatter emits class-based markup without a surrounding <pre>, so the
// existing <pre><code> structure is kept.
var formatter = chromahtml.New(
	chromahtml.WithClasses(true),
	chromahtml.PreventSurroundingPre(true),
)

// HighlightCSS returns the stylesheet for a chroma style name.
// Unknown names fall back to chroma's default style.
func HighlightCSS(styleName string) (string, error) {
	var buf strings.Builder
	if err := formatter.WriteCSS(&buf, styles.Get(styleName)); err != nil {
		return "", fmt.Errorf("writing %s highlight CSS: %w", styleName, err)
	}
	return buf.String(), nil
}

// styleFor returns the configured style, or the theme default.
func styleFor(configured string, theme Theme) string {
	if configured != "" {
		return configured
	}
	if theme.IsDark() {
		return DefaultDarkStyle
	}
	return DefaultLightStyle
}

// codeLanguage extracts the language from a language-* class.
func codeLanguage(code *goquery.Selection) string {
	class, _ := code.Attr("class")
	for _, c := range strings.Fields(class) {
		if strings.HasPrefix(c, languagePrefix) {
			return strings.TrimPrefix(c, languagePrefix)
		}
	}
	return ""
}

// isHighlighted reports whether a code block was highlighted by a previous
// pass or at parse time.
func isHighlighted(code *goquery.Selection) bool {
	if _, ok := code.Attr(highlightedAttr); ok {
		return true
	}
	return code.Parent().HasClass("chroma")
}

// highlightBlock replaces the text of a <code> element with chroma markup.
// The language comes from its class, or is guessed from the content.
func highlightBlock(code *goquery.Selection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("highlighter panic: %v", r)
		}
	}()

	source := code.Text()
	lexer := lexers.Get(codeLanguage(code))
	if lexer == nil {
		lexer = lexers.Analyse(source)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return fmt.Errorf("tokenising: %w", err)
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, styles.Fallback, iterator); err != nil {
		return fmt.Errorf("formatting: %w", err)
	}

	code.SetHtml(buf.String())
	code.SetAttr(highlightedAttr, "yes")
	code.Parent().AddClass("chroma")
	return nil
}

// setStyleSheet writes css into the <style> tagged key under parent,
// creating it when missing and replacing its text otherwise.
func setStyleSheet(parent *goquery.Selection, key, css string) {
	if ensureStyle(parent, key, css) {
		return
	}
	existing := parent.Find("style[" + injectedAttr + `="` + key + `"]`).First()
	if existing.Length() == 0 || existing.Text() == css {
		return
	}
	n := existing.Nodes[0]
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: css})
}

// styleScope returns where a container's styles belong: its shadow root
// when it lives in one, the document head otherwise.
func styleScope(doc *goquery.Document, container *goquery.Selection) *goquery.Selection {
	if root := container.Closest("template[shadowrootmode]"); root.Length() > 0 {
		return root
	}
	return headOf(doc)
}
