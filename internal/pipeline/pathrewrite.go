package pipeline

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// resolveFunc maps a relative reference to its rewritten form.
// Returning false leaves the attribute untouched.
type resolveFunc func(ref string) (string, bool)

// RewriteRelativeLinks prefixes relative image and link references with
// urlPrefix (for example "../docs/"), for pages written away from the
// document they were rendered from. References escaping the document
// directory are left alone. If urlPrefix is empty, returns the HTML unchanged.
func RewriteRelativeLinks(htmlContent, urlPrefix string) (string, error) {
	if urlPrefix == "" {
		return htmlContent, nil
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}

	return rewriteRefs(htmlContent, func(ref string) (string, bool) {
		u, err := url.Parse(ref)
		if err != nil || u.Path == "" {
			return "", false
		}
		cleaned := path.Clean(u.Path)
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return "", false
		}
		u.Path = cleaned
		return urlPrefix + strings.TrimPrefix(u.String(), "./"), true
	})
}

func rewriteRefs(htmlContent string, resolve resolveFunc) (string, error) {
	doc, isFragment, err := parseHTML(htmlContent)
	if err != nil {
		return "", err
	}

	rewriteNode(doc, resolve)

	return renderHTML(doc, isFragment)
}

// parseHTML parses HTML content, handling both full documents and fragments.
// Returns the parsed node, whether it was a fragment, and any error.
func parseHTML(content string) (*html.Node, bool, error) {
	trimmed := strings.ToLower(strings.TrimSpace(content))

	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		doc, err := html.Parse(strings.NewReader(content))
		return doc, false, err
	}

	// Fragment: parse with body context to avoid wrapping
	body := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Body,
		Data:     "body",
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, true, err
	}

	container := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	return container, true, nil
}

// renderHTML renders the document back to string.
// For fragments, only renders the children (avoids adding <html><body> wrapper).
func renderHTML(doc *html.Node, isFragment bool) (string, error) {
	var buf strings.Builder

	if !isFragment {
		if err := html.Render(&buf, doc); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func rewriteNode(n *html.Node, resolve resolveFunc) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Img:
			rewriteAttr(n, "src", resolve)
		case atom.A:
			rewriteAttr(n, "href", resolve)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteNode(c, resolve)
	}
}

func rewriteAttr(n *html.Node, attrName string, resolve resolveFunc) {
	for i, attr := range n.Attr {
		if attr.Key != attrName || !isRelativePath(attr.Val) {
			continue
		}
		if v, ok := resolve(attr.Val); ok {
			n.Attr[i].Val = v
		}
	}
}

// isRelativePath returns true if the reference should be rewritten.
func isRelativePath(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return false
	}

	// Any scheme (http, https, file, data, mailto, javascript...)
	if u, err := url.Parse(ref); err != nil || u.Scheme != "" {
		return false
	}

	return !filepath.IsAbs(ref) && !strings.HasPrefix(ref, "/")
}
