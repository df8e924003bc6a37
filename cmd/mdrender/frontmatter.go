package main

import (
	"strings"

	"github.com/alnah/go-mdrender/internal/yamlutil"
)

// frontMatter is the document metadata a markdown file may open with.
// Other keys are ignored.
type frontMatter struct {
	Title string `yaml:"title"`
	Lang  string `yaml:"lang"`
}

const frontMatterFence = "---"

// splitFrontMatter separates a leading YAML block fenced by "---" lines
// from the markdown body. Without a closed block, or when the block does
// not parse, the input is returned unchanged with empty metadata.
func splitFrontMatter(markdown string) (frontMatter, string) {
	var meta frontMatter

	text := strings.TrimPrefix(markdown, "\ufeff")
	first, rest, ok := strings.Cut(text, "\n")
	if !ok || strings.TrimRight(first, " \r") != frontMatterFence {
		return meta, markdown
	}

	var block []string
	for {
		line, tail, more := strings.Cut(rest, "\n")
		if strings.TrimRight(line, " \r") == frontMatterFence {
			if len(block) > 0 {
				if err := yamlutil.Unmarshal([]byte(strings.Join(block, "\n")), &meta); err != nil {
					return frontMatter{}, markdown
				}
			}
			return meta, tail
		}
		if !more {
			return frontMatter{}, markdown
		}
		block = append(block, strings.TrimRight(line, "\r"))
		rest = tail
	}
}
