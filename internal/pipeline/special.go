package pipeline

import "context"

// SpecialBlockStage runs between parsing and sanitizing. Diagram fences are
// detected on the live document by the lifecycle diagram pass, after the
// sanitizer has kept their <pre><code class="language-mermaid"> markup, so
// the default stage returns its input unchanged.
type SpecialBlockStage interface {
	ProcessSpecialBlocks(ctx context.Context, htmlContent string) string
}

// DeferredSpecialBlocks is the default SpecialBlockStage.
type DeferredSpecialBlocks struct{}

// ProcessSpecialBlocks returns htmlContent unchanged.
func (DeferredSpecialBlocks) ProcessSpecialBlocks(_ context.Context, htmlContent string) string {
	return htmlContent
}
