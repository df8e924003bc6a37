// Package pipeline implements the DOM-agnostic half of markdown rendering.
//
// Stages, in the order the renderer runs them:
//   - Markdown preprocessing (optional cleanup of generative-model output)
//   - Markdown to HTML conversion via Goldmark, with math tagged at parse time
//   - Special-block stage (diagram detection is deferred to the live document)
//   - Sanitization via bluemonday
//   - Regex math tagging, when parse-time math is disabled
//
// Work that needs a live document (highlighting, copy buttons, diagrams and
// math typesetting) is handled by the root mdrender package on a goquery
// page. This split keeps the pipeline usable for static output.
package pipeline
