package render

import "strings"

// Markdown renders markdown content for terminal display using a cached
// renderer.
func Markdown(content string, opts Options) (string, error) {
	renderer, err := renderers.get(opts)
	if err != nil {
		return "", err
	}
	return renderer.render(content)
}

// MarkdownOrPlain renders content, falling back to the raw text when
// rendering fails. Streaming replies are often incomplete markdown.
func MarkdownOrPlain(content string, opts Options) string {
	out, err := Markdown(content, opts)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
