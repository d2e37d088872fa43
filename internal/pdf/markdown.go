package pdf

import "strings"

// RenderMarkdown formats extracted paper text as a markdown document with
// the title as a top-level heading.
func RenderMarkdown(title, body string) string {
	var sb strings.Builder
	title = strings.TrimSpace(title)
	if title != "" {
		sb.WriteString("# ")
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n")
	return sb.String()
}

// AbstractMarkdown synthesizes a minimal markdown document from a paper's
// title and abstract, for papers with no usable PDF text.
func AbstractMarkdown(title, abstract string) string {
	var sb strings.Builder
	title = strings.TrimSpace(title)
	if title != "" {
		sb.WriteString("# ")
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Abstract\n\n")
	sb.WriteString(strings.TrimSpace(abstract))
	sb.WriteString("\n")
	return sb.String()
}
