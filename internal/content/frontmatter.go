package content

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// meta is the frontmatter a page may declare.
type meta struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Missing or invalid frontmatter leaves the whole
// input as body.
func splitFrontmatter(data []byte) (meta, []byte) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return meta{}, data
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return meta{}, data
	}

	var m meta
	if err := yaml.Unmarshal(rest[:idx], &m); err != nil {
		return meta{}, data
	}
	body := bytes.TrimLeft(rest[idx+1+len(delim):], "\n\r")
	return m, body
}

// deriveTitle prefers the frontmatter title, then the first H1 heading.
func deriveTitle(m meta, body []byte) string {
	if m.Title != "" {
		return m.Title
	}
	for _, line := range strings.Split(string(body), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
