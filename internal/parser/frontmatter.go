package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the YAML header of a spec document.
type frontmatter struct {
	Name  string `yaml:"name"`
	Order int    `yaml:"order"`
}

// parseFrontmatter splits a document into its YAML header and body. A
// document without a header, or with a malformed delimiter, is treated as
// all body.
func parseFrontmatter(content []byte) (frontmatter, string, error) {
	str := string(content)

	if !strings.HasPrefix(str, "---\n") {
		return frontmatter{}, str, nil
	}

	end := strings.Index(str[4:], "\n---")
	if end == -1 {
		return frontmatter{}, str, nil
	}

	header := str[4 : 4+end]
	body := str[4+end+4:]
	body = strings.TrimPrefix(body, "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return frontmatter{}, "", fmt.Errorf("frontmatter: %w", err)
	}

	return fm, body, nil
}
