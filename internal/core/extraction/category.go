package extraction

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCategoryRules []byte

type categoryFile struct {
	Categories []struct {
		Name     string   `yaml:"name"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"categories"`
}

// CategoryMatcher suggests a category from an ordered keyword table.
type CategoryMatcher struct {
	rules []Rule[struct{}]
}

// DefaultCategoryMatcher returns the matcher built from the embedded table.
func DefaultCategoryMatcher() *CategoryMatcher {
	matcher, err := LoadCategoryMatcher(bytes.NewReader(defaultCategoryRules))
	if err != nil {
		panic(fmt.Sprintf("embedded category rules: %v", err))
	}
	return matcher
}

// CategoryMatcherFromFile loads the table at path, or the embedded table when
// path is empty.
func CategoryMatcherFromFile(path string) (*CategoryMatcher, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCategoryMatcher(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open category rules: %w", err)
	}
	defer f.Close()
	return LoadCategoryMatcher(f)
}

func LoadCategoryMatcher(r io.Reader) (*CategoryMatcher, error) {
	var file categoryFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode category rules: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("category rules: no categories defined")
	}

	rules := make([]Rule[struct{}], 0, len(file.Categories))
	for _, category := range file.Categories {
		name := strings.TrimSpace(category.Name)
		if name == "" || len(category.Patterns) == 0 {
			return nil, fmt.Errorf("category rules: category %q needs a name and patterns", category.Name)
		}
		pattern, err := regexp.Compile(`(?i)(?:` + strings.Join(category.Patterns, "|") + `)`)
		if err != nil {
			return nil, fmt.Errorf("compile patterns for %s: %w", name, err)
		}
		rules = append(rules, Rule[struct{}]{Name: name, Detect: matches(pattern)})
	}
	return &CategoryMatcher{rules: rules}, nil
}

// Suggest returns the first category whose patterns match the merchant and
// free text together, or nil.
func (m *CategoryMatcher) Suggest(merchant *string, text string) *string {
	combined := text
	if merchant != nil {
		combined = *merchant + " " + text
	}
	combined = strings.TrimSpace(combined)
	if combined == "" {
		return nil
	}
	_, name, ok := FirstMatch(m.rules, combined)
	if !ok {
		return nil
	}
	return &name
}

// Categories lists the category names in precedence order.
func (m *CategoryMatcher) Categories() []string {
	names := make([]string, 0, len(m.rules))
	for _, rule := range m.rules {
		names = append(names, rule.Name)
	}
	return names
}
