// Package catalog holds the static category to source mapping offered on the
// upload form and the cascading selection built on top of it.
package catalog

import (
	"fmt"
	"os"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// Slugify normalises a display label into the value submitted for it.
func Slugify(label string) string {
	return slug.Make(label)
}

type Category struct {
	Name    string
	Sources []string
}

// Slug is the category's submitted value.
func (c Category) Slug() string {
	return Slugify(c.Name)
}

// Catalog is ordered: the first category is the form's initial selection.
type Catalog []Category

// UnmarshalYAML reads a mapping of category name to source list, keeping
// the mapping's order.
func (c *Catalog) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*c = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("catalog: expected a mapping, got line %d", value.Line)
	}
	out := make(Catalog, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, sourcesNode := value.Content[i], value.Content[i+1]
		var sources []string
		if sourcesNode.Kind != yaml.ScalarNode || sourcesNode.Tag != "!!null" {
			if err := sourcesNode.Decode(&sources); err != nil {
				return fmt.Errorf("catalog: sources for %q: %w", keyNode.Value, err)
			}
		}
		out = append(out, Category{Name: keyNode.Value, Sources: sources})
	}
	*c = out
	return nil
}

// Load reads a catalog file. A missing path yields an empty catalog.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Catalog{}, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(contents)
}

func Parse(contents []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if c == nil {
		c = Catalog{}
	}
	return c, nil
}

func (c Catalog) Empty() bool {
	return len(c) == 0
}

// Lookup finds the first category whose slug equals categorySlug.
func (c Catalog) Lookup(categorySlug string) (Category, bool) {
	for _, category := range c {
		if category.Slug() == categorySlug {
			return category, true
		}
	}
	return Category{}, false
}

// Allows reports whether sourceSlug is permitted for categorySlug. With an
// empty catalog both values must be empty.
func (c Catalog) Allows(categorySlug, sourceSlug string) bool {
	if c.Empty() {
		return categorySlug == "" && sourceSlug == ""
	}
	category, ok := c.Lookup(categorySlug)
	if !ok {
		return false
	}
	if len(category.Sources) == 0 {
		return sourceSlug == ""
	}
	for _, source := range category.Sources {
		if Slugify(source) == sourceSlug {
			return true
		}
	}
	return false
}
