package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func labels(options []Option) []string {
	out := make([]string, 0, len(options))
	for _, option := range options {
		out = append(out, option.Label)
	}
	return out
}

func TestNewSelectorStartsOnFirstCategory(t *testing.T) {
	s := NewSelector(sample(t))
	assert.True(t, s.Enabled())
	assert.Equal(t, "movies", s.Category())
	assert.Equal(t, []string{"BluRay", "WEB-DL"}, labels(s.SourceOptions()))
	assert.Equal(t, "bluray", s.DefaultSource())
}

func TestOnCategoryChangeYieldsCatalogSources(t *testing.T) {
	c := sample(t)
	s := NewSelector(c)
	for _, category := range c {
		s.OnCategoryChange(Slugify(category.Name))
		if len(category.Sources) == 0 {
			assert.Empty(t, labels(s.SourceOptions()), category.Name)
			assert.Equal(t, "", s.DefaultSource(), category.Name)
			continue
		}
		assert.Equal(t, category.Sources, labels(s.SourceOptions()), category.Name)
	}
}

func TestOnCategoryChangeUnknownClearsSources(t *testing.T) {
	s := NewSelector(sample(t))
	s.OnCategoryChange("does-not-exist")
	assert.Empty(t, labels(s.SourceOptions()))
	assert.Equal(t, "does-not-exist", s.Category())

	s.OnCategoryChange("")
	assert.Empty(t, labels(s.SourceOptions()))
}

func TestEmptyCatalogDisablesSelection(t *testing.T) {
	s := NewSelector(Catalog{})
	assert.False(t, s.Enabled())
	assert.Equal(t, "", s.Category())
	assert.Empty(t, s.CategoryOptions())
	assert.Empty(t, s.SourceOptions())
}

func TestSourcesAreCopies(t *testing.T) {
	c := sample(t)
	s := NewSelector(c)
	got := s.SourceOptions()
	got[0].Label = "mutated"
	assert.Equal(t, "BluRay", c[0].Sources[0])
	assert.Equal(t, "BluRay", s.SourceOptions()[0].Label)
}

func TestOptions(t *testing.T) {
	s := NewSelector(sample(t))
	s.OnCategoryChange("tv-shows")
	assert.Equal(t, []Option{{Label: "HDTV", Value: "hdtv"}, {Label: "WEB", Value: "web"}}, s.SourceOptions())
	assert.Equal(t, Option{Label: "TV Shows", Value: "tv-shows"}, s.CategoryOptions()[1])
	assert.True(t, s.HasSource("web"))
	assert.False(t, s.HasSource("bluray"))
}
