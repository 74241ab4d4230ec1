package catalog

// Option is one entry of a rendered select control.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Selector tracks the two-level category/source selection of one form.
// It is not safe for concurrent use; the owning form serialises access.
type Selector struct {
	catalog  Catalog
	category string
	sources  []string
}

func NewSelector(c Catalog) *Selector {
	s := &Selector{catalog: c}
	if !c.Empty() {
		s.OnCategoryChange(c[0].Slug())
	}
	return s
}

// OnCategoryChange recomputes the source list for categorySlug.
func (s *Selector) OnCategoryChange(categorySlug string) {
	s.category = categorySlug
	s.sources = nil
	if categorySlug == "" {
		return
	}
	if category, ok := s.catalog.Lookup(categorySlug); ok {
		s.sources = append([]string(nil), category.Sources...)
	}
}

func (s *Selector) Enabled() bool {
	return !s.catalog.Empty()
}

func (s *Selector) Category() string {
	return s.category
}

// DefaultSource is the slug of the first source, or empty.
func (s *Selector) DefaultSource() string {
	if len(s.sources) == 0 {
		return ""
	}
	return Slugify(s.sources[0])
}

func (s *Selector) HasSource(sourceSlug string) bool {
	for _, source := range s.sources {
		if Slugify(source) == sourceSlug {
			return true
		}
	}
	return false
}

func (s *Selector) CategoryOptions() []Option {
	options := make([]Option, 0, len(s.catalog))
	for _, category := range s.catalog {
		options = append(options, Option{Label: category.Name, Value: category.Slug()})
	}
	return options
}

func (s *Selector) SourceOptions() []Option {
	options := make([]Option, 0, len(s.sources))
	for _, source := range s.sources {
		options = append(options, Option{Label: source, Value: Slugify(source)})
	}
	return options
}
