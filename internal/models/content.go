package models

// ProductContent is the structured document produced by AI extraction and
// stored as product metafields.
type ProductContent struct {
	Specs      []SpecGroup    `json:"specs"`
	Highlights []string       `json:"highlights"`
	Included   []IncludedItem `json:"included"`
	Featured   []FeaturedSpec `json:"featured"`
}

// SpecGroup is a headed block of specification lines, e.g. "Sensor".
type SpecGroup struct {
	Heading string     `json:"heading"`
	Lines   []SpecLine `json:"lines"`
}

// SpecLine is a single title/text row inside a SpecGroup.
type SpecLine struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// IncludedItem is something shipped in the box.
type IncludedItem struct {
	Title string `json:"title"`
	Link  string `json:"link,omitempty"`
}

// FeaturedSpec is a headline specification shown prominently.
type FeaturedSpec struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// EmptyProductContent returns a document whose four fields are empty, non-nil slices.
func EmptyProductContent() ProductContent {
	return ProductContent{
		Specs:      []SpecGroup{},
		Highlights: []string{},
		Included:   []IncludedItem{},
		Featured:   []FeaturedSpec{},
	}
}

// IsEmpty reports whether all four fields are empty.
func (c ProductContent) IsEmpty() bool {
	return len(c.Specs) == 0 && len(c.Highlights) == 0 && len(c.Included) == 0 && len(c.Featured) == 0
}

// WithDefaults returns a copy with nil fields replaced by empty slices so the
// document always encodes as arrays.
func (c ProductContent) WithDefaults() ProductContent {
	if c.Specs == nil {
		c.Specs = []SpecGroup{}
	}
	if c.Highlights == nil {
		c.Highlights = []string{}
	}
	if c.Included == nil {
		c.Included = []IncludedItem{}
	}
	if c.Featured == nil {
		c.Featured = []FeaturedSpec{}
	}
	return c
}

// Counts summarises the document for logging.
func (c ProductContent) Counts() map[string]int {
	lines := 0
	for _, g := range c.Specs {
		lines += len(g.Lines)
	}
	return map[string]int{
		"spec_groups": len(c.Specs),
		"spec_lines":  lines,
		"highlights":  len(c.Highlights),
		"included":    len(c.Included),
		"featured":    len(c.Featured),
	}
}
