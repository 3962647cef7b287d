package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ContentFields lists the four top-level keys of a ProductContent document in
// storage order.
var ContentFields = []string{"specs", "highlights", "included", "featured"}

// FieldTypeError reports a top-level field that is present but not an array.
type FieldTypeError struct {
	Field string
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q must be an array", e.Field)
}

// DecodeContentObject splits a JSON object into its raw top-level members.
// It fails when the payload is not a JSON object.
func DecodeContentObject(data []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	return obj, nil
}

// NormalizeContent builds a ProductContent from raw top-level members.
//
// A field is kept only when it is a JSON array; with strict set, a field that
// is missing or not an array yields a *FieldTypeError. Individual elements
// failing their shape check are dropped.
func NormalizeContent(obj map[string]json.RawMessage, strict bool) (ProductContent, error) {
	content := EmptyProductContent()

	for _, field := range ContentFields {
		items, ok := rawArray(obj[field])
		if !ok {
			if strict {
				return ProductContent{}, &FieldTypeError{Field: field}
			}
			continue
		}

		switch field {
		case "specs":
			content.Specs = normalizeSpecs(items)
		case "highlights":
			content.Highlights = normalizeHighlights(items)
		case "included":
			content.Included = normalizeIncluded(items)
		case "featured":
			content.Featured = normalizeFeatured(items)
		}
	}

	return content, nil
}

func rawArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func normalizeHighlights(items []json.RawMessage) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeSpecs(items []json.RawMessage) []SpecGroup {
	out := make([]SpecGroup, 0, len(items))
	for _, item := range items {
		var raw struct {
			Heading json.RawMessage   `json:"heading"`
			Lines   []json.RawMessage `json:"lines"`
		}
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		heading, ok := scalarString(raw.Heading)
		if !ok || heading == "" {
			continue
		}

		lines := make([]SpecLine, 0, len(raw.Lines))
		for _, lineRaw := range raw.Lines {
			var line struct {
				Title json.RawMessage `json:"title"`
				Text  json.RawMessage `json:"text"`
			}
			if err := json.Unmarshal(lineRaw, &line); err != nil {
				continue
			}
			title, okTitle := scalarString(line.Title)
			text, okText := scalarString(line.Text)
			if !okTitle || !okText || title == "" || text == "" {
				continue
			}
			lines = append(lines, SpecLine{Title: title, Text: text})
		}
		if len(lines) == 0 {
			continue
		}
		out = append(out, SpecGroup{Heading: heading, Lines: lines})
	}
	return out
}

func normalizeIncluded(items []json.RawMessage) []IncludedItem {
	out := make([]IncludedItem, 0, len(items))
	for _, item := range items {
		var raw struct {
			Title json.RawMessage `json:"title"`
			Link  json.RawMessage `json:"link"`
		}
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		title, ok := scalarString(raw.Title)
		if !ok || title == "" {
			continue
		}
		link, _ := scalarString(raw.Link)
		out = append(out, IncludedItem{Title: title, Link: link})
	}
	return out
}

func normalizeFeatured(items []json.RawMessage) []FeaturedSpec {
	out := make([]FeaturedSpec, 0, len(items))
	for _, item := range items {
		var raw struct {
			Title json.RawMessage `json:"title"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		title, okTitle := scalarString(raw.Title)
		value, okValue := scalarString(raw.Value)
		if !okTitle || !okValue || title == "" || value == "" {
			continue
		}
		out = append(out, FeaturedSpec{Title: title, Value: value})
	}
	return out
}

// scalarString accepts JSON strings and numbers; models regularly emit
// numeric spec values such as {"value": 24}.
func scalarString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := n.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
	}
	return "", false
}
