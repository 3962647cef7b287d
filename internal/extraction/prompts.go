package extraction

import (
	"regexp"
	"strings"
)

// PromptTemplates holds the prompts sent with every extraction.
type PromptTemplates struct {
	SystemPrompt string
	UserTemplate string
}

// NewPromptTemplates returns the product extraction prompts.
func NewPromptTemplates() *PromptTemplates {
	return &PromptTemplates{
		SystemPrompt: buildSystemPrompt(),
		UserTemplate: buildUserTemplate(),
	}
}

func buildSystemPrompt() string {
	return `You convert manufacturer product information into structured content for an online store.

Output ONLY a JSON object with exactly these four keys:

{
  "specs": [
    {"heading": "Section name", "lines": [{"title": "Attribute", "text": "Value"}]}
  ],
  "highlights": ["Short selling point"],
  "included": [{"title": "Item in the box", "link": "optional URL"}],
  "featured": [{"title": "Headline attribute", "value": "Value"}]
}

Rules:
- specs: group technical specifications under the headings the manufacturer uses (e.g. "Sensor", "Video", "Connectivity"). Every line needs a title and a text value.
- highlights: 3 to 8 concise selling points written as plain sentences or phrases, no marketing superlatives.
- included: items that ship in the box. Use a link only when the source gives one.
- featured: the 3 to 6 attributes a shopper compares first, with short values.
- Copy values exactly as written in the source, including units. Never invent values.
- Use an empty array for any section the source does not cover.
- Do not wrap the JSON in markdown.`
}

func buildUserTemplate() string {
	return `Extract the product content from the following source text.

SOURCE TEXT:
{{text}}`
}

// BuildUserPrompt embeds the source text in the user template.
func (p *PromptTemplates) BuildUserPrompt(text string) string {
	return strings.Replace(p.UserTemplate, "{{text}}", text, 1)
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")
	rawJSON    = regexp.MustCompile("(?s)^\\s*(\\{.*\\})\\s*$")
)

// extractJSON strips markdown fences some models add despite instructions.
func extractJSON(content string) string {
	if m := fencedJSON.FindStringSubmatch(content); len(m) > 1 {
		return m[1]
	}
	if m := rawJSON.FindStringSubmatch(content); len(m) > 1 {
		return m[1]
	}
	return strings.TrimSpace(content)
}
