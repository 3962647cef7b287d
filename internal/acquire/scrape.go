package acquire

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/html"

	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/validation"
)

const (
	// MaxScrapeChars bounds the text kept from a page.
	MaxScrapeChars = 30000

	minElementChars = 50
	enoughChars     = 500
)

// notWrapper keeps substring class matches off the document containers;
// themes put state classes such as has-mega-menu on <body>.
const notWrapper = ":not(html):not(body):not(main):not(article)"

// boilerplateSelectors are removed before any text is read.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "iframe", "svg", "template",
	"nav", "header", "footer", "form", "aside",
	"[role='navigation']", "[role='banner']", "[role='contentinfo']", "[aria-hidden='true']",
	"[class*='cookie']" + notWrapper, "[id*='cookie']" + notWrapper,
	"[class*='newsletter']" + notWrapper, "[id*='newsletter']" + notWrapper,
	"[class*='breadcrumb']" + notWrapper,
	"[class*='menu']" + notWrapper, "[id*='menu']" + notWrapper,
	"[class*='modal']" + notWrapper, "[class*='popup']" + notWrapper,
}

// selectorTiers are consulted in order. The last tier covers whole-page
// containers and only runs when nothing more specific matched.
var selectorTiers = [][]string{
	{
		"#specifications", "#specs", "#tech-specs",
		".specifications", ".specs", ".tech-specs", ".product-specs",
		"[class*='specification']", "[id*='specification']",
		"[class*='tech-spec']", "[data-section*='spec']",
	},
	{
		"[itemprop='description']",
		"#product-description", ".product-description",
		"[class*='product-detail']", "[class*='product-info']",
		"[class*='features']", "[id*='features']",
		"[class*='overview']", ".description",
	},
	{
		"main", "article", "[role='main']", "body",
	},
}

var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {}, "main": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"ul": {}, "ol": {}, "li": {}, "dl": {}, "dt": {}, "dd": {},
	"table": {}, "tr": {}, "br": {}, "hr": {},
	"figure": {}, "figcaption": {}, "blockquote": {}, "pre": {},
}

// ScraperOptions configures the result cache.
type ScraperOptions struct {
	CacheSize int
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// Scraper fetches product pages and reduces them to specification text.
type Scraper struct {
	fetcher Fetcher
	cache   *expirable.LRU[string, models.ScrapeResult]
	logger  *slog.Logger
}

// NewScraper builds a Scraper. A zero CacheSize disables caching.
func NewScraper(fetcher Fetcher, opts ScraperOptions) *Scraper {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Scraper{fetcher: fetcher, logger: opts.Logger}
	if opts.CacheSize > 0 {
		s.cache = expirable.NewLRU[string, models.ScrapeResult](opts.CacheSize, nil, opts.CacheTTL)
	}
	return s
}

// Scrape validates rawURL, downloads the page and extracts its product text.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (models.ScrapeResult, error) {
	pageURL, err := validation.ValidateURL(rawURL)
	if err != nil {
		return models.ScrapeResult{}, err
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(pageURL); ok {
			s.logger.Debug("scrape cache hit", "url", pageURL)
			return cached, nil
		}
	}

	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return models.ScrapeResult{}, err
	}

	result, err := ParsePage(pageURL, page.Body)
	if err != nil {
		return models.ScrapeResult{}, err
	}

	s.logger.Info("page scraped",
		"url", pageURL,
		"final_url", page.FinalURL,
		"chars", utf8.RuneCountInString(result.Text),
		"manufacturer", result.Manufacturer,
	)

	if s.cache != nil {
		s.cache.Add(pageURL, result)
	}
	return result, nil
}

// ParsePage extracts title, manufacturer and specification text from an
// HTML document.
func ParsePage(pageURL string, body []byte) (models.ScrapeResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.ScrapeResult{}, models.NewUserError(models.CodeURLScrapeFailed, "The page could not be parsed.").
			WithSuggestion("Paste the specifications as text instead.")
	}

	title := pageTitle(doc)

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}

	tableText := extractTables(doc)
	doc.Find("table, dl").Remove()

	sections := collectTiers(doc, selectorTiers[:len(selectorTiers)-1])
	if tableText == "" && len(sections) == 0 {
		sections = collectTiers(doc, selectorTiers[len(selectorTiers)-1:])
	}

	parts := make([]string, 0, len(sections)+1)
	if tableText != "" {
		parts = append(parts, tableText)
	}
	parts = append(parts, sections...)

	text := normalizeWhitespace(strings.Join(parts, "\n"))
	// Spec rows are dense, so any table text is enough; loose prose needs
	// the same floor as pasted text.
	if text == "" || (tableText == "" && utf8.RuneCountInString(text) < validation.MinTextChars) {
		return models.ScrapeResult{}, models.NewUserError(models.CodeURLNoContent, "No product information was found on the page.").
			WithSuggestion("The page may load its content with JavaScript. Copy the specifications and paste them as text.")
	}
	text, _ = truncate(text, MaxScrapeChars)

	var manufacturer string
	if u, err := url.Parse(pageURL); err == nil {
		manufacturer = manufacturerFromHost(u.Hostname())
	}

	return models.ScrapeResult{
		Title:        title,
		Text:         text,
		URL:          pageURL,
		Manufacturer: manufacturer,
	}, nil
}

func pageTitle(doc *goquery.Document) string {
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find("meta[property='og:title']").First().Attr("content"); ok {
		if t = collapse(t); t != "" {
			return t
		}
	}
	return collapse(doc.Find("h1").First().Text())
}

// extractTables renders every two-or-more column row as "label: value".
// Definition lists get the same treatment.
func extractTables(doc *goquery.Document) string {
	var lines []string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("th, td")
		if cells.Length() < 2 {
			return
		}
		label := collapse(cells.First().Text())
		values := make([]string, 0, cells.Length()-1)
		cells.Slice(1, cells.Length()).Each(func(_ int, cell *goquery.Selection) {
			if v := collapse(cell.Text()); v != "" {
				values = append(values, v)
			}
		})
		if label == "" || len(values) == 0 {
			return
		}
		lines = append(lines, strings.TrimSuffix(label, ":")+": "+strings.Join(values, " "))
	})

	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		var label string
		dl.Children().Each(func(_ int, item *goquery.Selection) {
			switch goquery.NodeName(item) {
			case "dt":
				label = collapse(item.Text())
			case "dd":
				if v := collapse(item.Text()); label != "" && v != "" {
					lines = append(lines, strings.TrimSuffix(label, ":")+": "+v)
				}
			}
		})
	})

	return strings.Join(lines, "\n")
}

// collectTiers gathers distinct element texts longer than minElementChars,
// stopping once enoughChars have been collected.
func collectTiers(doc *goquery.Document, tiers [][]string) []string {
	var (
		out   []string
		total int
	)
	for _, tier := range tiers {
		for _, sel := range tier {
			doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				text := normalizeWhitespace(blockText(s))
				n := utf8.RuneCountInString(text)
				if n <= minElementChars || covered(out, text) {
					return true
				}
				out = append(out, text)
				total += n
				return total < enoughChars
			})
			if total >= enoughChars {
				return out
			}
		}
	}
	return out
}

// covered reports whether text and any collected section contain one another.
func covered(collected []string, text string) bool {
	for _, c := range collected {
		if strings.Contains(c, text) || strings.Contains(text, c) {
			return true
		}
	}
	return false
}

// blockText renders a selection's text with line breaks at block elements.
func blockText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if _, ok := blockTags[n.Data]; ok {
				b.WriteByte('\n')
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
