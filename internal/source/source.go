// Package source describes the searchable sites and how candidate article
// links are pulled out of each site's search-results page.
package source

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxLinks bounds the links any rule returns for one page.
const MaxLinks = 5

// ErrInvalidURL is returned for site URLs that are not http(s) URLs with a host.
var ErrInvalidURL = errors.New("source: invalid site url")

// Rule selects the extraction strategy for a source.
type Rule int

const (
	// RuleNone yields no links. Custom sources use it.
	RuleNone Rule = iota
	RuleRealPython
	RuleMedium
	RuleStackOverflow
)

func (r Rule) String() string {
	switch r {
	case RuleRealPython:
		return "realpython"
	case RuleMedium:
		return "medium"
	case RuleStackOverflow:
		return "stackoverflow"
	default:
		return "none"
	}
}

// Source is one searchable site. Template holds a single "{}" slot for the
// encoded query.
type Source struct {
	Name     string
	Template string
	Rule     Rule
}

// SearchURL renders the template for query, with spaces encoded as '+'.
func (s Source) SearchURL(query string) string {
	return strings.Replace(s.Template, "{}", strings.ReplaceAll(query, " ", "+"), 1)
}

// Prefix is the template up to the query slot, the form stored in site lists.
func (s Source) Prefix() string {
	prefix, _, _ := strings.Cut(s.Template, "{}")
	return prefix
}

// Origin returns scheme://host of the template.
func (s Source) Origin() string {
	u, err := url.Parse(s.Prefix())
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Extract applies the source's rule to a parsed results page.
func (s Source) Extract(doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	extract, ok := extractors[s.Rule]
	if !ok {
		return nil
	}
	return extract(doc)
}

// ExtractHTML parses body and applies the source's rule.
func (s Source) ExtractHTML(body io.Reader) ([]string, error) {
	if s.Rule == RuleNone {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("source: parse %s results: %w", s.Name, err)
	}
	return s.Extract(doc), nil
}

var extractors = map[Rule]func(*goquery.Document) []string{
	RuleRealPython:    prefixed(".card-title a", "https://realpython.com"),
	RuleMedium:        medium,
	RuleStackOverflow: prefixed(".s-post-summary--content .s-link", "https://stackoverflow.com"),
}

// prefixed takes the first MaxLinks anchors matching selector and joins their
// href onto origin. Anchors without href still use up a slot.
func prefixed(selector, origin string) func(*goquery.Document) []string {
	return func(doc *goquery.Document) []string {
		var links []string
		sel := doc.Find(selector)
		sel.Slice(0, min(MaxLinks, sel.Length())).Each(func(_ int, a *goquery.Selection) {
			if href, ok := a.Attr("href"); ok && href != "" {
				links = append(links, origin+href)
			}
		})
		return links
	}
}

var mediumHref = regexp.MustCompile(`https://medium.com/.*`)

func medium(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if href == "" || !mediumHref.MatchString(href) {
			return true
		}
		link, _, _ := strings.Cut(href, "?")
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		links = append(links, link)
		return len(links) < MaxLinks
	})
	return links
}
