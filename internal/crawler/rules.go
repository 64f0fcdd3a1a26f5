package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract runs the source's rules against a parsed result page.
//
// Containers come from the first container selector that matches anything;
// matches of later selectors are never merged in. Fragments missing a title,
// a price or a link are dropped.
func Extract(doc *goquery.Document, src SourceConfig) []Fragment {
	containers := findContainers(doc.Selection, src.Rules.Containers)
	if containers == nil {
		return nil
	}

	fragments := make([]Fragment, 0, containers.Length())
	containers.Each(func(_ int, s *goquery.Selection) {
		if f, ok := extractFragment(s, src); ok {
			fragments = append(fragments, f)
		}
	})
	return fragments
}

func findContainers(root *goquery.Selection, patterns []string) *goquery.Selection {
	for _, pattern := range patterns {
		if sel := root.Find(pattern); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

func extractFragment(s *goquery.Selection, src SourceConfig) (Fragment, bool) {
	title := firstText(s, src.Rules.Title, "title")
	if title == "" {
		return Fragment{}, false
	}

	priceText := firstText(s, src.Rules.Price, "")
	if priceText == "" {
		return Fragment{}, false
	}

	link := ResolveURL(src.BaseURL, firstLink(s, src.Rules.Link))
	if link == "" {
		return Fragment{}, false
	}

	return Fragment{Title: title, PriceText: priceText, URL: link}, true
}

// firstText returns the trimmed text of the first selector that yields a
// non-empty value. attr, when set, is read if the element has no text.
func firstText(s *goquery.Selection, patterns []string, attr string) string {
	for _, pattern := range patterns {
		sel := s.Find(pattern).First()
		if sel.Length() == 0 {
			continue
		}
		if text := collapseSpace(sel.Text()); text != "" {
			return text
		}
		if attr != "" {
			if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return collapseSpace(v)
			}
		}
	}
	return ""
}

// firstLink returns the href of the first link selector that matches. If none
// does, the container itself or its nearest enclosing anchor is used.
func firstLink(s *goquery.Selection, patterns []string) string {
	for _, pattern := range patterns {
		sel := s.Find(pattern).First()
		if href, ok := sel.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href)
		}
	}

	if goquery.NodeName(s) == "a" {
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href)
		}
	}

	if href, ok := s.Closest("a[href]").Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}

// ResolveURL makes href absolute against base. Only http(s) results are kept.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	if !ref.IsAbs() {
		baseURL, err := url.Parse(base)
		if err != nil || !baseURL.IsAbs() {
			return ""
		}
		ref = baseURL.ResolveReference(ref)
	}

	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
