package extractor

import (
	"io"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// ScanLinks extracts the absolute URLs embedded in an HTML document. Used by
// remote resolution (`r:` inputs): each discovered URL is fed back through
// the pattern registry and unresolvable ones are dropped silently.
//
// Relative references are resolved against base when it is non-nil. Only
// http(s) URLs are returned, deduplicated in document order.
func ScanLinks(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "linkscan: parse document")
	}

	seen := make(map[string]bool)
	var links []string

	add := func(raw string) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		abs := u.String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})
	doc.Find("img[src], source[src], video[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src)
	})

	return links, nil
}
