package content

import (
	"bufio"
	"encoding/xml"
	"io"
	"net/url"
	"strings"

	regexp "github.com/wasilibs/go-re2"
	"golang.org/x/net/html"
)

// linkAttrs maps the elements followed by the links tool to the attribute
// holding their reference.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"script": "src",
	"form":   "action",
	"iframe": "src",
	"img":    "src",
}

// extractLinks returns the absolute references found in an HTML document,
// resolved against base. Script sources are returned separately.
func extractLinks(base *url.URL, r io.Reader) (links, scripts []string) {
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return links, scripts
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		attr, ok := linkAttrs[string(name)]
		if !ok || !hasAttr {
			continue
		}
		for {
			key, val, more := z.TagAttr()
			if string(key) == attr {
				if ref, ok := resolve(base, string(val)); ok {
					if string(name) == "script" {
						scripts = append(scripts, ref)
					} else {
						links = append(links, ref)
					}
				}
			}
			if !more {
				break
			}
		}
	}
}

// resolve makes ref absolute against base and drops fragments. Only http(s)
// references are kept.
func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	u, err := base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

// robotsRules holds the paths and sitemaps advertised by a robots.txt file.
type robotsRules struct {
	Paths    []string
	Sitemaps []string
}

// parseRobots reads Allow, Disallow and Sitemap directives. Wildcard patterns
// are cut at the first wildcard since only the literal prefix is fetchable.
func parseRobots(r io.Reader) robotsRules {
	var rules robotsRules
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "allow", "disallow":
			if i := strings.IndexAny(val, "*$"); i >= 0 {
				val = val[:i]
			}
			if val != "" && val != "/" {
				rules.Paths = append(rules.Paths, val)
			}
		case "sitemap":
			if val != "" {
				rules.Sitemaps = append(rules.Sitemaps, val)
			}
		}
	}
	return rules
}

// sitemapDoc decodes both urlset and sitemapindex documents.
type sitemapDoc struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// parseSitemap returns the page locations and nested sitemap locations of a
// sitemap document.
func parseSitemap(r io.Reader) (pages, nested []string, err error) {
	var doc sitemapDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, err
	}
	for _, u := range doc.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			pages = append(pages, loc)
		}
	}
	for _, s := range doc.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			nested = append(nested, loc)
		}
	}
	return pages, nested, nil
}

// jsEndpointPattern matches quoted relative or absolute paths inside
// JavaScript sources, e.g. "/api/v1/users" or '/internal/status.json'.
var jsEndpointPattern = regexp.MustCompile(`["'](/[a-zA-Z0-9_\-./]{2,200}(?:\?[^"'\s]{0,200})?)["']`)

// extractJSEndpoints returns the paths referenced inside a script.
func extractJSEndpoints(base *url.URL, src []byte) []string {
	var out []string
	for _, m := range jsEndpointPattern.FindAllSubmatch(src, -1) {
		path := string(m[1])
		if strings.HasPrefix(path, "//") {
			continue
		}
		if ref, ok := resolve(base, path); ok {
			out = append(out, ref)
		}
	}
	return out
}
