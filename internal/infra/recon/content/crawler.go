// Package content implements the content_discovery phase. Each active base URL
// is crawled with lightweight native tools (page links, robots.txt, sitemaps
// and script endpoints), every discovered URL is requested once, and the
// responses are classified as interesting or not.
package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var _ domain.Collaborator = (*Crawler)(nil)

// Tool names accepted in the content_tools setting.
const (
	ToolLinks   = "links"
	ToolRobots  = "robots"
	ToolSitemap = "sitemap"
	ToolJS      = "js"
)

const (
	defaultMaxPages   = 25
	targetConcurrency = 8
	checkConcurrency  = 10
	maxPageRead       = 2 << 20
	maxSitemaps       = 5
)

// Crawler discovers content on web applications.
type Crawler struct {
	client *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) { c.client = client }
}

// New creates a Crawler.
func New(log *logger.Logger, tracer trace.Tracer, opts ...Option) *Crawler {
	c := &Crawler{
		client: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: log.With("component", "content_discovery"),
		tracer: tracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint is one checked URL.
type Endpoint struct {
	URL         string
	Source      string
	Status      int
	Size        int64
	ContentType string
	Reasons     []string
}

// Interesting reports whether any classification rule matched.
func (e Endpoint) Interesting() bool { return len(e.Reasons) > 0 }

func (e Endpoint) payload() domain.Payload {
	return domain.Payload{
		"url":          e.URL,
		"source":       e.Source,
		"status":       e.Status,
		"size":         e.Size,
		"content_type": e.ContentType,
		"interesting":  e.Interesting(),
		"reasons":      e.Reasons,
	}
}

// Run implements domain.Collaborator.
func (c *Crawler) Run(ctx context.Context, in domain.PhaseInput) (domain.Payload, error) {
	ctx, span := c.tracer.Start(ctx, "content_discovery.run",
		trace.WithAttributes(attribute.Int("targets", len(in.Targets))),
	)
	defer span.End()

	tools := in.Settings.GetStrings(domain.SettingContentTools)
	if len(tools) == 0 {
		tools = []string{ToolLinks, ToolRobots, ToolSitemap}
	}
	maxPages := in.Settings.GetInt(domain.SettingContentMaxPages, defaultMaxPages)
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	var (
		mu        sync.Mutex
		endpoints []Endpoint
		failures  []string
		done      int
	)

	var g errgroup.Group
	g.SetLimit(targetConcurrency)
	for _, target := range in.Targets {
		g.Go(func() error {
			found, err := c.discoverTarget(ctx, target, tools, maxPages)

			mu.Lock()
			defer mu.Unlock()
			done++
			endpoints = append(endpoints, found...)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", target, err))
				c.logger.Warn(ctx, "Content discovery failed for target", "target", target, "error", err)
			}
			in.ReportProgress(domain.Payload{"targets_done": done, "targets_total": len(in.Targets), "endpoints": len(endpoints)})
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(endpoints, func(a, b Endpoint) int { return strings.Compare(a.URL, b.URL) })
	discovered := make([]string, 0, len(endpoints))
	interesting := make([]string, 0)
	rows := make([]domain.Payload, 0, len(endpoints))
	for _, e := range endpoints {
		discovered = append(discovered, e.URL)
		if e.Interesting() {
			interesting = append(interesting, e.URL)
		}
		rows = append(rows, e.payload())
	}

	summary := domain.Payload{
		"discovered_urls":            discovered,
		domain.ResultInterestingURLs: interesting,
		"endpoints":                  rows,
		"count":                      len(discovered),
		"interesting_count":          len(interesting),
		"tools":                      tools,
	}
	if len(failures) > 0 {
		summary["errors"] = failures
	}
	span.SetAttributes(attribute.Int("endpoints", len(discovered)), attribute.Int("interesting", len(interesting)))

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("content discovery interrupted: %w", err)
	}
	if len(in.Targets) > 0 && len(failures) == len(in.Targets) {
		return summary, fmt.Errorf("content discovery failed for every target: %s", strings.Join(failures, "; "))
	}
	c.logger.Info(ctx, "Content discovery finished", "targets", len(in.Targets), "endpoints", len(discovered), "interesting", len(interesting))
	return summary, nil
}

// discoverTarget gathers candidate URLs for one base URL and checks them.
// An error is returned only when the base URL itself could not be fetched.
func (c *Crawler) discoverTarget(ctx context.Context, target string, tools []string, maxPages int) ([]Endpoint, error) {
	base, err := url.Parse(target)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", target)
	}
	if base.Path == "" {
		base.Path = "/"
	}

	cands := newCandidates(base, maxPages)
	var baseErr error

	if slices.Contains(tools, ToolLinks) || slices.Contains(tools, ToolJS) {
		links, scripts, err := c.crawlPage(ctx, base)
		if err != nil {
			baseErr = err
		}
		if slices.Contains(tools, ToolLinks) {
			cands.add(ToolLinks, links...)
			cands.add(ToolLinks, scripts...)
		}
		if slices.Contains(tools, ToolJS) {
			for _, script := range scripts {
				if !cands.sameHost(script) {
					continue
				}
				cands.add(ToolJS, c.scriptEndpoints(ctx, script)...)
			}
		}
	}

	var sitemaps []string
	if slices.Contains(tools, ToolRobots) {
		rules, err := c.fetchRobots(ctx, base)
		if err == nil {
			for _, p := range rules.Paths {
				if ref, ok := resolve(base, p); ok {
					cands.add(ToolRobots, ref)
				}
			}
			sitemaps = append(sitemaps, rules.Sitemaps...)
		}
	}
	if slices.Contains(tools, ToolSitemap) {
		sitemaps = append(sitemaps, base.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String())
		cands.add(ToolSitemap, c.walkSitemaps(ctx, cands, sitemaps)...)
	}

	endpoints := c.checkAll(ctx, cands.list())
	if baseErr != nil && len(endpoints) == 0 {
		return nil, baseErr
	}
	return endpoints, nil
}

func (c *Crawler) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "recon-armada/1.0")
	return c.client.Do(req)
}

func (c *Crawler) crawlPage(ctx context.Context, base *url.URL) (links, scripts []string, err error) {
	resp, err := c.get(ctx, base.String())
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return nil, nil, nil
	}
	links, scripts = extractLinks(resp.Request.URL, io.LimitReader(resp.Body, maxPageRead))
	return links, scripts, nil
}

func (c *Crawler) scriptEndpoints(ctx context.Context, script string) []string {
	resp, err := c.get(ctx, script)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	src, err := io.ReadAll(io.LimitReader(resp.Body, maxPageRead))
	if err != nil {
		return nil
	}
	return extractJSEndpoints(resp.Request.URL, src)
}

func (c *Crawler) fetchRobots(ctx context.Context, base *url.URL) (robotsRules, error) {
	resp, err := c.get(ctx, base.ResolveReference(&url.URL{Path: "/robots.txt"}).String())
	if err != nil {
		return robotsRules{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return robotsRules{}, fmt.Errorf("robots.txt returned %d", resp.StatusCode)
	}
	return parseRobots(io.LimitReader(resp.Body, maxPageRead)), nil
}

// walkSitemaps reads up to maxSitemaps same-host sitemap documents, following
// sitemap indexes breadth first.
func (c *Crawler) walkSitemaps(ctx context.Context, cands *candidates, queue []string) []string {
	var (
		pages   []string
		visited = make(map[string]struct{})
	)
	for len(queue) > 0 && len(visited) < maxSitemaps {
		next := queue[0]
		queue = queue[1:]
		if _, ok := visited[next]; ok || !cands.sameHost(next) {
			continue
		}
		visited[next] = struct{}{}

		resp, err := c.get(ctx, next)
		if err != nil {
			continue
		}
		if resp.StatusCode == http.StatusOK {
			found, nested, err := parseSitemap(io.LimitReader(resp.Body, maxPageRead))
			if err == nil {
				pages = append(pages, found...)
				queue = append(queue, nested...)
			}
		}
		resp.Body.Close()
	}
	return pages
}

// checkAll requests every candidate and classifies the response.
func (c *Crawler) checkAll(ctx context.Context, cands []candidate) []Endpoint {
	out := make([]Endpoint, len(cands))
	ok := make([]bool, len(cands))

	var g errgroup.Group
	g.SetLimit(checkConcurrency)
	for i, cand := range cands {
		g.Go(func() error {
			out[i], ok[i] = c.check(ctx, cand)
			return nil
		})
	}
	_ = g.Wait()

	endpoints := make([]Endpoint, 0, len(cands))
	for i := range out {
		if ok[i] {
			endpoints = append(endpoints, out[i])
		}
	}
	return endpoints
}

func (c *Crawler) check(ctx context.Context, cand candidate) (Endpoint, bool) {
	resp, err := c.get(ctx, cand.url)
	if err != nil {
		return Endpoint{}, false
	}
	defer resp.Body.Close()

	size := resp.ContentLength
	if size < 0 {
		n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, LargeBodyThreshold+1))
		size = n
	}

	e := Endpoint{
		URL:         cand.url,
		Source:      cand.source,
		Status:      resp.StatusCode,
		Size:        size,
		ContentType: resp.Header.Get("Content-Type"),
	}
	e.Reasons = Classify(e.URL, e.Status, e.Size)
	return e, true
}

type candidate struct {
	url    string
	source string
}

// candidates is an ordered, bounded, same-host set of URLs to check.
type candidates struct {
	base  *url.URL
	limit int
	seen  map[string]struct{}
	items []candidate
}

func newCandidates(base *url.URL, limit int) *candidates {
	return &candidates{base: base, limit: limit, seen: make(map[string]struct{})}
}

func (c *candidates) sameHost(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.EqualFold(u.Host, c.base.Host)
}

func (c *candidates) add(source string, urls ...string) {
	for _, u := range urls {
		if len(c.items) >= c.limit {
			return
		}
		if !c.sameHost(u) {
			continue
		}
		if _, ok := c.seen[u]; ok {
			continue
		}
		c.seen[u] = struct{}{}
		c.items = append(c.items, candidate{url: u, source: source})
	}
}

func (c *candidates) list() []candidate { return c.items }
