// Package prewarmer proactively loads URLs into a condcache store. Driving
// known critical resources through the cache before real traffic arrives
// means the first user request already finds a stored response and the
// conditional machinery (ETag and Last-Modified revalidation) has validators
// to work with.
//
// Two modes are supported. With only a Client configured, requests are sent
// through a condcache-fronted service and the service's own engine populates
// the store. With a Store configured as well, fetched responses are written
// into that store directly, which warms a cache process against a plain
// origin.
package prewarmer

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/condcache/condcache"
)

// Prewarmer provides methods for proactively loading URLs into the cache.
type Prewarmer struct {
	client       *http.Client
	store        *condcache.Store
	userAgent    string
	timeout      time.Duration
	forceRefresh bool
}

// Config holds configuration options for the Prewarmer.
type Config struct {
	// Client is the HTTP client to use for requests. Point it at a service
	// fronted by a condcache engine, or combine it with Store to write
	// responses into a store directly.
	// Required.
	Client *http.Client

	// Store receives fetched responses directly via its Put operation.
	// Obtain it from Engine.Store(). Responses with a 2xx status and no
	// no-store directive are written; everything else is fetched but not
	// stored.
	// Optional - defaults to nil, meaning the client path does the storing.
	Store *condcache.Store

	// UserAgent is the User-Agent string to use for requests.
	// Optional - defaults to "condcache-prewarmer/1.0".
	UserAgent string

	// Timeout is the timeout for each individual request.
	// Optional - defaults to 30 seconds.
	Timeout time.Duration

	// ForceRefresh forces cache refresh even if content is already cached.
	// When true, adds Cache-Control: no-cache header to bypass cache.
	// Optional - defaults to false.
	ForceRefresh bool
}

// Result represents the result of a prewarm operation.
type Result struct {
	// URL is the URL that was processed.
	URL string

	// Success indicates whether the prewarm was successful.
	Success bool

	// StatusCode is the HTTP status code returned.
	StatusCode int

	// Duration is how long the request took.
	Duration time.Duration

	// Size is the response body size in bytes.
	Size int64

	// Error is the error if the request failed.
	Error error

	// FromCache indicates if the response came from cache.
	FromCache bool

	// Stored indicates the response was written to a configured Store.
	Stored bool
}

// Stats contains aggregate statistics from a prewarm operation.
type Stats struct {
	// Total is the total number of URLs processed.
	Total int

	// Successful is the number of successful requests.
	Successful int

	// Failed is the number of failed requests.
	Failed int

	// FromCache is the number of responses served from cache.
	FromCache int

	// Stored is the number of responses written to a configured Store.
	Stored int

	// TotalDuration is the total elapsed time for the operation.
	TotalDuration time.Duration

	// TotalBytes is the total bytes downloaded.
	TotalBytes int64

	// Errors contains all errors encountered.
	Errors []error
}

// ProgressCallback is called after each URL is processed.
type ProgressCallback func(result *Result, completed, total int)

// New creates a new Prewarmer with the given configuration.
func New(config Config) (*Prewarmer, error) {
	if config.Client == nil {
		return nil, errors.New("prewarmer: client is required")
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "condcache-prewarmer/1.0"
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Prewarmer{
		client:       config.Client,
		store:        config.Store,
		userAgent:    userAgent,
		timeout:      timeout,
		forceRefresh: config.ForceRefresh,
	}, nil
}

// Prewarm loads the given URLs into the cache sequentially.
// It returns aggregate statistics about the operation.
func (p *Prewarmer) Prewarm(ctx context.Context, urls []string) (*Stats, error) {
	return p.PrewarmWithCallback(ctx, urls, nil)
}

// PrewarmWithCallback loads URLs sequentially and calls the callback after each.
func (p *Prewarmer) PrewarmWithCallback(ctx context.Context, urls []string, callback ProgressCallback) (*Stats, error) {
	stats := &Stats{
		Total: len(urls),
	}
	startTime := time.Now()

	for i, url := range urls {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		result := p.fetchURL(ctx, url)
		stats.record(result)

		if callback != nil {
			callback(result, i+1, len(urls))
		}
	}

	stats.TotalDuration = time.Since(startTime)
	return stats, nil
}

// PrewarmConcurrent loads URLs with controlled concurrency.
// The workers parameter specifies the number of concurrent goroutines.
func (p *Prewarmer) PrewarmConcurrent(ctx context.Context, urls []string, workers int) (*Stats, error) {
	return p.PrewarmConcurrentWithCallback(ctx, urls, workers, nil)
}

// PrewarmConcurrentWithCallback loads URLs concurrently and calls the callback
// after each. Results arrive in completion order, not input order. The
// callback itself is invoked from a single collecting goroutine.
func (p *Prewarmer) PrewarmConcurrentWithCallback(ctx context.Context, urls []string, workers int, callback ProgressCallback) (*Stats, error) {
	if workers <= 0 {
		workers = 1
	}

	stats := &Stats{
		Total: len(urls),
	}
	startTime := time.Now()

	urlChan := make(chan string, len(urls))
	for _, url := range urls {
		urlChan <- url
	}
	close(urlChan)

	resultChan := make(chan *Result, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range urlChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultChan <- p.fetchURL(ctx, url)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	for result := range resultChan {
		stats.record(result)
		completed++

		if callback != nil {
			callback(result, completed, len(urls))
		}
	}

	stats.TotalDuration = time.Since(startTime)
	return stats, nil
}

// PrewarmFromSitemap parses an XML sitemap and prewarms all URLs found.
func (p *Prewarmer) PrewarmFromSitemap(ctx context.Context, sitemapURL string) (*Stats, error) {
	return p.PrewarmFromSitemapWithCallback(ctx, sitemapURL, 1, nil)
}

// PrewarmFromSitemapConcurrent parses an XML sitemap and prewarms with concurrency.
func (p *Prewarmer) PrewarmFromSitemapConcurrent(ctx context.Context, sitemapURL string, workers int) (*Stats, error) {
	return p.PrewarmFromSitemapWithCallback(ctx, sitemapURL, workers, nil)
}

// PrewarmFromSitemapWithCallback parses a sitemap and prewarms with callback.
func (p *Prewarmer) PrewarmFromSitemapWithCallback(ctx context.Context, sitemapURL string, workers int, callback ProgressCallback) (*Stats, error) {
	urls, err := p.parseSitemap(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("prewarmer: failed to parse sitemap: %w", err)
	}

	if workers <= 1 {
		return p.PrewarmWithCallback(ctx, urls, callback)
	}
	return p.PrewarmConcurrentWithCallback(ctx, urls, workers, callback)
}

// record folds a single result into the aggregate counters.
func (s *Stats) record(result *Result) {
	if result.Success {
		s.Successful++
		s.TotalBytes += result.Size
		if result.FromCache {
			s.FromCache++
		}
		if result.Stored {
			s.Stored++
		}
		return
	}
	s.Failed++
	if result.Error != nil {
		s.Errors = append(s.Errors, result.Error)
	}
}

// fetchURL performs a single HTTP GET request and returns the result.
func (p *Prewarmer) fetchURL(ctx context.Context, url string) *Result {
	result := &Result{
		URL: url,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		result.Duration = time.Since(startTime)
		return result
	}

	req.Header.Set("User-Agent", p.userAgent)

	if p.forceRefresh {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("request failed: %w", err)
		result.Duration = time.Since(startTime)
		return result
	}
	defer resp.Body.Close() //nolint:errcheck // best effort cleanup

	// Read body to ensure it gets cached
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Errorf("failed to read body: %w", err)
		result.Duration = time.Since(startTime)
		return result
	}

	result.StatusCode = resp.StatusCode
	result.Size = int64(len(body))
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 400
	// The engine marks served-from-cache responses with "1", or
	// "1; store=<name>" for a named store.
	result.FromCache = resp.Header.Get(condcache.XFromCache) != ""

	if !result.Success {
		result.Error = fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if p.store != nil && result.Success && shouldStore(resp) {
		// Put consumes the body; restore it from the buffered bytes.
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if err := p.store.Put(ctx, req, resp); err != nil {
			result.Success = false
			result.Error = fmt.Errorf("store write failed: %w", err)
		} else {
			result.Stored = true
		}
	}

	result.Duration = time.Since(startTime)
	return result
}

// shouldStore reports whether a fetched response is eligible for a direct
// store write: a 2xx status without a no-store directive.
func shouldStore(resp *http.Response) bool {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	for _, directive := range strings.Split(resp.Header.Get("Cache-Control"), ",") {
		if strings.EqualFold(strings.TrimSpace(directive), "no-store") {
			return false
		}
	}
	return true
}

// Sitemap represents an XML sitemap structure.
type Sitemap struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []SitemapURL `xml:"url"`
}

// SitemapURL represents a single URL entry in a sitemap.
type SitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// SitemapIndex represents an XML sitemap index structure.
type SitemapIndex struct {
	XMLName  xml.Name          `xml:"sitemapindex"`
	Sitemaps []SitemapLocation `xml:"sitemap"`
}

// SitemapLocation represents a sitemap reference in a sitemap index.
type SitemapLocation struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// parseSitemap fetches and parses an XML sitemap, returning all URLs.
// It supports both regular sitemaps and sitemap indexes.
func (p *Prewarmer) parseSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // best effort cleanup

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Try parsing as sitemap index first
	var sitemapIndex SitemapIndex
	if err := xml.Unmarshal(body, &sitemapIndex); err == nil && len(sitemapIndex.Sitemaps) > 0 {
		// A sitemap index references further sitemaps; parse each one and
		// skip the ones that fail so a single broken reference does not
		// abort the whole run.
		var allURLs []string
		for _, sm := range sitemapIndex.Sitemaps {
			urls, err := p.parseSitemap(ctx, sm.Loc)
			if err != nil {
				condcache.GetLogger().Warn("skipping unreadable sitemap", "url", sm.Loc, "error", err)
				continue
			}
			allURLs = append(allURLs, urls...)
		}
		return allURLs, nil
	}

	// Parse as regular sitemap
	var sitemap Sitemap
	if err := xml.Unmarshal(body, &sitemap); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap XML: %w", err)
	}

	urls := make([]string, 0, len(sitemap.URLs))
	for _, u := range sitemap.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc != "" {
			urls = append(urls, loc)
		}
	}

	return urls, nil
}
