package condcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// testWorker adapts a request and an optional origin handler to the Worker
// shape, scheduling background work on a TaskGroup the test can wait on.
type testWorker struct {
	req    *http.Request
	origin http.Handler
	tasks  *TaskGroup
}

func (w *testWorker) Request() *http.Request { return w.req }

func (w *testWorker) Next(ctx context.Context) Verdict {
	if w.origin == nil {
		return Miss()
	}
	rec := httptest.NewRecorder()
	w.origin.ServeHTTP(rec, w.req.WithContext(ctx))
	return Hit(rec.Result())
}

func (w *testWorker) WaitUntil(task func(context.Context)) { w.tasks.Go(task) }

// evaluate runs one engine evaluation and waits for the background work it
// scheduled, so store writes and invalidations are visible to the next call.
func evaluate(t *testing.T, e *Engine, req *http.Request, origin http.Handler) Verdict {
	t.Helper()
	tasks := NewTaskGroup(context.Background())
	verdict := e.Evaluate(context.Background(), &testWorker{req: req, origin: origin, tasks: tasks})
	tasks.Wait()
	return verdict
}

// populate stores origin's response for req by running a full evaluation.
func populate(t *testing.T, e *Engine, req *http.Request, origin http.Handler) {
	t.Helper()
	verdict := evaluate(t, e, req, origin)
	resp, ok := verdict.Response()
	if !ok {
		t.Fatal("expected a response while populating the cache")
	}
	drainDiscardedBody(resp.Body)
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func getRequest(url string, header map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("closing body: %v", err)
	}
	return string(body)
}

// trackedBody records whether a response body was closed.
type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

// mustHit fails the test unless v is a Hit, returning the response.
func mustHit(t *testing.T, v Verdict) *http.Response {
	t.Helper()
	resp, ok := v.Response()
	if !ok {
		t.Fatal("expected a hit verdict")
	}
	return resp
}

// recordingCollector captures metric events for assertions.
type recordingCollector struct {
	mu         sync.Mutex
	decisions  []string
	vetoes     []string
	storeOps   []string
	entrySizes []int64
}

func (c *recordingCollector) RecordDecision(store, method, outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, fmt.Sprintf("%s %s %s", store, method, outcome))
}

func (c *recordingCollector) RecordRuleVeto(store, rule string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vetoes = append(c.vetoes, fmt.Sprintf("%s %s", store, rule))
}

func (c *recordingCollector) RecordStoreOperation(store, operation, result string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeOps = append(c.storeOps, fmt.Sprintf("%s %s %s", store, operation, result))
}

func (c *recordingCollector) RecordEntrySize(store string, sizeBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entrySizes = append(c.entrySizes, sizeBytes)
}

func (c *recordingCollector) lastDecision() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.decisions) == 0 {
		return ""
	}
	return c.decisions[len(c.decisions)-1]
}

func (c *recordingCollector) lastVeto() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.vetoes) == 0 {
		return ""
	}
	return c.vetoes[len(c.vetoes)-1]
}

// cacheableOrigin returns a handler serving body with the given extra headers
// and a counter of how many times it ran.
func cacheableOrigin(body string, header map[string]string) (http.Handler, *int) {
	calls := new(int)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Cache-Control", "max-age=3600")
		for k, v := range header {
			w.Header().Set(k, v)
		}
		_, _ = w.Write([]byte(body))
	}), calls
}

func TestMissThenHit(t *testing.T) {
	e := newTestEngine(t)
	origin, calls := cacheableOrigin("hello", nil)
	url := "http://example.com/greeting"

	v1 := evaluate(t, e, getRequest(url, nil), origin)
	resp1 := mustHit(t, v1)
	if got := resp1.Header.Get(XFromCache); got != "" {
		t.Errorf("first response marked cached: %q", got)
	}
	if got, want := readBody(t, resp1), "hello"; got != want {
		t.Errorf("got body %q, want %q", got, want)
	}
	if *calls != 1 {
		t.Fatalf("expected 1 origin call, got %d", *calls)
	}

	v2 := evaluate(t, e, getRequest(url, nil), origin)
	resp2 := mustHit(t, v2)
	if got := resp2.Header.Get(XFromCache); got != "1" {
		t.Errorf("second response not marked cached: %q", got)
	}
	if got, want := readBody(t, resp2), "hello"; got != want {
		t.Errorf("got body %q, want %q", got, want)
	}
	if *calls != 1 {
		t.Errorf("expected cached hit, origin called %d times", *calls)
	}
}

func TestMissWithoutOrigin(t *testing.T) {
	e := newTestEngine(t)

	v := evaluate(t, e, getRequest("http://example.com/absent", nil), nil)
	if v.IsHit() {
		t.Error("expected a miss when the store is empty and the origin declines")
	}
	if got, want := v.String(), "miss"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestVerdict(t *testing.T) {
	if Hit(nil).IsHit() {
		t.Error("Hit(nil) should behave as a miss")
	}
	if _, ok := Miss().Response(); ok {
		t.Error("Miss().Response() should report no response")
	}

	resp := &http.Response{StatusCode: http.StatusOK}
	v := Hit(resp)
	if !v.IsHit() {
		t.Error("Hit should report a hit")
	}
	if got, ok := v.Response(); !ok || got != resp {
		t.Error("Response should return the carried response")
	}
	if got, want := v.String(), "hit 200"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	var zero Verdict
	if zero.IsHit() {
		t.Error("zero Verdict should be a miss")
	}
}

func TestNamedStoreCacheMark(t *testing.T) {
	e := newTestEngine(t, WithCacheName("api"))
	origin, _ := cacheableOrigin("payload", nil)
	url := "http://example.com/marked"

	populate(t, e, getRequest(url, nil), origin)

	resp := mustHit(t, evaluate(t, e, getRequest(url, nil), origin))
	defer resp.Body.Close()
	if got, want := resp.Header.Get(XFromCache), "1; store=api"; got != want {
		t.Errorf("got mark %q, want %q", got, want)
	}
}

func TestMarkCachedResponsesDisabled(t *testing.T) {
	e := newTestEngine(t, WithMarkCachedResponses(false))
	origin, calls := cacheableOrigin("quiet", nil)
	url := "http://example.com/unmarked"

	populate(t, e, getRequest(url, nil), origin)

	resp := mustHit(t, evaluate(t, e, getRequest(url, nil), origin))
	defer resp.Body.Close()
	if got := resp.Header.Get(XFromCache); got != "" {
		t.Errorf("expected no cache mark, got %q", got)
	}
	if *calls != 1 {
		t.Errorf("expected a cache hit, origin called %d times", *calls)
	}
}

func TestPostResponseNotStored(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Cache-Control", "max-age=3600")
		_, _ = w.Write([]byte(r.Method))
	})
	url := "http://example.com/form"

	postReq := httptest.NewRequest(http.MethodPost, url, nil)
	resp := mustHit(t, evaluate(t, e, postReq, origin))
	if got, want := readBody(t, resp), "POST"; got != want {
		t.Errorf("got body %q, want %q", got, want)
	}

	getResp := mustHit(t, evaluate(t, e, getRequest(url, nil), origin))
	if got, want := readBody(t, getResp), "GET"; got != want {
		t.Errorf("GET reused the POST response: got %q, want %q", got, want)
	}
	if getResp.Header.Get(XFromCache) != "" {
		t.Error("GET after POST should not be served from cache")
	}
	if calls != 2 {
		t.Errorf("expected 2 origin calls, got %d", calls)
	}
}

func TestHeadResponseNotServedToGet(t *testing.T) {
	e := newTestEngine(t)
	origin, calls := cacheableOrigin("body", nil)
	url := "http://example.com/resource"

	headReq := httptest.NewRequest(http.MethodHead, url, nil)
	resp := mustHit(t, evaluate(t, e, headReq, origin))
	drainDiscardedBody(resp.Body)

	getResp := mustHit(t, evaluate(t, e, getRequest(url, nil), origin))
	defer getResp.Body.Close()
	if getResp.Header.Get(XFromCache) != "" {
		t.Error("GET should not be answered from a HEAD response")
	}
	if *calls != 2 {
		t.Errorf("expected 2 origin calls, got %d", *calls)
	}
}

func TestUncacheableStatusNotStored(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Cache-Control", "max-age=3600")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	url := "http://example.com/flaky"

	populate(t, e, getRequest(url, nil), origin)
	resp := mustHit(t, evaluate(t, e, getRequest(url, nil), origin))
	defer resp.Body.Close()

	if resp.Header.Get(XFromCache) != "" {
		t.Error("500 response should not have been stored")
	}
	if calls != 2 {
		t.Errorf("expected 2 origin calls, got %d", calls)
	}
}

func TestShouldCacheOverride(t *testing.T) {
	teapot := func(resp *http.Response) bool {
		return resp.StatusCode == http.StatusTeapot
	}
	e := newTestEngine(t, WithShouldCache(teapot))

	calls := 0
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})
	url := "http://example.com/teapot"

	populate(t, e, getRequest(url, nil), origin)
	resp := mustHit(t, evaluate(t, e, getRequest(url, nil), origin))
	defer resp.Body.Close()

	if resp.Header.Get(XFromCache) != "1" {
		t.Error("ShouldCache hook should have made the 418 storable")
	}
	if calls != 1 {
		t.Errorf("expected 1 origin call, got %d", calls)
	}

	// The hook replaces the status check entirely, so a 200 is now refused.
	okOrigin, okCalls := cacheableOrigin("plain", nil)
	okURL := "http://example.com/plain"
	populate(t, e, getRequest(okURL, nil), okOrigin)
	okResp := mustHit(t, evaluate(t, e, getRequest(okURL, nil), okOrigin))
	defer okResp.Body.Close()

	if okResp.Header.Get(XFromCache) != "" {
		t.Error("ShouldCache hook should have refused the 200")
	}
	if *okCalls != 2 {
		t.Errorf("expected 2 origin calls, got %d", *okCalls)
	}
}

func TestDecisionOutcomes(t *testing.T) {
	collector := &recordingCollector{}
	e := newTestEngine(t, WithCollector(collector))
	origin, _ := cacheableOrigin("versioned", map[string]string{"Etag": `"v1"`})
	url := "http://example.com/doc"

	populate(t, e, getRequest(url, nil), origin)
	if got, want := collector.lastDecision(), " GET origin"; got != want {
		t.Errorf("got decision %q, want %q", got, want)
	}

	resp := mustHit(t, evaluate(t, e, getRequest(url, nil), origin))
	drainDiscardedBody(resp.Body)
	if got, want := collector.lastDecision(), " GET hit"; got != want {
		t.Errorf("got decision %q, want %q", got, want)
	}

	resp = mustHit(t, evaluate(t, e, getRequest(url, map[string]string{"If-None-Match": `"v1"`}), origin))
	drainDiscardedBody(resp.Body)
	if got, want := collector.lastDecision(), " GET not_modified"; got != want {
		t.Errorf("got decision %q, want %q", got, want)
	}

	resp = mustHit(t, evaluate(t, e, getRequest(url, map[string]string{"If-Match": `"v0"`}), origin))
	drainDiscardedBody(resp.Body)
	if got, want := collector.lastDecision(), " GET precondition_failed"; got != want {
		t.Errorf("got decision %q, want %q", got, want)
	}

	v := evaluate(t, e, getRequest(url, map[string]string{"Cache-Control": "no-store"}), nil)
	if v.IsHit() {
		t.Fatal("no-store with no origin should be a miss")
	}
	if got, want := collector.lastDecision(), " GET miss"; got != want {
		t.Errorf("got decision %q, want %q", got, want)
	}
	if got, want := collector.lastVeto(), " cache-control"; got != want {
		t.Errorf("got veto %q, want %q", got, want)
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	e := newTestEngine(t)
	origin, _ := cacheableOrigin("shared", nil)
	url := "http://example.com/contended"

	populate(t, e, getRequest(url, nil), origin)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				resp, ok := evaluate(t, e, getRequest(url, nil), origin).Response()
				if !ok {
					t.Error("expected a hit")
					return
				}
				drainDiscardedBody(resp.Body)
			}
		}()
	}
	wg.Wait()
}
