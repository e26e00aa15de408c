package advisory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/search/openssh":
			w.Write([]byte(`[{"id":"CVE-2023-38408"},{"id":"CVE-2024-6387"}]`))
		case "/search/nginx":
			w.Write([]byte(`[]`))
		case "/search/apache":
			w.Write([]byte(`{"results":[{"id":"CVE-2021-41773"}]}`))
		case "/search/broken":
			w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	found := c.Lookup(ctx, "OpenSSH")
	assert.Equal(t, KindFound, found.Kind)
	assert.Equal(t, "2 known issues found", found.String())

	assert.Equal(t, "no known issues", c.Lookup(ctx, "nginx").String())
	assert.Equal(t, "1 known issues found", c.Lookup(ctx, "apache").String())
	assert.Equal(t, "could not check", c.Lookup(ctx, "broken").String())
	assert.Equal(t, "could not check", c.Lookup(ctx, "mysql").String())
	assert.Equal(t, "could not check", c.Lookup(ctx, "").String())

	before := atomic.LoadInt32(&hits)
	c.Lookup(ctx, "openssh")
	assert.Equal(t, before, atomic.LoadInt32(&hits), "成功结果应命中缓存")
}

func TestLookup_Timeout(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	start := time.Now()
	status := NewClient(srv.URL, 100*time.Millisecond).Lookup(context.Background(), "ssh")
	assert.Equal(t, KindUnavailable, status.Kind)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLookup_Unreachable(t *testing.T) {
	status := NewClient("http://127.0.0.1:1", 200*time.Millisecond).Lookup(context.Background(), "ssh")
	assert.Equal(t, "could not check", status.String())
}

func TestLookup_EscapesServiceName(t *testing.T) {
	paths := make(chan string, 1)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.EscapedPath()
		w.Write([]byte(`[]`))
	})

	NewClient(srv.URL+"/", time.Second).Lookup(context.Background(), "Microsoft IIS")
	assert.Equal(t, "/search/microsoft%20iis", <-paths)
}
