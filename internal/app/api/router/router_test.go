package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconledger/internal/config"
	"reconledger/internal/core/scanner/port"
	reconHandler "reconledger/internal/handler/recon"
	"reconledger/internal/pkg/ledger"
	"reconledger/internal/pkg/profile"
	"reconledger/internal/service/recon"
	"reconledger/internal/service/task"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type fixedStore struct {
	entries []ledger.Entry
}

func (s *fixedStore) Load(ctx context.Context) ([]ledger.Entry, error) { return s.entries, nil }
func (s *fixedStore) Append(ctx context.Context, e ledger.Entry) error { return nil }
func (s *fixedStore) Close() error                                     { return nil }

func serveBanner(t *testing.T, banner string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				c.Write([]byte(banner))
				time.Sleep(200 * time.Millisecond)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestRouter(t *testing.T, cfg *config.ServerConfig, l *ledger.Ledger) (*Router, *recon.Service) {
	t.Helper()
	opts := port.DefaultOptions()
	opts.ConnectTimeout = 500 * time.Millisecond
	opts.BannerTimeout = 500 * time.Millisecond
	svc := recon.NewService(recon.Deps{
		Ledger:   l,
		Profiles: profile.NewStore(t.TempDir()),
		Options:  opts,
	})
	tasks := task.NewManager(svc)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		tasks.Shutdown(ctx)
	})
	if cfg == nil {
		cfg = &config.ServerConfig{Mode: "test"}
	}
	return NewRouter(cfg, reconHandler.NewHandler(svc, tasks)), svc
}

func do(t *testing.T, r *Router, method, path string, body interface{}, header map[string]string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)

	var resp apiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHealthRoutes(t *testing.T) {
	r, _ := newTestRouter(t, &config.ServerConfig{Mode: "test", APIKey: "secret"}, nil)

	for _, path := range []string{"/health", "/ping", "/version"} {
		w, _ := do(t, r, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w, _ := do(t, r, http.MethodGet, "/health", nil, nil)
	assert.Contains(t, w.Body.String(), `"ledger_entries":1`)
}

func TestAuth(t *testing.T) {
	r, _ := newTestRouter(t, &config.ServerConfig{Mode: "test", APIKey: "secret"}, nil)

	w, resp := do(t, r, http.MethodGet, "/api/v1/ledger", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "failed", resp.Status)

	w, _ = do(t, r, http.MethodGet, "/api/v1/ledger", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/ledger", nil, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)
	w, _ := do(t, r, http.MethodGet, "/api/v1/ledger", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	r, _ := newTestRouter(t, &config.ServerConfig{Mode: "test", RateLimit: 2}, nil)

	for i := 0; i < 2; i++ {
		w, _ := do(t, r, http.MethodGet, "/api/v1/ledger", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, resp := do(t, r, http.MethodGet, "/api/v1/ledger", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limit exceeded", resp.Message)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// 健康检查不受限流影响
	w, _ = do(t, r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScanLifecycle(t *testing.T) {
	r, svc := newTestRouter(t, nil, nil)
	p := serveBanner(t, "SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.1\r\n")

	w, resp := do(t, r, http.MethodPost, "/api/v1/scan", obj{"target": "127.0.0.1", "ports": strconv.Itoa(p)}, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var submitted struct {
		ID     string `json:"scan_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &submitted))
	require.NotEmpty(t, submitted.ID)

	var done struct {
		Status      string `json:"status"`
		LedgerIndex int    `json:"ledger_index"`
		Result      struct {
			ID        string `json:"scan_id"`
			OpenPorts []int  `json:"open_ports"`
		} `json:"result"`
	}
	require.Eventually(t, func() bool {
		w, resp := do(t, r, http.MethodGet, "/api/v1/scan/"+submitted.ID, nil, nil)
		if w.Code != http.StatusOK {
			return false
		}
		return json.Unmarshal(resp.Data, &done) == nil && done.Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, submitted.ID, done.Result.ID)
	assert.Equal(t, []int{p}, done.Result.OpenPorts)
	assert.Equal(t, 2, done.LedgerIndex)
	assert.Equal(t, 2, svc.Ledger().Len())

	w, _ = do(t, r, http.MethodGet, "/api/v1/scan/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitScan_Rejects(t *testing.T) {
	r, svc := newTestRouter(t, nil, nil)

	w, _ := do(t, r, http.MethodPost, "/api/v1/scan", obj{"target": "not-an-ip"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/scan", obj{"target": "127.0.0.1", "ports": "abc", "strict": true}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/scan", obj{"target": "127.0.0.1", "profile": "missing"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/scan", obj{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 1, svc.Ledger().Len())
}

func TestFingerprintRoute(t *testing.T) {
	r, svc := newTestRouter(t, nil, nil)
	p := serveBanner(t, "220 ProFTPD 1.3.5 Server ready.\r\n")

	w, resp := do(t, r, http.MethodPost, "/api/v1/fingerprint", obj{"target": "127.0.0.1", "port": p}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Open    bool   `json:"open"`
		Service string `json:"service"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.True(t, res.Open)
	assert.Equal(t, "FTP", res.Service)
	assert.Equal(t, 1, svc.Ledger().Len())
}

func TestCertificateRoute_Failure(t *testing.T) {
	r, svc := newTestRouter(t, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	w, resp := do(t, r, http.MethodPost, "/api/v1/certificate", obj{"hostname": "127.0.0.1", "port": p}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Result struct {
			Valid bool `json:"valid"`
			Error *struct {
				Kind string `json:"kind"`
			} `json:"error"`
		} `json:"result"`
		Entry struct {
			Index int `json:"index"`
		} `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.False(t, out.Result.Valid)
	require.NotNil(t, out.Result.Error)
	assert.Equal(t, "connect_failed", out.Result.Error.Kind)
	assert.Equal(t, 2, out.Entry.Index)
	assert.Equal(t, 2, svc.Ledger().Len())

	w, _ = do(t, r, http.MethodPost, "/api/v1/certificate", obj{"hostname": "example.com", "port": 70000}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLedgerRoutes(t *testing.T) {
	l := ledger.New()
	for i := 0; i < 5; i++ {
		_, err := l.Append(context.Background(), obj{"n": i})
		require.NoError(t, err)
	}
	r, _ := newTestRouter(t, nil, l)

	w, resp := do(t, r, http.MethodGet, "/api/v1/ledger?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total   int            `json:"total"`
		Entries []ledger.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 6, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, 5, page.Entries[0].Index)
	assert.Equal(t, 6, page.Entries[1].Index)

	w, _ = do(t, r, http.MethodGet, "/api/v1/ledger?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, r, http.MethodGet, "/api/v1/ledger/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp.Status)
	assert.Contains(t, string(resp.Data), `"valid":true`)

	w, resp = do(t, r, http.MethodGet, "/api/v1/ledger/entries/3", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry ledger.Entry
	require.NoError(t, json.Unmarshal(resp.Data, &entry))
	assert.Equal(t, 3, entry.Index)
	assert.JSONEq(t, `{"n":1}`, string(entry.Payload))

	w, _ = do(t, r, http.MethodGet, "/api/v1/ledger/entries/7", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/ledger/entries/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLedgerVerify_Tampered(t *testing.T) {
	src := ledger.New()
	for i := 0; i < 3; i++ {
		_, err := src.Append(context.Background(), obj{"n": i})
		require.NoError(t, err)
	}
	entries := src.Entries()
	entries[2].Payload = json.RawMessage(`{"n":99}`)

	l, err := ledger.Open(context.Background(), &fixedStore{entries: entries})
	require.NoError(t, err)
	r, _ := newTestRouter(t, nil, l)

	w, resp := do(t, r, http.MethodGet, "/api/v1/ledger/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "failed", resp.Status)

	var data struct {
		Valid bool `json:"valid"`
		Index int  `json:"index"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.False(t, data.Valid)
	assert.Equal(t, 3, data.Index)
}

type obj = map[string]interface{}
