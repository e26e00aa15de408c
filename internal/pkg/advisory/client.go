/**
 * 漏洞通告查询客户端
 * @author: sun977
 * @date: 2025.10.21
 * @description: GET <base>/search/{service}，尽力而为，任何失败都归为 "could not check"
 */
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"reconledger/internal/pkg/logger"
	"reconledger/internal/pkg/version"
)

const (
	DefaultBaseURL = "https://cve.circl.lu/api"
	DefaultTimeout = 5 * time.Second

	maxBodySize = 8 << 20
)

// Kind 查询结果类别
type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindFound       Kind = "found"
	KindClean       Kind = "clean"
)

// Status 查询结果
type Status struct {
	Kind  Kind `json:"kind"`
	Count int  `json:"count"`
}

// String 展示文本
func (s Status) String() string {
	switch s.Kind {
	case KindFound:
		return fmt.Sprintf("%d known issues found", s.Count)
	case KindClean:
		return "no known issues"
	default:
		return "could not check"
	}
}

// Unavailable 无法查询
func Unavailable() Status {
	return Status{Kind: KindUnavailable}
}

// Client 漏洞通告查询客户端，可并发使用
type Client struct {
	client    *http.Client
	baseURL   string
	userAgent string
	cache     sync.Map // service -> Status，只缓存成功的查询
}

// NewClient 创建客户端，baseURL 为空时使用默认地址
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: version.GetUserAgent(),
	}
}

// Lookup 按服务名查询已知问题数量，从不返回 error
func (c *Client) Lookup(ctx context.Context, service string) Status {
	service = strings.TrimSpace(service)
	if service == "" {
		return Unavailable()
	}
	key := strings.ToLower(service)
	if cached, ok := c.cache.Load(key); ok {
		return cached.(Status)
	}

	count, err := c.search(ctx, key)
	if err != nil {
		logger.Debugf("advisory lookup for %q failed: %v", service, err)
		return Unavailable()
	}

	status := Status{Kind: KindClean}
	if count > 0 {
		status = Status{Kind: KindFound, Count: count}
	}
	c.cache.Store(key, status)
	return status
}

// search 执行查询并返回条目数
func (c *Client) search(ctx context.Context, service string) (int, error) {
	fullURL := c.baseURL + "/search/" + url.PathEscape(service)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("advisory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("advisory request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, fmt.Errorf("read advisory response: %w", err)
	}
	return countEntries(body)
}

// countEntries 兼容两种响应：顶层数组，或包含 results/data 数组的对象
func countEntries(body []byte) (int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("empty advisory response")
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return 0, fmt.Errorf("decode advisory list: %w", err)
		}
		return len(items), nil
	case '{':
		var obj struct {
			Results []json.RawMessage `json:"results"`
			Data    []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return 0, fmt.Errorf("decode advisory object: %w", err)
		}
		if obj.Results == nil && obj.Data == nil {
			return 0, fmt.Errorf("advisory object has no results")
		}
		return len(obj.Results) + len(obj.Data), nil
	default:
		return 0, fmt.Errorf("unexpected advisory response")
	}
}
