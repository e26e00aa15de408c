package port

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconledger/internal/core/model"
	"reconledger/internal/core/portspec"
	"reconledger/internal/pkg/advisory"
)

func refused(address string) error {
	return &net.OpError{Op: "dial", Net: "tcp", Addr: nil, Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func portOf(t *testing.T, address string) int {
	_, p, err := net.SplitHostPort(address)
	require.NoError(t, err)
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return n
}

// fakeDialer 按端口返回预设 Banner，其余端口拒绝连接
type fakeDialer struct {
	t       *testing.T
	banners map[int]string
}

func (d *fakeDialer) DialContext(ctx context.Context, _, address string) (net.Conn, error) {
	banner, ok := d.banners[portOf(d.t, address)]
	if !ok {
		return nil, refused(address)
	}
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		server.Write([]byte(banner))
		// 等待对端关闭
		buf := make([]byte, 64)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	return client, nil
}

// countingDialer 记录同时在途的拨号数峰值
type countingDialer struct {
	inflight int32
	peak     int32
	calls    int32
}

func (d *countingDialer) DialContext(ctx context.Context, _, address string) (net.Conn, error) {
	atomic.AddInt32(&d.calls, 1)
	cur := atomic.AddInt32(&d.inflight, 1)
	defer atomic.AddInt32(&d.inflight, -1)
	for {
		peak := atomic.LoadInt32(&d.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&d.peak, peak, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return nil, refused(address)
}

// stallDialer 在 release 关闭或 ctx 结束前一直阻塞
type stallDialer struct {
	release chan struct{}
}

func (d *stallDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	select {
	case <-d.release:
		return nil, errors.New("released")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type stubAdvisory struct {
	mu      sync.Mutex
	queries []string
	status  advisory.Status
}

func (s *stubAdvisory) Lookup(ctx context.Context, service string) advisory.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, service)
	return s.status
}

type stubPredictor struct {
	ports []int
	err   error
}

func (p stubPredictor) Predict(ctx context.Context, _ model.Target) ([]int, error) {
	return p.ports, p.err
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.ConnectTimeout = 200 * time.Millisecond
	opts.BannerTimeout = 200 * time.Millisecond
	return opts
}

func TestScan_SingleClosedPort(t *testing.T) {
	s := NewScanner(&fakeDialer{t: t}, nil, nil)

	report, err := s.Scan(context.Background(), "127.0.0.1", "9999", fastOptions())
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "127.0.0.1", report.Target)
	assert.Equal(t, 1, report.PortsScanned)
	assert.Empty(t, report.OpenPorts)
	require.Len(t, report.Details, 1)
	d := report.Details[0]
	assert.Equal(t, 9999, d.Port)
	assert.False(t, d.Open)
	assert.Equal(t, model.ReasonRefused, d.Reason)
	assert.Empty(t, d.Banner)
	assert.Empty(t, d.Service)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestScan_RangeSortedAndComplete(t *testing.T) {
	s := NewScanner(&fakeDialer{t: t}, nil, nil)

	report, err := s.Scan(context.Background(), "10.0.0.1", "1-100", fastOptions())
	require.NoError(t, err)

	assert.Equal(t, 100, report.PortsScanned)
	require.Len(t, report.Details, 100)
	for i, d := range report.Details {
		assert.Equal(t, i+1, d.Port)
		assert.False(t, d.Open)
	}
	assert.Empty(t, report.OpenPorts)
}

func TestScan_ConcurrencyBounded(t *testing.T) {
	d := &countingDialer{}
	s := NewScanner(d, nil, nil)

	opts := fastOptions()
	opts.ConcurrencyLimit = 50

	report, err := s.Scan(context.Background(), "10.0.0.1", "1-1000", opts)
	require.NoError(t, err)

	assert.Equal(t, 1000, report.PortsScanned)
	assert.EqualValues(t, 1000, atomic.LoadInt32(&d.calls))
	assert.LessOrEqual(t, atomic.LoadInt32(&d.peak), int32(50))
	assert.Greater(t, atomic.LoadInt32(&d.peak), int32(1))
}

// socketDialer 所有端口都接受连接但不发送 Banner，连接在 Close 时才计为关闭
type socketDialer struct {
	open  int32
	peak  int32
	dials int32
}

type countedConn struct {
	net.Conn
	once sync.Once
	open *int32
}

func (c *countedConn) Close() error {
	c.once.Do(func() { atomic.AddInt32(c.open, -1) })
	return c.Conn.Close()
}

func (d *socketDialer) DialContext(ctx context.Context, _, address string) (net.Conn, error) {
	atomic.AddInt32(&d.dials, 1)
	cur := atomic.AddInt32(&d.open, 1)
	for {
		peak := atomic.LoadInt32(&d.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&d.peak, peak, cur) {
			break
		}
	}

	client, server := net.Pipe()
	go func() {
		defer server.Close()
		buf := make([]byte, 64)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	return &countedConn{Conn: client, open: &d.open}, nil
}

func TestScan_OpenSocketsBoundedThroughBannerRead(t *testing.T) {
	d := &socketDialer{}
	s := NewScanner(d, nil, nil)

	opts := fastOptions()
	opts.ConcurrencyLimit = 10
	opts.BannerTimeout = 20 * time.Millisecond

	report, err := s.Scan(context.Background(), "10.0.0.1", "1-200", opts)
	require.NoError(t, err)

	assert.Len(t, report.OpenPorts, 200)
	assert.EqualValues(t, 200, atomic.LoadInt32(&d.dials))
	// 每个连接都等满 Banner 超时，槽位在读取期间一直被占用
	assert.LessOrEqual(t, atomic.LoadInt32(&d.peak), int32(10))
	assert.Greater(t, atomic.LoadInt32(&d.peak), int32(1))
	assert.Zero(t, atomic.LoadInt32(&d.open))
}

func TestScan_ConcurrencyClamped(t *testing.T) {
	opts := Options{ConcurrencyLimit: 5000}.normalize()
	assert.Equal(t, MaxConcurrency, opts.ConcurrencyLimit)

	opts = Options{}.normalize()
	assert.Equal(t, DefaultConcurrency, opts.ConcurrencyLimit)
	assert.Equal(t, DefaultGracePeriod, opts.GracePeriod)
}

func TestScan_OpenPortFingerprinted(t *testing.T) {
	d := &fakeDialer{t: t, banners: map[int]string{
		22: "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5\r\n",
		21: "220 (vsFTPd 3.0.3)\r\n",
	}}
	s := NewScanner(d, nil, nil)

	report, err := s.Scan(context.Background(), "192.168.1.10", "20-23", fastOptions())
	require.NoError(t, err)

	assert.Equal(t, []int{21, 22}, report.OpenPorts)
	require.Len(t, report.Details, 4)

	ssh := report.Details[2]
	assert.Equal(t, 22, ssh.Port)
	assert.True(t, ssh.Open)
	assert.Equal(t, "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5", ssh.Banner)
	assert.Equal(t, "SSH", ssh.Service)
	assert.Equal(t, "8.2p1", ssh.Version)
	assert.Equal(t, "Unix/Linux", ssh.OS)
	assert.Empty(t, ssh.Advisory)

	ftp := report.Details[1]
	assert.Equal(t, "FTP", ftp.Service)
	assert.Equal(t, "3.0.3", ftp.Version)

	closed := report.Details[0]
	assert.Empty(t, closed.Service)
}

func TestScan_AdvisoryEnrichment(t *testing.T) {
	d := &fakeDialer{t: t, banners: map[int]string{22: "SSH-2.0-OpenSSH_7.4"}}
	adv := &stubAdvisory{status: advisory.Status{Kind: advisory.KindFound, Count: 3}}
	s := NewScanner(d, nil, adv)

	opts := fastOptions()
	opts.Advisory = true
	report, err := s.Scan(context.Background(), "192.168.1.10", "22,23", opts)
	require.NoError(t, err)

	assert.Equal(t, "3 known issues found", report.Details[0].Advisory)
	assert.Empty(t, report.Details[1].Advisory)
	assert.Equal(t, []string{"OpenSSH"}, adv.queries)
}

func TestScan_UnknownServiceSkipsAdvisory(t *testing.T) {
	d := &fakeDialer{t: t, banners: map[int]string{7000: "hello"}}
	adv := &stubAdvisory{status: advisory.Status{Kind: advisory.KindClean}}
	s := NewScanner(d, nil, adv)

	opts := fastOptions()
	opts.Advisory = true
	report, err := s.Scan(context.Background(), "192.168.1.10", "7000", opts)
	require.NoError(t, err)

	assert.Equal(t, model.Unknown, report.Details[0].Service)
	assert.Equal(t, "could not check", report.Details[0].Advisory)
	assert.Empty(t, adv.queries)
}

func TestScan_InvalidTarget(t *testing.T) {
	s := NewScanner(&fakeDialer{t: t}, nil, nil)

	_, err := s.Scan(context.Background(), "999.1.1.1", "80", fastOptions())
	var target *model.InvalidTargetError
	assert.True(t, errors.As(err, &target))
}

func TestScan_PortSpecPolicy(t *testing.T) {
	s := NewScanner(&fakeDialer{t: t}, nil, nil)

	opts := fastOptions()
	opts.StrictPortSpec = true
	_, err := s.Scan(context.Background(), "127.0.0.1", "80-", opts)
	var spec *model.InvalidPortSpecError
	assert.True(t, errors.As(err, &spec))

	opts.StrictPortSpec = false
	report, err := s.Scan(context.Background(), "127.0.0.1", "80-", opts)
	require.NoError(t, err)
	assert.True(t, report.PortSpecFallback)
	assert.Equal(t, len(portspec.Baseline()), report.PortsScanned)
}

func TestScanStream_Events(t *testing.T) {
	d := &fakeDialer{t: t, banners: map[int]string{5: "SSH-2.0-dropbear_2019.78"}}
	s := NewScanner(d, nil, nil)

	var events []Event
	report, err := s.ScanStream(context.Background(), "127.0.0.1", "1-10", fastOptions(), func(ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 11)
	last := 0
	seen := map[int]bool{}
	for _, ev := range events[:10] {
		assert.GreaterOrEqual(t, ev.Progress, last)
		assert.LessOrEqual(t, ev.Progress, 100)
		last = ev.Progress
		require.NotNil(t, ev.Result)
		seen[ev.Result.Port] = true
		assert.NotEmpty(t, ev.Line)
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 100, events[9].Progress)

	final := events[10]
	assert.Equal(t, 100, final.Progress)
	assert.Nil(t, final.Result)
	assert.Contains(t, final.Line, "1 open of 10 ports")
	assert.Equal(t, []int{5}, report.OpenPorts)
}

func TestScan_CancelMarksRemaining(t *testing.T) {
	d := &stallDialer{release: make(chan struct{})}
	t.Cleanup(func() { close(d.release) })
	s := NewScanner(d, nil, nil)

	opts := fastOptions()
	opts.ConnectTimeout = 10 * time.Second
	opts.ConcurrencyLimit = 5
	opts.GracePeriod = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	report, err := s.Scan(ctx, "127.0.0.1", "1-20", opts)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.True(t, report.Cancelled)
	assert.Equal(t, 20, report.PortsScanned)
	require.Len(t, report.Details, 20)

	var abandoned, cancelled int
	for _, r := range report.Details {
		assert.False(t, r.Open)
		assert.True(t, r.TimedOut)
		switch r.Reason {
		case model.ReasonAbandoned:
			abandoned++
		case model.ReasonCancelled:
			cancelled++
		}
	}
	assert.Equal(t, 5, abandoned)
	assert.Equal(t, 15, cancelled)
}

func TestScan_AdaptiveCompletes(t *testing.T) {
	d := &fakeDialer{t: t, banners: map[int]string{80: "HTTP/1.1 200 OK\r\nServer: nginx/1.18.0\r\n"}}
	s := NewScanner(d, nil, nil)

	opts := fastOptions()
	opts.Adaptive = true
	opts.ConcurrencyLimit = 20
	report, err := s.Scan(context.Background(), "127.0.0.1", "1-200", opts)
	require.NoError(t, err)

	assert.Equal(t, 200, report.PortsScanned)
	assert.Equal(t, []int{80}, report.OpenPorts)
	assert.Equal(t, "HTTP", report.Details[79].Service)
	assert.Equal(t, "1.18.0", report.Details[79].Version)
}

func TestScan_Predict(t *testing.T) {
	s := NewScanner(&fakeDialer{t: t}, nil, nil)

	_, err := s.Scan(context.Background(), "127.0.0.1", "predict", fastOptions())
	assert.ErrorIs(t, err, ErrNoPredictor)

	s.SetPredictor(stubPredictor{ports: []int{443, 22, 22, 70000}})
	report, err := s.Scan(context.Background(), "127.0.0.1", "predict", fastOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, report.PortsScanned)
	assert.Equal(t, 22, report.Details[0].Port)
	assert.False(t, report.PortSpecFallback)

	s.SetPredictor(stubPredictor{err: errors.New("model offline")})
	report, err = s.Scan(context.Background(), "127.0.0.1", "predict", fastOptions())
	require.NoError(t, err)
	assert.True(t, report.PortSpecFallback)
	assert.Equal(t, len(portspec.Baseline()), report.PortsScanned)
}
