package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyBanner(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name   string
		banner string
		want   Fingerprint
	}{
		{
			name:   "openssh on ubuntu",
			banner: "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5",
			want:   Fingerprint{Service: "SSH", Product: "OpenSSH", Version: "8.2p1", OS: "Unix/Linux"},
		},
		{
			name:   "openssh without distro",
			banner: "SSH-2.0-OpenSSH_9.6",
			want:   Fingerprint{Service: "SSH", Product: "OpenSSH", Version: "9.6", OS: "Unknown"},
		},
		{
			name:   "ssh without openssh",
			banner: "SSH-2.0-libssh_0.9.6",
			want:   Fingerprint{Service: "SSH", Version: "Unknown", OS: "Unknown"},
		},
		{
			name:   "apache",
			banner: "HTTP/1.1 200 OK\r\nServer: Apache/2.4.41 (Ubuntu)",
			want:   Fingerprint{Service: "HTTP", Product: "Apache", Version: "2.4.41", OS: "Unix/Linux"},
		},
		{
			name:   "nginx",
			banner: "HTTP/1.1 400 Bad Request\r\nServer: nginx/1.18.0",
			want:   Fingerprint{Service: "HTTP", Product: "nginx", Version: "1.18.0", OS: "Unknown"},
		},
		{
			name:   "iis",
			banner: "HTTP/1.1 200 OK\r\nServer: Microsoft-IIS/10.0",
			want:   Fingerprint{Service: "HTTP", Product: "IIS", Version: "10.0", OS: "Windows"},
		},
		{
			name:   "server header only",
			banner: "Server: lighttpd",
			want:   Fingerprint{Service: "HTTP", Version: "Unknown", OS: "Unknown"},
		},
		{
			name:   "vsftpd",
			banner: "220 (vsFTPd 3.0.3)",
			want:   Fingerprint{Service: "FTP", Product: "vsftpd", Version: "3.0.3", OS: "Unix/Linux"},
		},
		{
			name:   "postfix",
			banner: "220 mail.example.com ESMTP Postfix (Debian/GNU)",
			want:   Fingerprint{Service: "SMTP", Product: "Postfix", Version: "Unknown", OS: "Unix/Linux"},
		},
		{
			name:   "unrecognized",
			banner: "+OK Dovecot ready.",
			want:   Fingerprint{Service: "Unknown", Version: "Unknown", OS: "Unknown"},
		},
		{
			name:   "empty",
			banner: "",
			want:   Fingerprint{Service: "Unknown", Version: "Unknown", OS: "Unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ClassifyBanner(tt.banner))
		})
	}
}

func TestDefaultRules_Individually(t *testing.T) {
	rules := DefaultRules()
	require.Equal(t, "ssh", rules[0].Name, "SSH 优先于 HTTP")
	require.Equal(t, "http", rules[1].Name)

	ssh, err := Compile(rules[0])
	require.NoError(t, err)
	assert.True(t, ssh.Matches("SSH-2.0-OpenSSH_7.4"))
	assert.False(t, ssh.Matches("Server: nginx"))
	assert.Equal(t, "7.4", ssh.Extract("SSH-2.0-OpenSSH_7.4").Version)

	http, err := Compile(rules[1])
	require.NoError(t, err)
	assert.True(t, http.Matches("Server: nginx/1.25.3"))
	assert.Equal(t, "1.25.3", http.Extract("Server: nginx/1.25.3").Version)
}

func TestClassifyBanner_SSHBeatsHTTP(t *testing.T) {
	fp := NewEngine().ClassifyBanner("SSH-2.0-OpenSSH_8.0 HTTP")
	assert.Equal(t, "SSH", fp.Service)
}

func TestRefineOS(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name     string
		current  string
		response string
		want     string
	}{
		{"ubuntu", "Unknown", "HTTP/1.0 200 OK\r\nServer: Apache/2.4.41 (Ubuntu)\r\n", "Linux"},
		{"debian", "Unix/Linux", "HTTP/1.0 200 OK\r\nServer: nginx/1.22.1 (Debian)\r\n", "Linux"},
		{"windows", "Unknown", "HTTP/1.1 200 OK\r\nServer: Microsoft-IIS/10.0 Win64\r\n", "Windows"},
		{"freebsd", "Unknown", "HTTP/1.1 200 OK\r\nServer: Apache/2.4 (FreeBSD)\r\n", "FreeBSD"},
		{"darwin", "Unknown", "HTTP/1.1 200 OK\r\nServer: Apache (Darwin)\r\n", "macOS"},
		{"no hint keeps current", "Windows", "HTTP/1.1 200 OK\r\nServer: cloudflare\r\n", "Windows"},
		{"no server header", "Unix/Linux", "HTTP/1.1 200 OK\r\nX-Powered-By: Ubuntu\r\n", "Unix/Linux"},
		{"no response", "Unix/Linux", "", "Unix/Linux"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.RefineOS(tt.current, []byte(tt.response)))
		})
	}
}

func TestClassify_WithActiveResponse(t *testing.T) {
	fp := NewEngine().Classify("HTTP/1.1 200 OK\r\nServer: nginx/1.18.0", []byte("HTTP/1.0 200 OK\r\nServer: nginx/1.18.0 (Ubuntu)\r\n"))
	assert.Equal(t, "HTTP", fp.Service)
	assert.Equal(t, "1.18.0", fp.Version)
	assert.Equal(t, "Linux", fp.OS)
}

func TestNewEngineFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
rules:
  - name: redis
    keywords: ["redis_version"]
    service: Redis
    version: 'redis_version:(\d+\.\d+\.\d+)'
refine:
  - keyword: Alpine
    os: Linux
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	e, err := NewEngineFromFile(path)
	require.NoError(t, err)

	fp := e.ClassifyBanner("# Server\r\nredis_version:7.2.4\r\n")
	assert.Equal(t, "Redis", fp.Service)
	assert.Equal(t, "7.2.4", fp.Version)
	assert.Equal(t, "Linux", e.RefineOS("Unknown", []byte("Server: x (Alpine)")))

	// 文件规则替换内置规则
	assert.Equal(t, "Unknown", e.ClassifyBanner("SSH-2.0-OpenSSH_8.0").Service)
}

func TestReload_RejectsBadPattern(t *testing.T) {
	e := NewEngine()
	err := e.Reload(RuleSet{Rules: []Rule{{Name: "bad", Keywords: []string{"x"}, Version: "("}}})
	require.Error(t, err)

	// 旧规则保留
	assert.Equal(t, "SSH", e.ClassifyBanner("SSH-2.0-OpenSSH_8.0").Service)
}

func TestShippedRulesFile(t *testing.T) {
	e, err := NewEngineFromFile(filepath.Join("..", "..", "..", "configs", "fingerprint_rules.yaml"))
	require.NoError(t, err)

	fp := e.ClassifyBanner("SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.1\r\n")
	assert.Equal(t, "SSH", fp.Service)
	assert.Equal(t, "8.9p1", fp.Version)

	fp = e.ClassifyBanner("# Server\r\nredis_version:7.2.4\r\n")
	assert.Equal(t, "Redis", fp.Service)
	assert.Equal(t, "7.2.4", fp.Version)
}
