package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reconledger/internal/core/model"
)

func sampleReport() *model.ScanReport {
	return &model.ScanReport{
		Target: "192.168.1.10",
		Details: []model.ProbeResult{
			{Port: 21, Open: true, State: model.PortStateOpen, Service: "FTP"},
			{Port: 22, Open: true, State: model.PortStateOpen, Service: "SSH"},
			model.ClosedResult(23, model.ReasonRefused),
			{Port: 2323, Open: true, State: model.PortStateOpen, Service: "Telnet"},
			{Port: 8080, Open: true, State: model.PortStateOpen, Service: model.Unknown},
		},
	}
}

func TestServiceNameForPort(t *testing.T) {
	assert.Equal(t, "SSH", ServiceNameForPort(22))
	assert.Equal(t, "HTTP-Proxy", ServiceNameForPort(8080))
	assert.Equal(t, UnknownService, ServiceNameForPort(31337))
}

func TestDetectThreats(t *testing.T) {
	threats := DetectThreats(sampleReport())
	assert.Equal(t, []string{
		"Port 21 (FTP) is a potential threat.",
		"Port 2323 (Telnet) is a potential threat.",
	}, threats)

	assert.Empty(t, DetectThreats(&model.ScanReport{}))
	assert.Nil(t, DetectThreats(nil))
}

func TestRecommendFirewallRules(t *testing.T) {
	rules := RecommendFirewallRules(sampleReport())
	assert.Equal(t, []string{
		"Block incoming traffic on port 21 (FTP)",
		"Block incoming traffic on port 22 (SSH)",
		"Block incoming traffic on port 2323 (Telnet)",
		"Block incoming traffic on port 8080 (HTTP-Proxy)",
	}, rules)
}
