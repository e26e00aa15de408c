package monitor

import (
	"context"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	snap := Collect(context.Background())

	assert.NotNil(t, snap.Host)
	assert.NotNil(t, snap.System)
	assert.NotNil(t, snap.Process)
	assert.False(t, snap.Timestamp.IsZero())

	assert.NotEmpty(t, snap.Host.OS)
	assert.NotEmpty(t, snap.Host.Arch)
	assert.Positive(t, snap.Host.CPUCores)
	assert.Equal(t, int32(os.Getpid()), snap.Process.PID)
	assert.Positive(t, snap.Process.Goroutines)
}

func TestGetHostInfo_FallsBackToRuntime(t *testing.T) {
	info := GetHostInfo(context.Background())
	if info.Platform == "" {
		assert.Equal(t, runtime.GOOS, info.OS)
	}
	assert.NotEmpty(t, info.Arch)
}
