package target

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconledger/internal/core/model"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		address string
		family  model.Family
	}{
		{"ipv4", "192.168.1.10", "192.168.1.10", model.FamilyIPv4},
		{"ipv4 with spaces", "  10.0.0.1 ", "10.0.0.1", model.FamilyIPv4},
		{"loopback v6", "::1", "::1", model.FamilyIPv6},
		{"bracketed v6", "[2001:db8::1]", "2001:db8::1", model.FamilyIPv6},
		{"mapped v4", "::ffff:127.0.0.1", "127.0.0.1", model.FamilyIPv4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.address, got.Address)
			assert.Equal(t, tt.family, got.Family)
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	for _, input := range []string{"", "   ", "example.com", "256.1.1.1", "1.2.3", "10.0.0.1/24", "localhost"} {
		t.Run(input, func(t *testing.T) {
			_, err := Validate(input)
			require.Error(t, err)

			var invalid *model.InvalidTargetError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, input, invalid.Input)
		})
	}
}

func TestTarget_HostPort(t *testing.T) {
	assert.Equal(t, "127.0.0.1:22", MustValidate("127.0.0.1").HostPort(22))
	assert.Equal(t, "[::1]:443", MustValidate("::1").HostPort(443))
}
