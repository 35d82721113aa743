package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"fulano@gmail.com", "fu****@gmail.com"},
		{"ab@x.com", "**@x.com"},
		{"not-an-address", "no...ss"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskEmail(tt.in), tt.in)
	}
}

func TestMaskSensitiveString_Short(t *testing.T) {
	assert.Equal(t, "****", MaskSensitiveString("abcd", 2, 2))
}

func TestNew_InvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	_, err := New(false)
	assert.Error(t, err)
}

func TestNew_Verbose(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l, err := New(true)
	require.NoError(t, err)
	assert.True(t, l.Desugar().Core().Enabled(-1))
}
