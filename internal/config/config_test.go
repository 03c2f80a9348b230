package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSampleTicks(t *testing.T) {
	cases := []struct {
		name        string
		seconds     string
		deciseconds string
		want        int
		wantErr     bool
	}{
		{name: "seconds only", seconds: "3", want: 30},
		{name: "deciseconds only, at boundary", deciseconds: "9", want: 9},
		{name: "deciseconds rounds down to nearest second", deciseconds: "14", want: 10},
		{name: "deciseconds rounds up to nearest second", deciseconds: "16", want: 20},
		{name: "neither set", wantErr: true},
		{name: "both set", seconds: "1", deciseconds: "5", wantErr: true},
		{name: "zero seconds", seconds: "0", wantErr: true},
		{name: "non-numeric", seconds: "abc", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSampleTicks(tc.seconds, tc.deciseconds)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseBool(t *testing.T) {
	v, err := ParseBool("true")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseBool("")
	require.NoError(t, err)
	assert.False(t, v)

	_, err = ParseBool("yes")
	require.Error(t, err)
}

func TestConnectionByName(t *testing.T) {
	cfg := &Config{Connections: []ConnectionConfig{{Name: "plc1"}, {Name: "plc2"}}}

	cc, ok := cfg.ConnectionByName("plc2")
	require.True(t, ok)
	assert.Equal(t, "plc2", cc.Name)

	_, ok = cfg.ConnectionByName("missing")
	assert.False(t, ok)
}
