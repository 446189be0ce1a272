/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTimeDuration(t *testing.T) {
	var v struct {
		A TimeDuration `json:"a" yaml:"a"`
		B TimeDuration `json:"b" yaml:"b"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"a":"1m30s","b":1000}`), &v))
	require.Equal(t, TimeDuration(90*time.Second), v.A)
	require.Equal(t, TimeDuration(time.Microsecond), v.B)

	require.NoError(t, yaml.Unmarshal([]byte("a: 100ms\nb: 5\n"), &v))
	require.Equal(t, TimeDuration(100*time.Millisecond), v.A)
	require.Equal(t, TimeDuration(5), v.B)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"100ms","b":"5ns"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &v))
	require.Error(t, json.Unmarshal([]byte(`{"a":-1}`), &v))
}

func TestByteSize(t *testing.T) {
	var v struct {
		Size ByteSize `json:"size" yaml:"size"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("size: 100M\n"), &v))
	require.Equal(t, ByteSize(100*1024*1024), v.Size)

	require.NoError(t, json.Unmarshal([]byte(`{"size":"2Gi"}`), &v))
	require.Equal(t, ByteSize(2*1024*1024*1024), v.Size)

	require.NoError(t, json.Unmarshal([]byte(`{"size":512}`), &v))
	require.Equal(t, "512B", v.Size.String())

	require.Error(t, json.Unmarshal([]byte(`{"size":"a lot"}`), &v))
}
