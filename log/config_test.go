/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsefit/aithrottle/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    *Config
		wantErr string
	}{
		{
			name: "defaults",
			yaml: "{}",
			want: NewDefaultConfig(),
		},
		{
			name: "text to file",
			yaml: `
log:
  level: DEBUG
  format: text
  output: file
  nocolor: true
  file:
    path: /var/log/aithrottle.log
    rotation:
      maxSize: 10M
      maxBackups: 3
      maxAgeDays: 7
      compress: true
`,
			want: &Config{
				Level:   LevelDebug,
				Format:  FormatText,
				Output:  OutputFile,
				NoColor: true,
				File: FileOutputConfig{
					Path: "/var/log/aithrottle.log",
					Rotation: FileRotationConfig{
						Compress:   true,
						MaxSize:    10 * 1024 * 1024,
						MaxBackups: 3,
						MaxAgeDays: 7,
					},
				},
				keyPrefix: cfgDefaultKeyPrefix,
			},
		},
		{
			name:    "unknown level",
			yaml:    "log:\n  level: trace\n",
			wantErr: `log.level: unknown value "trace", should be one of [error warn info debug]`,
		},
		{
			name:    "file output without path",
			yaml:    "log:\n  output: file\n",
			wantErr: `log.file.path: cannot be empty when "file" output is used`,
		},
		{
			name:    "too small rotation size",
			yaml:    "log:\n  file:\n    rotation:\n      maxSize: 1K\n",
			wantErr: "log.file.rotation.maxSize: should be >= 1M",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.yaml), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg)
		})
	}
}

func TestConfig_WithKeyPrefix(t *testing.T) {
	cfg := NewConfig(WithKeyPrefix("logging"))
	require.Equal(t, "logging", cfg.KeyPrefix())
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString("logging:\n  level: warn\n"), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, LevelWarn, cfg.Level)
}
