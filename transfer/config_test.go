package transfer

import (
	"testing"
	"time"

	testutil "github.com/bitrise-io/go-driveclient/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    Config
		wantErr string
	}{
		{
			name: "defaults",
			want: Config{ChunkSize: 1024, ProgressLogInterval: time.Second},
		},
		{
			name: "human readable chunk size",
			envVars: map[string]string{
				ChunkSizeEnvKey:           "64KB",
				ProgressLogIntervalEnvKey: "250ms",
			},
			want: Config{ChunkSize: 64 * 1024, ProgressLogInterval: 250 * time.Millisecond},
		},
		{
			name:    "invalid chunk size",
			envVars: map[string]string{ChunkSizeEnvKey: "lots"},
			wantErr: "invalid DRIVECLIENT_CHUNK_SIZE",
		},
		{
			name:    "zero chunk size",
			envVars: map[string]string{ChunkSizeEnvKey: "0"},
			wantErr: "chunk size must be positive",
		},
		{
			name:    "invalid interval",
			envVars: map[string]string{ProgressLogIntervalEnvKey: "soon"},
			wantErr: "invalid DRIVECLIENT_PROGRESS_LOG_INTERVAL",
		},
		{
			name:    "negative interval",
			envVars: map[string]string{ProgressLogIntervalEnvKey: "-1s"},
			wantErr: "progress log interval must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ConfigFromEnv(testutil.NewFakeEnvRepo(tt.envVars))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}
