package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "yaml extension", path: "engagement.yaml", wantErr: false},
		{name: "yml extension", path: "engagement.yml", wantErr: false},
		{name: "wrong extension", path: "engagement.json", wantErr: true},
		{name: "traversal attempt", path: "../secrets.yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateConfigPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDataPath(t *testing.T) {
	dataDir := t.TempDir()

	inside := filepath.Join(dataDir, "engagements", "abc-2026-01-15")
	got, err := ValidateDataPath(inside, dataDir)
	require.NoError(t, err)
	assert.Equal(t, inside, got)

	_, err = ValidateDataPath("/etc/passwd", dataDir)
	assert.Error(t, err)

	_, err = ValidateDataPath(filepath.Join(dataDir, "..", "other"), dataDir)
	assert.Error(t, err)
}

func TestJoinAndValidate(t *testing.T) {
	base := t.TempDir()

	got, err := JoinAndValidate(base, "raw", "reconciliation.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "raw", "reconciliation.json"), got)

	_, err = JoinAndValidate(base, "..", "escape.json")
	assert.Error(t, err)
}
