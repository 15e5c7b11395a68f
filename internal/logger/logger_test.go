package logger

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "1.2.3.4:80", "10.0.0.9"},
		{"remote addr", nil, "1.2.3.4:5555", "1.2.3.4"},
		{"remote without port", nil, "1.2.3.4", "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestSetupLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()

	err := SetupLogger(Config{LogsDirectory: dir, LogFileFormat: "test_%s.log", TimeZone: "UTC"})
	require.NoError(t, err)
	assert.True(t, IsInitialized())

	LogInfo("cart %d updated", 7)
	Sync()

	path := GetLogFilePath()
	assert.Equal(t, dir, filepath.Dir(path))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(contents), "cart 7 updated"))

	assert.Error(t, SetupLogger(Config{LogsDirectory: dir}), "second setup must fail")
}
