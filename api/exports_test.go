package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portwatch/export"
)

func TestExportScan(t *testing.T) {
	env := newTestEnv(t, sshOpen())
	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "22,80"})
	env.waitTerminal(t, id)

	w := env.do(t, http.MethodPost, "/api/scans/"+id+"/export", ExportScanRequest{Format: "excel"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	artifact := decode[export.Artifact](t, w)
	assert.Equal(t, export.FormatXLSX, artifact.Format)
	assert.Equal(t, id, artifact.JobID)
	assert.Equal(t, "127.0.0.1", artifact.TargetHost)
	assert.Equal(t, 1, artifact.OpenPorts)
	assert.Equal(t, 2, artifact.TotalPorts)
	assert.Equal(t, "Found 1 open ports out of 2 scanned. Top services: ssh", artifact.Summary)
	assert.True(t, strings.HasSuffix(artifact.Filename, ".xlsx"))
	assert.FileExists(t, filepath.Join(env.exportDir, artifact.Filename))

	w = env.do(t, http.MethodPost, "/api/scans/"+id+"/export", ExportScanRequest{Format: "json", Filename: "report.json"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/api/scans/"+id+"/export", ExportScanRequest{Format: "json", Filename: "report.json"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "report.json.1", decode[export.Artifact](t, w).Filename)
}

func TestExportScan_Validation(t *testing.T) {
	env := newTestEnv(t, sshOpen())
	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "22"})
	env.waitTerminal(t, id)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing format", ExportScanRequest{}, "invalid request payload"},
		{"unknown format", ExportScanRequest{Format: "docx"}, export.ErrUnsupportedFormat.Error()},
		{"filename without extension", ExportScanRequest{Format: "csv", Filename: "noext"}, export.ErrInvalidFilename.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/scans/"+id+"/export", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode[ErrorResponse](t, w).Error, tt.want)
		})
	}
}

func TestExportScan_UnwritableDirectory(t *testing.T) {
	env := newTestEnv(t, sshOpen())
	require.NoError(t, os.MkdirAll(filepath.Dir(env.exportDir), 0o755))
	require.NoError(t, os.WriteFile(env.exportDir, []byte("not a directory"), 0o644))

	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "22"})
	env.waitTerminal(t, id)

	w := env.do(t, http.MethodPost, "/api/scans/"+id+"/export", ExportScanRequest{Format: "csv"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, export.ErrExportIO.Error(), decode[ErrorResponse](t, w).Error)
}

func TestExportHistory_Disabled(t *testing.T) {
	env := newTestEnv(t, sshOpen())

	w := env.do(t, http.MethodGet, "/api/exports", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	w = env.do(t, http.MethodGet, "/api/exports/abc/download", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestExportHistory_PerCaller(t *testing.T) {
	env := newTestEnv(t, sshOpen(), withRedis(0))
	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "22"})
	env.waitTerminal(t, id)

	w := env.do(t, http.MethodPost, "/api/scans/"+id+"/export", ExportScanRequest{Format: "csv"}, CallerIDHeader, "alice")
	require.Equal(t, http.StatusCreated, w.Code)
	artifact := decode[export.Artifact](t, w)

	w = env.do(t, http.MethodGet, "/api/exports", nil, CallerIDHeader, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[ExportHistoryResponse](t, w)
	require.Len(t, history.Exports, 1)
	rec := history.Exports[0]
	assert.Equal(t, artifact.ID, rec.ID)
	assert.Equal(t, id, rec.JobID)
	assert.Equal(t, "alice", rec.CallerID)
	assert.Equal(t, export.FormatCSV, rec.Format)
	assert.Equal(t, artifact.Size, rec.FileSize)

	w = env.do(t, http.MethodGet, "/api/exports", nil, CallerIDHeader, "bob")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[ExportHistoryResponse](t, w).Exports)

	w = env.do(t, http.MethodGet, "/api/exports?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadExport(t *testing.T) {
	env := newTestEnv(t, sshOpen(), withRedis(0))
	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "22"})
	env.waitTerminal(t, id)

	w := env.do(t, http.MethodPost, "/api/scans/"+id+"/export", ExportScanRequest{Format: "csv"}, CallerIDHeader, "alice")
	require.Equal(t, http.StatusCreated, w.Code)
	artifact := decode[export.Artifact](t, w)
	content, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)

	w = env.do(t, http.MethodGet, "/api/exports/"+artifact.ID+"/download", nil, CallerIDHeader, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), artifact.Filename)

	w = env.do(t, http.MethodGet, "/api/exports/"+artifact.ID+"/download", nil, CallerIDHeader, "bob")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/exports/unknown/download", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, os.Remove(artifact.Path))
	w = env.do(t, http.MethodGet, "/api/exports/"+artifact.ID+"/download", nil, CallerIDHeader, "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnonymousExportIsDownloadableByAnyone(t *testing.T) {
	env := newTestEnv(t, sshOpen(), withRedis(0))
	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "22"})
	env.waitTerminal(t, id)

	w := env.do(t, http.MethodPost, "/api/scans/"+id+"/export", ExportScanRequest{Format: "pdf"})
	require.Equal(t, http.StatusCreated, w.Code)
	artifact := decode[export.Artifact](t, w)

	w = env.do(t, http.MethodGet, "/api/exports/"+artifact.ID+"/download", nil, CallerIDHeader, "carol")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestExportHistory_RedisOutageDoesNotFailExport(t *testing.T) {
	env := newTestEnv(t, sshOpen(), withRedis(0))
	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "22"})
	env.waitTerminal(t, id)

	env.redis.Close()

	w := env.do(t, http.MethodPost, "/api/scans/"+id+"/export", ExportScanRequest{Format: "json"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.FileExists(t, decode[export.Artifact](t, w).Path)
}
