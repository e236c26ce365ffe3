package archive_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/causas-crawler/internal/archive"
	"github.com/JakeFAU/causas-crawler/internal/storage/memory"
)

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "raw/1234/run-1/buscarCausas/1234.json",
		archive.ObjectPath("/raw/", "1234", "run-1", "buscarCausas", "1234"))
	assert.Equal(t, "1234/run-1/getIncidenteJudicatura/5678.json",
		archive.ObjectPath("", "1234", "run-1", "getIncidenteJudicatura", "5678"))
	assert.Equal(t, "raw/_/run-1/x/a_b.json",
		archive.ObjectPath("raw", "..", "run-1", "x", "a/b"))
}

func TestRecorderWritesScopedPayloads(t *testing.T) {
	blobs := memory.NewBlobStore()
	rec := archive.NewRecorder(blobs, "raw", nil)

	ctx := archive.WithScope(context.Background(), "1234", "run-1")
	rec.RecordPayload(ctx, "actuacionesJudiciales", "5678-4401", []byte(`[{"codigo":1}]`))

	got, ok := blobs.Object("raw/1234/run-1/actuacionesJudiciales/5678-4401.json")
	require.True(t, ok)
	assert.JSONEq(t, `[{"codigo":1}]`, string(got))
}

func TestRecorderSkipsUnscopedCalls(t *testing.T) {
	blobs := memory.NewBlobStore()
	rec := archive.NewRecorder(blobs, "raw", nil)

	rec.RecordPayload(context.Background(), "buscarCausas", "1234", []byte(`[]`))
	assert.Empty(t, blobs.Paths())

	var nilRec *archive.Recorder
	nilRec.RecordPayload(context.Background(), "buscarCausas", "1234", nil)
}

func TestRecorderLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := archive.NewRecorder(failingStore{}, "raw", zap.New(core))

	ctx := archive.WithScope(context.Background(), "1234", "run-1")
	rec.RecordPayload(ctx, "buscarCausas", "1234", []byte(`[]`))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to archive payload", logs.All()[0].Message)
}

func TestScopeFrom(t *testing.T) {
	_, _, ok := archive.ScopeFrom(context.Background())
	assert.False(t, ok)

	id, run, ok := archive.ScopeFrom(archive.WithScope(context.Background(), "1234", "run-9"))
	require.True(t, ok)
	assert.Equal(t, "1234", id)
	assert.Equal(t, "run-9", run)
}
