// Package archive keeps the raw judicial API payloads behind every crawl so a
// run can be audited or replayed without calling the service again.
//
// Objects are laid out as <prefix>/<national_id>/<run_id>/<endpoint>/<key>.json.
// The litigant and run come from the request context (see WithScope); calls
// made outside a scoped context are not archived.
package archive

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"
)

// BlobStore persists objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

type scopeKey struct{}

type scope struct {
	nationalID string
	runID      string
}

// WithScope tags ctx with the litigant and run whose payloads it fetches.
func WithScope(ctx context.Context, nationalID, runID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope{nationalID: nationalID, runID: runID})
}

// ScopeFrom returns the litigant and run set by WithScope.
func ScopeFrom(ctx context.Context) (nationalID, runID string, ok bool) {
	s, ok := ctx.Value(scopeKey{}).(scope)
	if !ok {
		return "", "", false
	}
	return s.nationalID, s.runID, true
}

// ObjectPath builds the archive path of one payload.
func ObjectPath(prefix, nationalID, runID, endpoint, key string) string {
	parts := []string{strings.Trim(prefix, "/"), clean(nationalID), clean(runID), clean(endpoint), clean(key) + ".json"}
	if parts[0] == "" {
		parts = parts[1:]
	}
	return path.Join(parts...)
}

// clean keeps path segments from escaping their directory.
func clean(segment string) string {
	segment = strings.TrimSpace(segment)
	segment = strings.NewReplacer("/", "_", "\\", "_").Replace(segment)
	if segment == "" || segment == "." || segment == ".." {
		return "_"
	}
	return segment
}

// Recorder writes payloads to a BlobStore. It satisfies the judicial
// client's PayloadRecorder; failures are logged and never reach the crawl.
type Recorder struct {
	store  BlobStore
	prefix string
	logger *zap.Logger
}

// NewRecorder archives into store under prefix.
func NewRecorder(store BlobStore, prefix string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, prefix: prefix, logger: logger.Named("archive")}
}

// RecordPayload stores body when ctx carries an archive scope.
func (r *Recorder) RecordPayload(ctx context.Context, endpoint, key string, body []byte) {
	if r == nil || r.store == nil {
		return
	}
	nationalID, runID, ok := ScopeFrom(ctx)
	if !ok {
		return
	}
	p := ObjectPath(r.prefix, nationalID, runID, endpoint, key)
	uri, err := r.store.PutObject(ctx, p, "application/json", bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("failed to archive payload", zap.String("path", p), zap.Error(err))
		return
	}
	r.logger.Debug("payload archived", zap.String("uri", uri), zap.Int("bytes", len(body)))
}
