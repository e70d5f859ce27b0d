package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/zipbuilder/internal/build"
	"github.com/picklr-io/zipbuilder/internal/notify"
	"github.com/picklr-io/zipbuilder/internal/retry"
	"github.com/picklr-io/zipbuilder/internal/storage/storagetest"
)

// responseSink stands in for the pre-signed response URL.
type responseSink struct {
	mu        sync.Mutex
	responses []map[string]any
}

func (s *responseSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	data, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(data, &body)

	s.mu.Lock()
	s.responses = append(s.responses, body)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *responseSink) take(t *testing.T) map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.responses, 1)
	resp := s.responses[0]
	s.responses = nil
	return resp
}

func sourceZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestLifecycle(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("Skipping: /bin/sh not available")
	}
	sink := &responseSink{}
	srv := httptest.NewServer(sink)
	defer srv.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storagetest.NewMemoryStore()
	store.SetObject("b", "src.zip", sourceZip(t, map[string]string{
		"build.sh":   "mkdir -p dist\necho bundled > dist/app.js\n",
		"src/app.ts": "export {}",
	}))

	builder := build.New(store, build.Options{
		ScratchDir: t.TempDir(),
		Env:        map[string]string{"PATH": os.Getenv("PATH")},
		Runner:     &build.ShellRunner{},
		Logger:     quiet,
	})
	notifier := notify.NewHTTPNotifier(srv.Client(), &retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	d := New(builder, store, notifier).WithLogger(quiet)

	lifecycleEvent := func(requestType cfn.RequestType, physicalID, target string) cfn.Event {
		ev := event(requestType, physicalID, props("b", "src.zip", target))
		ev.ResponseURL = srv.URL + "/response"
		return ev
	}

	// Create
	require.NoError(t, d.Handle(context.Background(), lifecycleEvent(cfn.RequestCreate, "", "out.zip")))
	resp := sink.take(t)
	assert.Equal(t, "SUCCESS", resp["Status"])
	assert.Equal(t, "arn:aws:s3:::b/out.zip", resp["PhysicalResourceId"])

	data, ok := store.Object("b", "out.zip")
	require.True(t, ok)
	assert.Equal(t, []string{"build.sh", "dist/app.js", "src/app.ts"}, entryNames(t, data))

	// Update to a new key removes the old artifact.
	require.NoError(t, d.Handle(context.Background(), lifecycleEvent(cfn.RequestUpdate, "arn:aws:s3:::b/out.zip", "v2/out.zip")))
	resp = sink.take(t)
	assert.Equal(t, "SUCCESS", resp["Status"])
	assert.Equal(t, "arn:aws:s3:::b/v2/out.zip", resp["PhysicalResourceId"])
	assert.Equal(t, []string{"b/src.zip", "b/v2/out.zip"}, store.Keys())

	// Delete
	require.NoError(t, d.Handle(context.Background(), lifecycleEvent(cfn.RequestDelete, "arn:aws:s3:::b/v2/out.zip", "v2/out.zip")))
	resp = sink.take(t)
	assert.Equal(t, "SUCCESS", resp["Status"])
	assert.Equal(t, []string{"b/src.zip"}, store.Keys())

	// A failing build is still answered.
	store.SetObject("b", "src.zip", sourceZip(t, map[string]string{"build.sh": "exit 9\n"}))
	require.NoError(t, d.Handle(context.Background(), lifecycleEvent(cfn.RequestCreate, "", "broken.zip")))
	resp = sink.take(t)
	assert.Equal(t, "FAILED", resp["Status"])
	assert.Contains(t, resp["Reason"], "exited with status 9")
	assert.Equal(t, "arn:aws:s3:::b/broken.zip", resp["PhysicalResourceId"])
}
