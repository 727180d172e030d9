package syncer

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyreg/internal/audit"
	"skyreg/internal/egress"
	"skyreg/internal/registry"
	"skyreg/internal/registry/store"
	"skyreg/pkg/testutil"
)

func newTestClient(h http.Handler) *http.Client {
	c := NewHTTPClient()
	c.Transport = testutil.HandlerTransport{Handler: h}
	return c
}

func buildArchive(t *testing.T, entryName string, rows [][]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(entryName)
	require.NoError(t, err)
	cw := csv.NewWriter(w)
	require.NoError(t, cw.WriteAll(rows))
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func archiveHandler(archive []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	})
}

func waitForIdle(t *testing.T, s *Syncer) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := s.Status(context.Background())
		require.NoError(t, err)
		if !st.Running {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sync did not finish in time")
	return Status{}
}

var masterRows = [][]string{
	{"N-NUMBER", "SERIAL NUMBER", "NAME", "MODE S CODE HEX", "STATUS CODE"},
	{"1AB", "SN-1", "FIRST OWNER", "A00001", "V"},
	{"2CD", "SN-2", "SECOND OWNER", "A00002", "V"},
	{"3EF", "SN-3", "THIRD OWNER", "not-hex", "V"},
	{"", "SN-4", "NO TAIL", "A00004", "V"},
}

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) Invalidate() { c.calls.Add(1) }

func TestSyncer_EndToEnd(t *testing.T) {
	archive := buildArchive(t, "MASTER.txt", masterRows)
	st := store.NewMemory()
	publisher := audit.NewMemoryPublisher()
	inv := &countingInvalidator{}

	s := New(st, &egress.Validator{}, Config{SourceURL: "http://registry.example.org/data.zip", BatchSize: 2},
		WithHTTPClient(newTestClient(archiveHandler(archive))),
		WithAudit(publisher),
		WithInvalidator(inv),
	)

	require.NoError(t, s.Trigger(context.Background(), ""))
	status := waitForIdle(t, s)

	require.NotNil(t, status.LastSync)
	assert.Equal(t, int64(3), status.LastSync.TotalRecords)
	assert.Equal(t, "http://registry.example.org/data.zip", status.LastSync.SourceURL)
	assert.NotEmpty(t, status.LastSync.Version)
	assert.Empty(t, status.LastError)
	assert.Equal(t, int32(1), inv.calls.Load())

	rec, err := st.FindByKey(context.Background(), registry.KeyRegistration, "1AB")
	require.NoError(t, err)
	assert.Equal(t, "FIRST OWNER", rec.RegistrantName)

	rec, err = st.FindByKey(context.Background(), registry.KeyModeSHex, "A00002")
	require.NoError(t, err)
	assert.Equal(t, "2CD", rec.Registration)

	// Invalid hex is dropped from the record but the record itself is kept.
	rec, err = st.FindByKey(context.Background(), registry.KeyRegistration, "3EF")
	require.NoError(t, err)
	assert.Empty(t, rec.ModeSHex)

	events := publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, audit.TypeSyncStarted, events[0].Type)
	assert.Equal(t, audit.TypeSyncCompleted, events[1].Type)
	assert.Equal(t, "3", events[1].Details["records"])
	assert.Equal(t, "1", events[1].Details["skipped"])
	assert.Equal(t, events[0].RunID, events[1].RunID)
}

func TestSyncer_RejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	archive := buildArchive(t, "MASTER.txt", masterRows)
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write(archive)
	})

	s := New(store.NewMemory(), &egress.Validator{}, Config{SourceURL: "http://registry.example.org/data.zip"},
		WithHTTPClient(newTestClient(h)))

	require.NoError(t, s.Trigger(context.Background(), ""))
	err := s.Trigger(context.Background(), "")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	waitForIdle(t, s)

	// A finished run frees the slot.
	require.NoError(t, s.Trigger(context.Background(), ""))
	waitForIdle(t, s)
}

func TestSyncer_MissingArchiveEntry(t *testing.T) {
	archive := buildArchive(t, "OTHER.txt", masterRows)
	s := New(store.NewMemory(), &egress.Validator{}, Config{SourceURL: "http://registry.example.org/data.zip"},
		WithHTTPClient(newTestClient(archiveHandler(archive))))

	require.NoError(t, s.Trigger(context.Background(), ""))
	status := waitForIdle(t, s)
	assert.Contains(t, status.LastError, "archive entry missing")
	assert.Nil(t, status.LastSync)
}

func TestSyncer_RefusesRedirects(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data", http.StatusFound)
	})
	s := New(store.NewMemory(), &egress.Validator{}, Config{SourceURL: "http://registry.example.org/data.zip"},
		WithHTTPClient(newTestClient(h)))

	require.NoError(t, s.Trigger(context.Background(), ""))
	status := waitForIdle(t, s)
	assert.Contains(t, status.LastError, "redirect")
}

func TestSyncer_TriggerVetoesUnsafeURL(t *testing.T) {
	s := New(store.NewMemory(), &egress.Validator{}, Config{SourceURL: "http://registry.example.org/data.zip"})

	err := s.Trigger(context.Background(), "http://169.254.169.254/latest/meta-data")
	assert.ErrorIs(t, err, egress.ErrUnsafeDestination)

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestSyncer_FailedRunKeepsPreviousGeneration(t *testing.T) {
	archive := buildArchive(t, "MASTER.txt", masterRows)
	var fail atomic.Bool
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(archive)
	})

	st := store.NewMemory()
	s := New(st, &egress.Validator{}, Config{SourceURL: "http://registry.example.org/data.zip"},
		WithHTTPClient(newTestClient(h)))

	require.NoError(t, s.Trigger(context.Background(), ""))
	first := waitForIdle(t, s)
	require.NotNil(t, first.LastSync)

	fail.Store(true)
	require.NoError(t, s.Trigger(context.Background(), ""))
	second := waitForIdle(t, s)

	assert.Contains(t, second.LastError, "unexpected status 503")
	require.NotNil(t, second.LastSync)
	assert.Equal(t, first.LastSync.SyncedAt, second.LastSync.SyncedAt)

	rec, err := st.FindByKey(context.Background(), registry.KeyRegistration, "1AB")
	require.NoError(t, err)
	assert.Equal(t, "FIRST OWNER", rec.RegistrantName)
}

func TestSyncer_EmptyDatasetReplacesAll(t *testing.T) {
	full := buildArchive(t, "MASTER.txt", masterRows)
	empty := buildArchive(t, "MASTER.txt", masterRows[:1])
	var serveEmpty atomic.Bool
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if serveEmpty.Load() {
			_, _ = w.Write(empty)
			return
		}
		_, _ = w.Write(full)
	})

	st := store.NewMemory()
	s := New(st, &egress.Validator{}, Config{SourceURL: "http://registry.example.org/data.zip"},
		WithHTTPClient(newTestClient(h)))

	require.NoError(t, s.Trigger(context.Background(), ""))
	waitForIdle(t, s)

	serveEmpty.Store(true)
	require.NoError(t, s.Trigger(context.Background(), ""))
	status := waitForIdle(t, s)

	require.NotNil(t, status.LastSync)
	assert.Equal(t, int64(0), status.LastSync.TotalRecords)
	_, err := st.FindByKey(context.Background(), registry.KeyRegistration, "1AB")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
