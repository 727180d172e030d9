// Package syncer downloads the bulk registry dataset and atomically replaces
// the canonical record set. At most one sync runs at a time.
package syncer

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"skyreg/internal/audit"
	"skyreg/internal/egress"
	"skyreg/internal/platform/metrics"
	"skyreg/internal/registry"
	"skyreg/internal/registry/store"
	"skyreg/pkg/platform/sentinel"
)

var (
	// ErrAlreadyRunning rejects a trigger while a sync is in flight.
	ErrAlreadyRunning = fmt.Errorf("sync already running: %w", sentinel.ErrConflict)
	// ErrMissingEntry means the downloaded archive lacks the expected file.
	ErrMissingEntry = errors.New("expected archive entry missing")
)

// Invalidator clears resolver-local memo state after a successful sync.
type Invalidator interface {
	Invalidate()
}

// Config tunes one Syncer instance.
type Config struct {
	// SourceURL is the default archive location when a trigger names none.
	SourceURL string
	// EntryName is the archive member holding the delimited master file.
	EntryName string
	// BatchSize is how many records are flushed per upsert.
	BatchSize int
}

// Status is the operator-facing view of the synchronizer.
type Status struct {
	LastSync  *registry.SyncMetadata `json:"lastSync,omitempty"`
	Running   bool                   `json:"inProgress"`
	Progress  *registry.Progress     `json:"progress,omitempty"`
	LastError string                 `json:"lastError,omitempty"`
}

// Syncer ingests the bulk dataset. The single-flight guard is the progress
// handle: non-nil means a run is in flight.
type Syncer struct {
	store       store.Store
	validator   *egress.Validator
	client      *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
	audit       audit.Publisher
	invalidator Invalidator
	tracer      trace.Tracer
	cfg         Config

	mu       stdsync.Mutex
	progress *registry.Progress
	lastErr  string
}

// Option configures a Syncer.
type Option func(*Syncer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

func WithAudit(p audit.Publisher) Option {
	return func(s *Syncer) { s.audit = p }
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Syncer) { s.invalidator = inv }
}

// WithHTTPClient overrides the download transport. The client must not
// follow redirects; NewHTTPClient is the reference configuration.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Syncer) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTTPClient builds the download transport. Redirects are refused so no
// request ever reaches a destination that skipped egress validation.
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			return fmt.Errorf("%w: redirect to %q refused", egress.ErrUnsafeDestination, req.URL)
		},
	}
}

// New creates a Syncer.
func New(st store.Store, validator *egress.Validator, cfg Config, opts ...Option) *Syncer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.EntryName == "" {
		cfg.EntryName = "MASTER.txt"
	}
	s := &Syncer{
		store:     st,
		validator: validator,
		client:    NewHTTPClient(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("skyreg/registry/syncer"),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status reports the last completed sync plus the in-flight state.
func (s *Syncer) Status(ctx context.Context) (Status, error) {
	meta, err := s.store.ReadMetadata(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("read sync metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		LastSync:  meta,
		Running:   s.progress != nil,
		LastError: s.lastErr,
	}
	if s.progress != nil {
		p := *s.progress
		st.Progress = &p
	}
	return st, nil
}

// Trigger starts an asynchronous sync of rawURL (or the configured default).
// It fails fast with ErrAlreadyRunning or an egress veto; it never blocks on
// the download itself.
func (s *Syncer) Trigger(_ context.Context, rawURL string) error {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		url = s.cfg.SourceURL
	}
	if err := s.validator.Validate(url); err != nil {
		return err
	}

	s.mu.Lock()
	if s.progress != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.progress = &registry.Progress{StartedAt: time.Now()}
	s.mu.Unlock()

	go s.run(url)
	return nil
}

func (s *Syncer) run(url string) {
	// Detached from the trigger request: a sync either completes or fails,
	// it is not cancelled mid-flight.
	ctx, span := s.tracer.Start(context.Background(), "registry.sync",
		trace.WithAttributes(attribute.String("source.url", url)))
	defer span.End()

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "url", url)
	start := time.Now()

	s.emit(ctx, logger, audit.Event{
		Type:    audit.TypeSyncStarted,
		RunID:   runID,
		Details: map[string]string{"url": url},
	})

	total, skipped, err := s.execute(ctx, url)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.progress = nil
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("registry sync failed", "error", err, "duration", elapsed)
		s.metrics.RecordSyncRun("failure", elapsed)
		s.emit(ctx, logger, audit.Event{
			Type:    audit.TypeSyncFailed,
			RunID:   runID,
			Details: map[string]string{"url": url, "error": err.Error()},
		})
		return
	}

	logger.Info("registry sync completed", "records", total, "skipped", skipped, "duration", elapsed)
	s.metrics.RecordSyncRun("success", elapsed)
	s.metrics.AddRecordsLoaded(int(total))
	s.metrics.AddRecordsSkipped(int(skipped))
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	s.emit(ctx, logger, audit.Event{
		Type:  audit.TypeSyncCompleted,
		RunID: runID,
		Details: map[string]string{
			"url":     url,
			"records": fmt.Sprintf("%d", total),
			"skipped": fmt.Sprintf("%d", skipped),
		},
	})
}

func (s *Syncer) execute(ctx context.Context, url string) (total, skipped int64, err error) {
	scratch, err := os.MkdirTemp("", "skyreg-sync-")
	if err != nil {
		return 0, 0, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	archivePath := filepath.Join(scratch, "registry.zip")
	if err := s.download(ctx, url, archivePath); err != nil {
		return 0, 0, err
	}

	entryPath, version, err := s.extract(archivePath, scratch)
	if err != nil {
		return 0, 0, err
	}

	f, err := os.Open(entryPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open extracted dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headerRow, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("read dataset header: %w", err)
	}
	headers := make([]string, len(headerRow))
	for i, h := range headerRow {
		headers[i] = normalizeHeader(h)
	}

	err = s.store.Replace(ctx, func(ctx context.Context, tx store.BulkTx) error {
		if err := tx.DeleteAll(ctx); err != nil {
			return err
		}

		batch := make([]registry.Aircraft, 0, s.cfg.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := tx.BatchUpsert(ctx, batch)
			if err != nil {
				return err
			}
			total += int64(n)
			batch = batch[:0]
			s.publishProgress(total)
			return nil
		}

		for {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("read source record: %w", err)
			}
			rec, ok := mapAircraft(rowToMap(headers, row))
			if !ok {
				skipped++
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= s.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := flush(); err != nil {
			return err
		}

		return tx.WriteMetadata(ctx, registry.SyncMetadata{
			SourceURL:    url,
			Version:      version,
			SyncedAt:     time.Now().UTC(),
			TotalRecords: total,
		})
	})
	return total, skipped, err
}

func (s *Syncer) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("download registry archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download registry archive: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create scratch archive: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write scratch archive: %w", err)
	}
	return nil
}

// extract pulls the expected entry out of the archive into the scratch dir
// and derives the dataset version from the entry's modification time.
func (s *Syncer) extract(archivePath, scratch string) (string, string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", "", fmt.Errorf("open registry archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(path.Base(f.Name), s.cfg.EntryName) {
			continue
		}

		version := f.Modified.UTC()
		if version.IsZero() {
			version = time.Now().UTC()
		}

		src, err := f.Open()
		if err != nil {
			return "", "", fmt.Errorf("open archive entry %q: %w", f.Name, err)
		}
		defer src.Close()

		dst := filepath.Join(scratch, "dataset.txt")
		out, err := os.Create(dst)
		if err != nil {
			return "", "", fmt.Errorf("create extracted dataset: %w", err)
		}
		defer out.Close()
		if _, err := io.Copy(out, src); err != nil {
			return "", "", fmt.Errorf("extract archive entry %q: %w", f.Name, err)
		}
		return dst, version.Format("20060102T150405Z"), nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrMissingEntry, s.cfg.EntryName)
}

func (s *Syncer) publishProgress(records int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress != nil {
		s.progress.Records = records
	}
}

func (s *Syncer) emit(ctx context.Context, logger *slog.Logger, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		logger.Warn("audit emit failed", "type", event.Type, "error", err)
	}
}

func rowToMap(headers, row []string) map[string]string {
	raw := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(row) {
			raw[h] = row[i]
		}
	}
	return raw
}
