package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ubuntu/insights-inventory/internal/constants"
)

type batchProcessor interface {
	Process(ctx context.Context) error
}

// Service runs the processor whenever batches are spooled.
type Service struct {
	spoolDir string
	proc     batchProcessor

	debounce time.Duration
	interval time.Duration
}

type options struct {
	debounce time.Duration
	interval time.Duration
}

// Options represents an optional function to override Service default values.
type Options func(*options)

// WithDebounce sets how long the spool directory must stay quiet before a run.
func WithDebounce(d time.Duration) Options {
	return func(o *options) {
		o.debounce = d
	}
}

// WithInterval sets the period of the runs done without any spool activity.
func WithInterval(d time.Duration) Options {
	return func(o *options) {
		o.interval = d
	}
}

// NewService creates a Service processing the batches spooled in spoolDir with proc.
func NewService(spoolDir string, proc batchProcessor, args ...Options) *Service {
	opts := options{
		debounce: time.Second,
		interval: time.Minute,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Service{
		spoolDir: spoolDir,
		proc:     proc,
		debounce: opts.debounce,
		interval: opts.interval,
	}
}

// Run watches the spool directory and processes batches as they land, plus periodically.
// Runs are strictly sequential.
//
// This is blocking until an error occurs or the context is canceled.
// Always returns a non-nil error, which is either a context error or a watcher error.
func (s *Service) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %v", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.spoolDir); err != nil {
		return fmt.Errorf("failed to add directory %s to watcher: %v", s.spoolDir, err)
	}
	slog.Info("Ingest service started", "spool", s.spoolDir)

	// Initial run, for the batches spooled while we were not watching.
	if err := s.process(ctx); err != nil {
		return err
	}

	debounceTimer := time.NewTimer(s.debounce)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context canceled, stopping ingest service")
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed unexpectedly")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != constants.BatchExtension {
				continue
			}
			debounceTimer.Reset(s.debounce)

		case <-debounceTimer.C:
			slog.Debug("Processing batches after spool activity")
			if err := s.process(ctx); err != nil {
				return err
			}

		case <-ticker.C:
			if err := s.process(ctx); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed unexpectedly")
			}
			slog.Warn("Watcher error", "err", err)
		}
	}
}

// process runs the processor once. Only context errors stop the service.
func (s *Service) process(ctx context.Context) error {
	err := s.proc.Process(ctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrDecodeFailures):
		slog.Warn("Many events failed to decode", "err", err)
	default:
		slog.Error("Failed to process spool", "err", err)
	}
	return nil
}
