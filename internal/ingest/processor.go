// Package ingest feeds the decoder with the inventory events spooled on disk by the upstream pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ubuntu/insights-inventory/internal/constants"
	"github.com/ubuntu/insights-inventory/internal/fileutils"
	"github.com/ubuntu/insights-inventory/internal/inventory"
)

// ErrDecodeFailures is returned when more than a set threshold of the events of a run failed to be decoded.
var ErrDecodeFailures = errors.New("decode failures during processing surpassed threshold")

type eventDecoder interface {
	DecodeEvent(ctx context.Context, raw inventory.RawEvent) error
}

// Processor processes the batch files of a spool directory.
type Processor struct {
	spoolDir   string
	invalidDir string
	dec        eventDecoder

	batches *prometheus.CounterVec
}

// NewProcessor creates a Processor reading batches from spoolDir and quarantining failed events in invalidDir.
func NewProcessor(spoolDir, invalidDir string, dec eventDecoder, reg prometheus.Registerer) (*Processor, error) {
	if spoolDir == "" || invalidDir == "" {
		return nil, errors.New("spool and invalid directories must be set")
	}

	for _, dir := range []string{spoolDir, invalidDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory %q: %v", dir, err)
		}
	}

	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_ingest_batches_total",
		Help: "Number of spooled batches processed, by result.",
	}, []string{"result"})
	if err := reg.Register(batches); err != nil {
		return nil, fmt.Errorf("failed to register batches counter: %v", err)
	}

	return &Processor{
		spoolDir:   spoolDir,
		invalidDir: invalidDir,
		dec:        dec,
		batches:    batches,
	}, nil
}

// Process decodes the events of every batch file of the spool directory, oldest name first.
// Events failing to decode are quarantined, then the batch file is removed.
//
// It returns an error if a catastrophic failure occurs, or if the share of failed events exceeds a threshold.
// When ctx is cancelled in the middle of a batch, the events not decoded yet are kept in the batch file.
func (p Processor) Process(ctx context.Context) (err error) {
	const maxFailureRate = 0.15

	files, err := batchFiles(p.spoolDir)
	if err != nil {
		return fmt.Errorf("failed to list batch files: %v", err)
	}

	var attemptCount, failureCount int
	defer func() {
		if attemptCount > 0 && float64(failureCount)/float64(attemptCount) > maxFailureRate {
			err = errors.Join(ErrDecodeFailures, err)
		}
	}()

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts, failures, err := p.processBatch(ctx, file)
		attemptCount += attempts
		failureCount += failures
		if err != nil {
			return err
		}
	}

	return nil
}

// processBatch decodes each event of file and returns how many were attempted and how many failed.
func (p Processor) processBatch(ctx context.Context, file string) (attempts, failures int, err error) {
	lines, err := fileutils.ReadLines(file)
	if err != nil {
		p.batches.WithLabelValues("unreadable").Inc()
		slog.Warn("Failed to read batch file", "file", file, "err", err)
		return 0, 0, nil
	}

	var invalid []string
	for i, line := range lines {
		if ctx.Err() != nil {
			if err := fileutils.WriteLines(file, lines[i:], 0640); err != nil {
				slog.Warn("Failed to keep remaining events of interrupted batch", "file", file, "err", err)
			}
			p.quarantine(file, invalid)
			p.batches.WithLabelValues("interrupted").Inc()
			return attempts, failures, ctx.Err()
		}

		attempts++
		if err := p.decodeLine(ctx, line); err != nil {
			failures++
			invalid = append(invalid, line)
			slog.Debug("Event failed to decode", "file", file, "line", i+1, "err", err)
		}
	}

	result := "processed"
	if len(invalid) > 0 {
		result = "quarantined"
		p.quarantine(file, invalid)
	}

	if err := os.Remove(file); err != nil {
		slog.Warn("Failed to remove batch file after processing", "file", file, "err", err)
	}
	p.batches.WithLabelValues(result).Inc()
	slog.Info("Finished processing batch", "file", file, "events", len(lines), "failed", len(invalid))

	return attempts, failures, nil
}

func (p Processor) decodeLine(ctx context.Context, line string) error {
	var raw inventory.RawEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return fmt.Errorf("%w: invalid batch envelope: %v", inventory.ErrDecode, err)
	}
	return p.dec.DecodeEvent(ctx, raw)
}

// quarantine saves the failed events of a batch in the invalid directory, named after the batch id.
func (p Processor) quarantine(file string, lines []string) {
	if len(lines) == 0 {
		return
	}

	path := filepath.Join(p.invalidDir, batchID(file)+constants.BatchExtension)
	// A resumed batch keeps the events quarantined before its interruption.
	previous, err := fileutils.ReadLines(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read quarantine file, using a new one", "invalid", path, "err", err)
		path = filepath.Join(p.invalidDir, uuid.NewString()+constants.BatchExtension)
		previous = nil
	}
	lines = append(previous, lines...)

	if err := fileutils.WriteLines(path, lines, 0640); err != nil {
		slog.Warn("Failed to quarantine invalid events", "file", file, "invalid", path, "err", err)
		return
	}
	slog.Warn("Quarantined invalid events", "file", file, "invalid", path, "count", len(lines))
}

// batchFiles returns the batch files directly under dir, sorted by name.
func batchFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != constants.BatchExtension {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}

// batchID extracts the batch id from the file path.
// If the file name is not a valid UUID, a new one is generated.
func batchID(file string) string {
	id := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if err := uuid.Validate(id); err != nil {
		id = uuid.NewString()
		slog.Debug("Batch has no UUID name, generating a new one", "file", file, "UUID", id)
	}
	return id
}
