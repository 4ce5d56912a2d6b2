package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/insights-inventory/internal/ingest"
	"github.com/ubuntu/insights-inventory/internal/inventory"
)

const batchUUID = "3f1e8c1a-8a39-4c56-9d0e-0d6b1b0a9f11"

// fakeDecoder records the events it receives and fails those whose body contains "bad".
type fakeDecoder struct {
	mu     sync.Mutex
	bodies []string

	// onDecode is called after each decoded event.
	onDecode func()
}

func (d *fakeDecoder) DecodeEvent(_ context.Context, raw inventory.RawEvent) error {
	d.mu.Lock()
	d.bodies = append(d.bodies, raw.Body)
	d.mu.Unlock()

	if d.onDecode != nil {
		d.onDecode()
	}
	if strings.Contains(raw.Body, "bad") {
		return inventory.ErrDecode
	}
	return nil
}

func (d *fakeDecoder) Bodies() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.bodies...)
}

func envelope(t *testing.T, body string) string {
	t.Helper()

	b, err := json.Marshal(inventory.RawEvent{EndpointID: "001", Provenance: "syscollector", Body: body})
	require.NoError(t, err, "Setup: failed to marshal envelope")
	return string(b)
}

func TestProcess(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		// batches maps file names to their event bodies. A body starting with "!" is written raw.
		batches map[string][]string

		wantBodies      []string
		wantQuarantined []string
		wantUUIDName    bool
		wantRemaining   []string
		wantResult      string
		wantErr         error
	}{
		"Valid batch is decoded and removed": {
			batches:    map[string][]string{batchUUID + ".jsonl": {"a", "b"}},
			wantBodies: []string{"a", "b"},
			wantResult: "processed",
		},
		"Batches are processed in name order": {
			batches: map[string][]string{
				"2.jsonl": {"c"},
				"1.jsonl": {"a", "b"},
				"3.jsonl": {"d"},
			},
			wantBodies: []string{"a", "b", "c", "d"},
			wantResult: "processed",
		},
		"Non batch files are ignored": {
			batches: map[string][]string{
				"1.jsonl":   {"a"},
				"2.tmp":     {"b"},
				".tmp-1234": {"c"},
			},
			wantBodies:    []string{"a"},
			wantRemaining: []string{".tmp-1234", "2.tmp"},
			wantResult:    "processed",
		},
		"Empty batch is removed": {
			batches:    map[string][]string{"1.jsonl": {}},
			wantResult: "processed",
		},
		"Failed events are quarantined under the batch id": {
			batches: map[string][]string{
				batchUUID + ".jsonl": {"a", "b", "c", "d", "e", "f", "g", "bad"},
			},
			wantBodies:      []string{"a", "b", "c", "d", "e", "f", "g", "bad"},
			wantQuarantined: []string{"bad"},
			wantResult:      "quarantined",
		},
		"Failed events of a batch without UUID name get a new id": {
			batches:         map[string][]string{"batch.jsonl": {"a", "b", "c", "d", "e", "f", "g", "bad"}},
			wantBodies:      []string{"a", "b", "c", "d", "e", "f", "g", "bad"},
			wantQuarantined: []string{"bad"},
			wantUUIDName:    true,
			wantResult:      "quarantined",
		},

		"Error when too many events fail": {
			batches:         map[string][]string{batchUUID + ".jsonl": {"a", "bad1", "bad2"}},
			wantBodies:      []string{"a", "bad1", "bad2"},
			wantQuarantined: []string{"bad1", "bad2"},
			wantResult:      "quarantined",
			wantErr:         ingest.ErrDecodeFailures,
		},
		"Error when envelopes are invalid": {
			batches:         map[string][]string{batchUUID + ".jsonl": {"!not json"}},
			wantQuarantined: []string{"!not json"},
			wantResult:      "quarantined",
			wantErr:         ingest.ErrDecodeFailures,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			spool, invalid := t.TempDir(), filepath.Join(t.TempDir(), "invalid")
			for file, bodies := range tc.batches {
				var lines []string
				for _, b := range bodies {
					if raw, ok := strings.CutPrefix(b, "!"); ok {
						lines = append(lines, raw)
						continue
					}
					lines = append(lines, envelope(t, b))
				}
				err := os.WriteFile(filepath.Join(spool, file), []byte(strings.Join(lines, "\n")), 0600)
				require.NoError(t, err, "Setup: failed to write batch file")
			}

			dec := &fakeDecoder{}
			p, err := ingest.NewProcessor(spool, invalid, dec, prometheus.NewRegistry())
			require.NoError(t, err, "Setup: NewProcessor should not return an error")

			err = p.Process(context.Background())
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "Process should return the expected error")
			} else {
				require.NoError(t, err, "Process should not return an error")
			}

			require.Equal(t, tc.wantBodies, dec.Bodies(), "Decoder should receive the expected events in order")

			remaining, err := os.ReadDir(spool)
			require.NoError(t, err, "ReadDir should not return an error")
			var names []string
			for _, e := range remaining {
				names = append(names, e.Name())
			}
			require.Equal(t, tc.wantRemaining, names, "Processed batches should be removed")

			quarantined, err := os.ReadDir(invalid)
			require.NoError(t, err, "ReadDir should not return an error")
			if tc.wantQuarantined == nil {
				require.Empty(t, quarantined, "No event should be quarantined")
				require.Positive(t, p.BatchesCount(tc.wantResult), "Batch result should be counted")
				return
			}
			require.Len(t, quarantined, 1, "Failed events should be quarantined in a single file")

			qName := quarantined[0].Name()
			if tc.wantUUIDName {
				require.NoError(t, uuid.Validate(strings.TrimSuffix(qName, ".jsonl")), "Quarantine file should be named after a new UUID")
			} else {
				require.Equal(t, batchUUID+".jsonl", qName, "Quarantine file should be named after the batch")
			}

			data, err := os.ReadFile(filepath.Join(invalid, qName))
			require.NoError(t, err, "ReadFile should not return an error")
			var want []string
			for _, b := range tc.wantQuarantined {
				if raw, ok := strings.CutPrefix(b, "!"); ok {
					want = append(want, raw)
					continue
				}
				want = append(want, envelope(t, b))
			}
			require.Equal(t, strings.Join(want, "\n")+"\n", string(data), "Quarantine file should contain the failed events")
			require.Equal(t, 1.0, p.BatchesCount(tc.wantResult), "Batch result should be counted")
		})
	}
}

func TestProcessInterrupted(t *testing.T) {
	t.Parallel()

	spool, invalid := t.TempDir(), t.TempDir()
	batch := filepath.Join(spool, batchUUID+".jsonl")
	quarantine := filepath.Join(invalid, batchUUID+".jsonl")
	lines := []string{envelope(t, "bad1"), envelope(t, "bad2"), envelope(t, "c")}
	require.NoError(t, os.WriteFile(batch, []byte(strings.Join(lines, "\n")+"\n"), 0600), "Setup: failed to write batch file")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dec := &fakeDecoder{onDecode: cancel}

	p, err := ingest.NewProcessor(spool, invalid, dec, prometheus.NewRegistry())
	require.NoError(t, err, "Setup: NewProcessor should not return an error")

	err = p.Process(ctx)
	require.ErrorIs(t, err, context.Canceled, "Process should return the context error")
	require.Equal(t, []string{"bad1"}, dec.Bodies(), "Decoding should stop once cancelled")

	data, err := os.ReadFile(batch)
	require.NoError(t, err, "Interrupted batch should be kept")
	require.Equal(t, strings.Join(lines[1:], "\n")+"\n", string(data), "Interrupted batch should only keep the events not decoded yet")

	data, err = os.ReadFile(quarantine)
	require.NoError(t, err, "Failed events decoded before the interruption should be quarantined")
	require.Equal(t, lines[0]+"\n", string(data), "Quarantine file should contain the failed event")
	require.Equal(t, 1.0, p.BatchesCount("interrupted"), "Interrupted batch should be counted")

	// Resuming the batch adds its new failures to the same quarantine file.
	err = p.Process(context.Background())
	require.ErrorIs(t, err, ingest.ErrDecodeFailures, "Process should report the failed events of the resumed batch")
	require.Equal(t, []string{"bad1", "bad2", "c"}, dec.Bodies(), "Resumed batch should only decode the remaining events")
	require.NoFileExists(t, batch, "Resumed batch should be removed once processed")

	data, err = os.ReadFile(quarantine)
	require.NoError(t, err, "Quarantine file should still exist")
	require.Equal(t, lines[0]+"\n"+lines[1]+"\n", string(data), "Quarantine file should keep every failed event of the batch")
	require.Equal(t, 1.0, p.BatchesCount("quarantined"), "Resumed batch should be counted")
}

func TestNewProcessor(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		noSpool     bool
		spoolIsFile bool
		registered  bool

		wantErr bool
	}{
		"Creates missing directories": {},

		"Error on empty spool directory":        {noSpool: true, wantErr: true},
		"Error when spool directory is a file":  {spoolIsFile: true, wantErr: true},
		"Error when metrics already registered": {registered: true, wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			spool, invalid := filepath.Join(root, "spool"), filepath.Join(root, "invalid")
			if tc.noSpool {
				spool = ""
			}
			if tc.spoolIsFile {
				require.NoError(t, os.WriteFile(spool, nil, 0600), "Setup: failed to write file")
			}
			reg := prometheus.NewRegistry()
			if tc.registered {
				_, err := ingest.NewProcessor(filepath.Join(root, "other"), invalid, &fakeDecoder{}, reg)
				require.NoError(t, err, "Setup: first NewProcessor should not return an error")
			}

			_, err := ingest.NewProcessor(spool, invalid, &fakeDecoder{}, reg)
			if tc.wantErr {
				require.Error(t, err, "NewProcessor should return an error")
				return
			}
			require.NoError(t, err, "NewProcessor should not return an error")
			require.DirExists(t, spool, "Spool directory should be created")
			require.DirExists(t, invalid, "Invalid directory should be created")
		})
	}
}

func TestProcessMissingSpool(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	spool := filepath.Join(root, "spool")
	p, err := ingest.NewProcessor(spool, filepath.Join(root, "invalid"), &fakeDecoder{}, prometheus.NewRegistry())
	require.NoError(t, err, "Setup: NewProcessor should not return an error")
	require.NoError(t, os.Remove(spool), "Setup: failed to remove spool directory")

	err = p.Process(context.Background())
	require.Error(t, err, "Process should fail when the spool directory is gone")
	require.False(t, errors.Is(err, ingest.ErrDecodeFailures), "Process should not report decode failures")
}
