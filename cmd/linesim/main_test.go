package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"gearline/internal/persistence"
	"gearline/internal/timeline"
)

const testConfig = `
seed: 11
products:
  - name: Cónico
    quantity: 4
    route:
      - { station: Corte Material, mean_minutes: 2, capacity: 1, reject_probability: 0.1 }
      - { station: Ensamblaje, mean_minutes: 30, capacity: 3, reject_probability: 0.3 }
      - { station: Inspección Final, mean_minutes: 5, capacity: 1, reject_probability: 0.3 }
reprocess:
  inspection_gates:
    - station: Inspección Final
      redo: [Ensamblaje]
`

func TestParseFlags(t *testing.T) {
	o, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultTimelinePath, o.out)
	assert.False(t, o.seedSet)

	o, err = parseFlags([]string{"--seed", "0", "-c", "line.yaml", "--serve", ":8080"})
	require.NoError(t, err)
	assert.True(t, o.seedSet)
	assert.Equal(t, int64(0), o.seed)
	assert.Equal(t, "line.yaml", o.configPath)
	assert.Equal(t, ":8080", o.serve)

	o, err = parseFlags([]string{"--from-journal", "run.jsonl"})
	require.NoError(t, err)
	assert.Empty(t, o.out, "replaying a journal does not rewrite the CSV by default")

	_, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func readSummary(t *testing.T, path string) timeline.Summary {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Summary timeline.Summary `yaml:"summary"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc.Summary
}

func TestSimulateThenReplayJournal(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := options{
		configPath:  cfgPath,
		out:         filepath.Join(dir, "timeline.csv"),
		journal:     filepath.Join(dir, "run.jsonl"),
		summaryYAML: filepath.Join(dir, "summary.yaml"),
		quiet:       true,
	}
	require.NoError(t, simulate(context.Background(), opts, logger))

	f, err := os.Open(opts.out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, timeline.Header, rows[0])

	run, records, err := persistence.ReadJournal(opts.journal)
	require.NoError(t, err)
	assert.Equal(t, int64(11), run.Seed)
	assert.NotEmpty(t, run.RunID)
	assert.Len(t, records, len(rows)-1)

	simulated := readSummary(t, opts.summaryYAML)
	assert.Equal(t, 4, simulated.Units)
	assert.Equal(t, 4, simulated.Completed+simulated.Discarded)

	replayed := options{
		configPath:  cfgPath,
		fromJournal: opts.journal,
		summaryYAML: filepath.Join(dir, "replayed.yaml"),
		quiet:       true,
	}
	require.NoError(t, replay(replayed, logger))
	if diff := cmp.Diff(simulated, readSummary(t, replayed.summaryYAML)); diff != "" {
		t.Errorf("replayed summary differs (-simulated +replayed):\n%s", diff)
	}
}

func TestSimulateSeedFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))

	var journals [2]string
	for i := range journals {
		journals[i] = filepath.Join(dir, "run"+string(rune('a'+i))+".jsonl")
		opts := options{configPath: cfgPath, journal: journals[i], seed: 99, seedSet: true, quiet: true}
		require.NoError(t, simulate(context.Background(), opts, slog.New(slog.NewTextHandler(io.Discard, nil))))
	}

	runA, a, err := persistence.ReadJournal(journals[0])
	require.NoError(t, err)
	_, b, err := persistence.ReadJournal(journals[1])
	require.NoError(t, err)
	assert.Equal(t, int64(99), runA.Seed)
	assert.Empty(t, cmp.Diff(a, b), "same seed must reproduce the same timeline")
}

func TestSimulateRejectsInvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("products: []\n"), 0o644))

	err := simulate(context.Background(), options{configPath: cfgPath, quiet: true}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	assert.Error(t, err)
}
