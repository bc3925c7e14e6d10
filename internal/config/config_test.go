package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearline/internal/engine"
	"gearline/internal/routing"
	"gearline/internal/station"
	"gearline/internal/types"
)

const minimalYAML = `
products:
  - name: Cónico
    quantity: 2
    route:
      - { station: Corte Material, mean_minutes: 2, capacity: 1, reject_probability: 0.001 }
      - { station: Ensamblaje, mean_minutes: 30, capacity: 3, reject_probability: 0.03 }
      - { station: Inspección Final, mean_minutes: 5, capacity: 1, reject_probability: 0.05 }
reprocess:
  inspection_gates:
    - station: Inspección Final
      redo: [Ensamblaje]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Nil(t, cfg.Seed)
	assert.Equal(t, engine.DefaultVariance, cfg.VarianceFraction)
	assert.Equal(t, station.DefaultInspectionRule, cfg.InspectionRule)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, CalendarConfig{StartDate: "2025-01-02", StartHour: 8, EndHour: 17, Timezone: "UTC"}, cfg.Calendar)
	assert.Equal(t, 2.5, cfg.Outages.SevereFactor)
	assert.Equal(t, []string{"saturday", "sunday"}, cfg.Outages.Calendar.NonWorkingWeekdays)
}

func TestLoadConfigKeepsStationNames(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Products, 1)
	p := cfg.Products[0]
	assert.Equal(t, "Cónico", p.Name)
	assert.Equal(t, 2, p.Quantity)
	assert.Equal(t, types.Stage{Station: "Inspección Final", MeanMinutes: 5, Capacity: 1, RejectProb: 0.05}, p.Route[2])
	require.Len(t, cfg.Reprocess.InspectionGates, 1)
	assert.Equal(t, "Inspección Final", cfg.Reprocess.InspectionGates[0].Station)
	assert.Equal(t, []string{"Ensamblaje"}, cfg.Reprocess.InspectionGates[0].Redo)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("LINESIM_SEED", "99")
	t.Setenv("LINESIM_CALENDAR_START_HOUR", "7")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(99), *cfg.Seed)
	assert.Equal(t, 7, cfg.Calendar.StartHour)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRepositoryConfigIsValid(t *testing.T) {
	cfg, err := LoadConfig("../../config.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Products, 3)
	assert.Len(t, cfg.Reprocess.FullReprocess, 3)

	// 生产线日历只排除列出的日期
	assert.Empty(t, cfg.Calendar.NonWorkingWeekdays)
	cal, err := cfg.Calendar.Build()
	require.NoError(t, err)
	assert.False(t, cal.IsWorkingDay(time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)), "listed date")
	assert.True(t, cal.IsWorkingDay(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)), "unlisted Saturday")

	settings, err := cfg.OutageSettings()
	require.NoError(t, err)
	assert.Len(t, settings.Stations, 11)
	assert.Equal(t, time.Date(2025, 12, 31, 17, 0, 0, 0, time.UTC), settings.End)
	assert.False(t, settings.Calendar.IsWorkingDay(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.VarianceFraction = -1
	cfg.InspectionRule = "station +"
	cfg.Calendar.StartDate = "02/01/2025"
	cfg.Products[0].Route[1].Capacity = 0
	cfg.Products[0].Route[1].RejectProb = 1.5
	cfg.Products[0].Route[2].MeanMinutes = 0
	cfg.Products = append(cfg.Products, types.Product{Name: "Helicoidal", Quantity: 1})
	cfg.Reprocess.InspectionGates[0].Redo = []string{"Soldadura"}

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{
		"variance_fraction",
		"inspection rule compilation failed",
		"start_date",
		"capacity must be >= 1",
		"reject_probability must be within [0, 1]",
		"mean_minutes must be > 0",
		`product "Helicoidal": route is empty`,
		`unknown station "Soldadura"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateRejectsUnknownFullReprocessProduct(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	cfg.Reprocess.FullReprocess = append(cfg.Reprocess.FullReprocess,
		routing.FullReprocess{Product: "Sinfín-Corona", Stations: []string{"Ensamblaje"}})

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown product "Sinfín-Corona"`)
}

func TestEngineOptionsRunsSimulation(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML+"seed: 5\n"))
	require.NoError(t, err)

	opts, err := cfg.EngineOptions(nil, discardLogger())
	require.NoError(t, err)
	assert.True(t, opts.Router.IsGate("Inspección Final"))
	assert.True(t, opts.InspectionRule.IsInspection("Inspección Final"))

	eng, err := engine.New(opts)
	require.NoError(t, err)
	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Seed)
	assert.Equal(t, 2, res.Units)

	terminal := 0
	for _, r := range res.Records {
		if r.Outcome.Terminal() {
			terminal++
		}
	}
	assert.Equal(t, 2, terminal)
}

func TestOutageSettingsUsesSectionDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML+`
outages:
  default_repair_hours: 4
  stations:
    - { station: Ensamblaje, failure_probability: 0.05 }
`))
	require.NoError(t, err)

	settings, err := cfg.OutageSettings()
	require.NoError(t, err)
	require.Len(t, settings.Stations, 1)
	assert.Equal(t, 0.05, settings.Stations[0].FailureProbability)
	assert.Equal(t, 4.0, settings.Stations[0].RepairHours)
	assert.Equal(t, 0.3, settings.Stations[0].SevereProbability)
	assert.Equal(t, time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC), settings.Start)
}

func TestOutageSettingsRejectsInvalidSection(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML+`
outages:
  start: "2025-06-01 08:00"
  end: "2025-01-01 08:00"
  stations:
    - { station: Ensamblaje, failure_probability: 2 }
`))
	require.NoError(t, err)

	_, err = cfg.OutageSettings()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "outages.start must be before outages.end")
	assert.Contains(t, err.Error(), "failure_probability must be within [0, 1]")
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, (&Config{LogLevel: in}).SlogLevel(), in)
	}
}

func TestEngineOptionsHonoursZeroVariance(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML+"seed: 3\nvariance_fraction: 0\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	opts, err := cfg.EngineOptions(nil, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, opts.Variance)
	assert.Zero(t, *opts.Variance)

	eng, err := engine.New(opts)
	require.NoError(t, err)
	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	want := map[string]float64{"Corte Material": 2 + types.InspectionOverhead, "Ensamblaje": 30 + types.InspectionOverhead, "Inspección Final": 5}
	for _, r := range res.Records {
		if d, ok := want[r.Station]; ok {
			assert.Equal(t, d, r.Duration, r.Station)
		}
	}
}
