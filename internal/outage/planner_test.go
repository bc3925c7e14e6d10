package outage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearline/internal/calendar"
)

func testCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(calendar.Settings{
		Epoch:              time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC),
		StartHour:          8,
		EndHour:            17,
		NonWorkingWeekdays: []time.Weekday{time.Saturday, time.Sunday},
	})
	require.NoError(t, err)
	return cal
}

func testPlanner(t *testing.T, seed int64, stations ...StationProfile) *Planner {
	t.Helper()
	p, err := NewPlanner(Settings{
		Start:    time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 31, 17, 0, 0, 0, time.UTC),
		Calendar: testCalendar(t),
		Stations: stations,
	}, rand.New(rand.NewSource(seed)), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func TestNewPlannerAppliesDefaults(t *testing.T) {
	p := testPlanner(t, 1, StationProfile{Station: "Ensamblaje"})
	assert.Equal(t, DefaultRepairStdDev, p.s.RepairStdDevFraction)
	assert.Equal(t, DefaultSevereFactor, p.s.SevereFactor)
	assert.Equal(t, StationProfile{
		Station:            "Ensamblaje",
		FailureProbability: DefaultFailureProbability,
		RepairHours:        DefaultRepairHours,
		SevereProbability:  DefaultSevereProbability,
	}, p.s.Stations[0])
}

func TestNewPlannerRejectsInvalidSettings(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rng := rand.New(rand.NewSource(1))
	start := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)

	_, err := NewPlanner(Settings{Start: start, End: start.Add(time.Hour)}, rng, logger)
	assert.Error(t, err, "missing calendar")

	_, err = NewPlanner(Settings{Start: start, End: start, Calendar: testCalendar(t)}, rng, logger)
	assert.Error(t, err, "empty period")
}

func TestWorkingTime(t *testing.T) {
	p := testPlanner(t, 1)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"inside window", time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC), time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC)},
		{"before opening", time.Date(2025, 1, 2, 6, 15, 0, 0, time.UTC), time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)},
		{"evening overflow", time.Date(2025, 1, 2, 18, 30, 0, 0, time.UTC), time.Date(2025, 1, 3, 9, 30, 0, 0, time.UTC)},
		{"friday overflow skips weekend", time.Date(2025, 1, 3, 19, 45, 0, 0, time.UTC), time.Date(2025, 1, 6, 10, 45, 0, 0, time.UTC)},
		{"late night overflow", time.Date(2025, 1, 2, 23, 59, 0, 0, time.UTC), time.Date(2025, 1, 3, 14, 59, 0, 0, time.UTC)},
		{"saturday", time.Date(2025, 1, 4, 10, 0, 0, 0, time.UTC), time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)},
		{"closing hour", time.Date(2025, 1, 2, 17, 0, 0, 0, time.UTC), time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.workingTime(tt.in))
		})
	}
}

func TestDaysUntilFailure(t *testing.T) {
	p := testPlanner(t, 1)
	assert.Equal(t, 1, p.daysUntilFailure(1))
	assert.Equal(t, maxDaysUntilFailure, p.daysUntilFailure(0))
}

func TestRepairHours(t *testing.T) {
	p := testPlanner(t, 3)
	p.s.RepairStdDevFraction = 1e-9

	assert.InDelta(t, 4.0, p.repairHours(4, SeverityMinor), 1e-6)
	assert.InDelta(t, 10.0, p.repairHours(4, SeveritySevere), 1e-6)
	assert.Equal(t, minRepairHours, p.repairHours(0.01, SeverityMinor))
}

func TestFailureID(t *testing.T) {
	p := testPlanner(t, 1)
	tests := []struct {
		station string
		pattern string
	}{
		{"Corte Material", `^COR-[0-9A-F]{6}$`},
		{"Inspección Software", `^INS-[0-9A-F]{6}$`},
		{"Ñu", `^ÑU-[0-9A-F]{6}$`},
	}
	for _, tt := range tests {
		id, err := p.failureID(tt.station)
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(tt.pattern), id)
	}
}

func TestPlanProducesOrderedWorkingWindows(t *testing.T) {
	p := testPlanner(t, 42,
		StationProfile{Station: "Mecanizado Rueda", FailureProbability: 0.2, RepairHours: 14, SevereProbability: 0.25},
		StationProfile{Station: "Fresado Cuñero", FailureProbability: 1, RepairHours: 3, SevereProbability: 0.5},
	)
	failures, err := p.Plan(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, failures)

	cal := p.s.Calendar
	last := map[string]time.Time{}
	seen := map[string]bool{}
	for _, f := range failures {
		assert.True(t, cal.IsWorkingDay(f.FailedAt), "failure %s on non-working day", f.ID)
		assert.True(t, f.FailedAt.Hour() >= 8 && f.FailedAt.Hour() < 17, "failure %s outside working hours", f.ID)
		assert.True(t, f.FailedAt.Before(p.s.End))
		assert.False(t, f.RepairedAt.Before(f.FailedAt), "repair of %s ends before it starts", f.ID)
		assert.False(t, f.RepairedAt.After(p.s.End))
		assert.GreaterOrEqual(t, f.RepairHours, minRepairHours)
		assert.GreaterOrEqual(t, f.DaysSinceLast, 1)
		if prev, ok := last[f.Station]; ok {
			assert.True(t, f.FailedAt.After(prev), "failures of %s overlap", f.Station)
		}
		last[f.Station] = f.RepairedAt
		seen[f.Station] = true
	}
	assert.True(t, seen["Fresado Cuñero"])
	// 站点按配置顺序输出
	assert.Equal(t, "Mecanizado Rueda", failures[0].Station)
}

func TestPlanIsReproducibleWithSeed(t *testing.T) {
	profile := StationProfile{Station: "Tallado Piñón", FailureProbability: 0.05, RepairHours: 8.5, SevereProbability: 0.3}
	first, err := testPlanner(t, 7, profile).Plan(context.Background())
	require.NoError(t, err)
	second, err := testPlanner(t, 7, profile).Plan(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("plans differ (-first +second):\n%s", diff)
	}
}

func TestPlanStopsOnCancelledContext(t *testing.T) {
	p := testPlanner(t, 1, StationProfile{Station: "Ensamblaje"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Plan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteCSV(t *testing.T) {
	failures := []Failure{
		{
			ID:          "COR-1A2B3C",
			Station:     "Corte Material",
			FailedAt:    time.Date(2025, 2, 3, 9, 15, 0, 0, time.UTC),
			RepairedAt:  time.Date(2025, 2, 4, 10, 45, 0, 0, time.UTC),
			RepairHours: 16.4567,
			Severity:    SeverityMinor,
		},
		{
			ID:          "TRA-FFFFFF",
			Station:     "Tratamiento Térmico",
			FailedAt:    time.Date(2025, 5, 2, 16, 0, 0, 0, time.UTC),
			RepairedAt:  time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC),
			RepairHours: 20,
			Severity:    SeveritySevere,
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, failures))

	want := "falla_id;estacion;fecha_falla;hora_falla;fecha_reparacion;hora_reparacion;duracion_horas;tipo_falla\n" +
		"COR-1A2B3C;Corte Material;2025-02-03;09:15;2025-02-04;10:45;16,46;LEVE\n" +
		"TRA-FFFFFF;Tratamiento Térmico;2025-05-02;16:00;2025-05-05;12:00;20,00;GRAVE\n"
	assert.Equal(t, want, buf.String())
}
