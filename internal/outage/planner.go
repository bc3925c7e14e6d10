package outage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"gearline/internal/calendar"
)

// 故障生成的默认参数
const (
	DefaultFailureProbability = 0.02
	DefaultRepairHours        = 2.0
	DefaultSevereProbability  = 0.3
	DefaultRepairStdDev       = 0.3
	DefaultSevereFactor       = 2.5

	maxDaysUntilFailure = 365  // 单次抽样的最长无故障天数
	minRepairHours      = 0.25 // 维修时长下限（小时）
)

// Severity 是故障的严重程度
type Severity string

const (
	SeverityMinor  Severity = "LEVE"
	SeveritySevere Severity = "GRAVE"
)

// StationProfile 定义单个工站的故障参数，零值字段使用默认参数
type StationProfile struct {
	Station            string
	FailureProbability float64 // 每个工作日发生故障的概率
	RepairHours        float64 // 平均维修时长（小时）
	SevereProbability  float64 // 严重故障的概率
}

// Settings 定义一次停机计划的生成参数
type Settings struct {
	Start                time.Time
	End                  time.Time
	Calendar             *calendar.Calendar
	RepairStdDevFraction float64 // 维修时长标准差占均值的比例
	SevereFactor         float64 // 严重故障的维修时长倍数
	Stations             []StationProfile
}

// Failure 是一条停机窗口
type Failure struct {
	ID            string    `json:"id" yaml:"id"`
	Station       string    `json:"station" yaml:"station"`
	FailedAt      time.Time `json:"failed_at" yaml:"failed_at"`
	RepairedAt    time.Time `json:"repaired_at" yaml:"repaired_at"`
	RepairHours   float64   `json:"repair_hours" yaml:"repair_hours"`
	DaysSinceLast int       `json:"days_since_last" yaml:"days_since_last"`
	Severity      Severity  `json:"severity" yaml:"severity"`
}

// Planner 为每个工站生成随机的故障与维修窗口
type Planner struct {
	s      Settings
	rng    *rand.Rand
	logger *slog.Logger
}

// NewPlanner 校验参数并创建停机计划生成器
func NewPlanner(s Settings, rng *rand.Rand, logger *slog.Logger) (*Planner, error) {
	if s.Calendar == nil {
		return nil, errors.New("outage: calendar is required")
	}
	if !s.Start.Before(s.End) {
		return nil, fmt.Errorf("outage: start %s must be before end %s", s.Start, s.End)
	}
	if s.RepairStdDevFraction <= 0 {
		s.RepairStdDevFraction = DefaultRepairStdDev
	}
	if s.SevereFactor <= 0 {
		s.SevereFactor = DefaultSevereFactor
	}
	for i := range s.Stations {
		p := &s.Stations[i]
		if p.FailureProbability <= 0 {
			p.FailureProbability = DefaultFailureProbability
		}
		if p.RepairHours <= 0 {
			p.RepairHours = DefaultRepairHours
		}
		if p.SevereProbability <= 0 {
			p.SevereProbability = DefaultSevereProbability
		}
	}
	return &Planner{s: s, rng: rng, logger: logger.With("component", "outage_planner")}, nil
}

// Plan 按配置顺序为所有工站生成停机窗口
func (p *Planner) Plan(ctx context.Context) ([]Failure, error) {
	var all []Failure
	for _, profile := range p.s.Stations {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		failures, err := p.planStation(profile)
		if err != nil {
			return all, err
		}
		p.logger.Debug("工站故障已生成", "station", profile.Station, "failures", len(failures))
		all = append(all, failures...)
	}
	p.logger.Info("停机计划生成完成", "stations", len(p.s.Stations), "failures", len(all))
	return all, nil
}

func (p *Planner) planStation(profile StationProfile) ([]Failure, error) {
	var out []Failure
	cursor := p.s.Start
	for cursor.Before(p.s.End) {
		days := p.daysUntilFailure(profile.FailureProbability)
		failedAt := cursor.AddDate(0, 0, days)
		if !failedAt.Before(p.s.End) {
			break
		}
		failedAt = p.s.Calendar.Clamp(failedAt)

		severity := SeverityMinor
		if p.rng.Float64() < profile.SevereProbability {
			severity = SeveritySevere
		}
		hours := p.repairHours(profile.RepairHours, severity)
		repairedAt := p.workingTime(failedAt.Add(time.Duration(hours * float64(time.Hour))))
		if repairedAt.After(p.s.End) {
			repairedAt = p.s.End
		}

		id, err := p.failureID(profile.Station)
		if err != nil {
			return out, err
		}
		out = append(out, Failure{
			ID:            id,
			Station:       profile.Station,
			FailedAt:      failedAt,
			RepairedAt:    repairedAt,
			RepairHours:   hours,
			DaysSinceLast: days,
			Severity:      severity,
		})
		cursor = repairedAt
	}
	return out, nil
}

// daysUntilFailure 逐日进行伯努利抽样，返回下一次故障前经过的天数
func (p *Planner) daysUntilFailure(prob float64) int {
	for days := 0; days <= maxDaysUntilFailure; days++ {
		if p.rng.Float64() < prob {
			return days + 1
		}
	}
	return maxDaysUntilFailure
}

func (p *Planner) repairHours(base float64, severity Severity) float64 {
	if severity == SeveritySevere {
		base *= p.s.SevereFactor
	}
	h := p.rng.NormFloat64()*base*p.s.RepairStdDevFraction + base
	return math.Max(minRepairHours, h)
}

// workingTime 将维修结束时间移入工作时段，下班后超出的部分顺延到下一个工作日
func (p *Planner) workingTime(t time.Time) time.Time {
	cal := p.s.Calendar
	start, end := cal.Hours()
	for {
		if !cal.IsWorkingDay(t) {
			t = cal.NextWorkingDay(t)
		}
		switch {
		case t.Hour() >= start && t.Hour() < end:
			return t
		case t.Hour() < start:
			t = cal.At(t, start)
		default:
			overflow := time.Duration(t.Hour()-end)*time.Hour + time.Duration(t.Minute())*time.Minute
			next := cal.NextWorkingDay(t)
			hour := start + int(overflow/time.Hour)
			if hour >= end {
				next = cal.NextWorkingDay(next)
				hour = start + (hour - end)
			}
			t = cal.At(next, hour).Add(overflow % time.Hour)
		}
	}
}

// failureID 由工站名称前三个字符和随机十六进制后缀组成，例如 COR-1A2B3C
func (p *Planner) failureID(station string) (string, error) {
	id, err := uuid.NewRandomFromReader(p.rng)
	if err != nil {
		return "", fmt.Errorf("生成故障 ID 失败: %w", err)
	}
	prefix := []rune(station)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return strings.ToUpper(string(prefix)) + "-" + strings.ToUpper(id.String()[:6]), nil
}
