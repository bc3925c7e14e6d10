package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"gearline/internal/calendar"
	"gearline/internal/engine"
	"gearline/internal/event"
	"gearline/internal/outage"
	"gearline/internal/routing"
	"gearline/internal/station"
	"gearline/internal/types"
)

// ErrInvalidConfig 包装所有配置校验错误
var ErrInvalidConfig = errors.New("invalid configuration")

// EpochLayout 是停机计划周期起止时间的格式
const EpochLayout = "2006-01-02 15:04"

// CalendarConfig 定义工作日历
type CalendarConfig struct {
	StartDate          string   `mapstructure:"start_date"`           // 仿真起始日期 (YYYY-MM-DD)，从 start_hour 开始
	StartHour          int      `mapstructure:"start_hour"`           // 每日开工时间
	EndHour            int      `mapstructure:"end_hour"`             // 每日收工时间（不含）
	Timezone           string   `mapstructure:"timezone"`             // IANA 时区名称
	NonWorkingWeekdays []string `mapstructure:"non_working_weekdays"` // 每周休息日 (saturday, sun ...)
	NonWorkingDates    []string `mapstructure:"non_working_dates"`    // 非工作日 (YYYY-MM-DD)
}

// ReprocessConfig 定义重工路由表
type ReprocessConfig struct {
	InspectionGates []routing.Gate          `mapstructure:"inspection_gates"` // 检验关口 -> 需返工的上游工站
	FullReprocess   []routing.FullReprocess `mapstructure:"full_reprocess"`   // 产品类型 -> 需从自身完整重做的工站
}

// OutageStation 定义单个工站的故障参数
type OutageStation struct {
	Station            string  `mapstructure:"station"`
	FailureProbability float64 `mapstructure:"failure_probability"` // 每天发生故障的概率
	RepairHours        float64 `mapstructure:"repair_hours"`        // 平均维修时长（小时）
	SevereProbability  float64 `mapstructure:"severe_probability"`  // 故障为严重故障的概率
}

// OutageConfig 定义停机计划生成器的参数
type OutageConfig struct {
	Start                     string          `mapstructure:"start"` // 周期开始 (YYYY-MM-DD HH:MM)
	End                       string          `mapstructure:"end"`   // 周期结束 (YYYY-MM-DD HH:MM)
	Seed                      *int64          `mapstructure:"seed"`
	Calendar                  CalendarConfig  `mapstructure:"calendar"`
	RepairStdDevFraction      float64         `mapstructure:"repair_stddev_fraction"`
	SevereFactor              float64         `mapstructure:"severe_factor"`
	DefaultFailureProbability float64         `mapstructure:"default_failure_probability"`
	DefaultRepairHours        float64         `mapstructure:"default_repair_hours"`
	DefaultSevereProbability  float64         `mapstructure:"default_severe_probability"`
	Stations                  []OutageStation `mapstructure:"stations"`
}

// Config 定义应用程序的配置结构
// 以工站或产品名称为键的表都使用列表形式，因为 Viper 会把 map 的 key 转换为小写
type Config struct {
	Seed             *int64          `mapstructure:"seed"`              // 随机种子，为空时每次运行不同
	VarianceFraction float64         `mapstructure:"variance_fraction"` // 加工时间标准差占均值的比例
	InspectionRule   string          `mapstructure:"inspection_rule"`   // 判定检验工站的 expr 表达式
	LogLevel         string          `mapstructure:"log_level"`
	Calendar         CalendarConfig  `mapstructure:"calendar"`
	Products         []types.Product `mapstructure:"products"` // 产品、订单数量与工艺路线
	Reprocess        ReprocessConfig `mapstructure:"reprocess"`
	Outages          OutageConfig    `mapstructure:"outages"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("variance_fraction", engine.DefaultVariance)
	v.SetDefault("inspection_rule", station.DefaultInspectionRule)
	v.SetDefault("log_level", "info")

	v.SetDefault("calendar.start_date", "2025-01-02")
	v.SetDefault("calendar.start_hour", 8)
	v.SetDefault("calendar.end_hour", 17)
	v.SetDefault("calendar.timezone", "UTC")

	v.SetDefault("outages.start", "2025-01-02 08:00")
	v.SetDefault("outages.end", "2025-12-31 17:00")
	v.SetDefault("outages.calendar.start_date", "2025-01-02")
	v.SetDefault("outages.calendar.start_hour", 8)
	v.SetDefault("outages.calendar.end_hour", 17)
	v.SetDefault("outages.calendar.timezone", "UTC")
	v.SetDefault("outages.calendar.non_working_weekdays", []string{"saturday", "sunday"})
	v.SetDefault("outages.repair_stddev_fraction", 0.3)
	v.SetDefault("outages.severe_factor", 2.5)
	v.SetDefault("outages.default_failure_probability", 0.02)
	v.SetDefault("outages.default_repair_hours", 2.0)
	v.SetDefault("outages.default_severe_probability", 0.3)
}

// LoadConfig 从配置文件加载配置
// path 为空时在当前目录查找 config.yaml；环境变量 LINESIM_* 可覆盖同名配置项
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // 配置文件名称 (不带扩展名)
		v.SetConfigType("yaml")   // 配置文件类型
		v.AddConfigPath(".")      // 查找配置文件的路径 (当前目录)
	}
	v.SetEnvPrefix("LINESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("seed")

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 将配置解析到结构体中
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &cfg, nil
}

// Validate 检查仿真相关的配置，一次性返回所有问题
func (c *Config) Validate() error {
	var errs error

	if c.VarianceFraction < 0 {
		errs = multierr.Append(errs, fmt.Errorf("variance_fraction must be >= 0, got %v", c.VarianceFraction))
	}
	if _, err := station.CompileInspectionRule(c.InspectionRule); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := c.Calendar.Build(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("calendar: %w", err))
	}

	known := map[string]bool{}
	products := map[string]bool{}
	if len(c.Products) == 0 {
		errs = multierr.Append(errs, errors.New("at least one product is required"))
	}
	for i, p := range c.Products {
		if p.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("products[%d]: name is required", i))
		} else if products[p.Name] {
			errs = multierr.Append(errs, fmt.Errorf("products[%d]: duplicate product %q", i, p.Name))
		}
		products[p.Name] = true
		if p.Quantity < 0 {
			errs = multierr.Append(errs, fmt.Errorf("product %q: quantity must be >= 0, got %d", p.Name, p.Quantity))
		}
		if len(p.Route) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("product %q: route is empty", p.Name))
		}
		for j, st := range p.Route {
			errs = multierr.Append(errs, validateStage(p.Name, j, st))
			known[st.Station] = true
		}
	}

	for _, g := range c.Reprocess.InspectionGates {
		if !known[g.Station] {
			errs = multierr.Append(errs, fmt.Errorf("reprocess gate %q is not a station of any route", g.Station))
		}
		if len(g.Redo) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("reprocess gate %q has no redo stations", g.Station))
		}
		for _, target := range g.Redo {
			if !known[target] {
				errs = multierr.Append(errs, fmt.Errorf("reprocess gate %q references unknown station %q", g.Station, target))
			}
		}
	}
	for _, f := range c.Reprocess.FullReprocess {
		if !products[f.Product] {
			errs = multierr.Append(errs, fmt.Errorf("full_reprocess references unknown product %q", f.Product))
		}
		for _, st := range f.Stations {
			if !known[st] {
				errs = multierr.Append(errs, fmt.Errorf("full_reprocess for %q references unknown station %q", f.Product, st))
			}
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

func validateStage(product string, idx int, st types.Stage) error {
	var errs error
	where := fmt.Sprintf("product %q route[%d]", product, idx)
	if st.Station == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: station name is required", where))
	}
	if st.MeanMinutes <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s (%s): mean_minutes must be > 0", where, st.Station))
	}
	if st.Capacity < 1 {
		errs = multierr.Append(errs, fmt.Errorf("%s (%s): capacity must be >= 1", where, st.Station))
	}
	if st.RejectProb < 0 || st.RejectProb > 1 {
		errs = multierr.Append(errs, fmt.Errorf("%s (%s): reject_probability must be within [0, 1]", where, st.Station))
	}
	return errs
}

// Build 根据配置创建工作日历
func (c CalendarConfig) Build() (*calendar.Calendar, error) {
	loc := time.UTC
	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
		loc = l
	}
	day, err := time.ParseInLocation(calendar.DateLayout, c.StartDate, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date %q (use YYYY-MM-DD): %w", c.StartDate, err)
	}
	var weekdays []time.Weekday
	for _, name := range c.NonWorkingWeekdays {
		wd, err := calendar.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		weekdays = append(weekdays, wd)
	}
	return calendar.New(calendar.Settings{
		Epoch:              time.Date(day.Year(), day.Month(), day.Day(), c.StartHour, 0, 0, 0, loc),
		StartHour:          c.StartHour,
		EndHour:            c.EndHour,
		NonWorkingWeekdays: weekdays,
		NonWorkingDates:    c.NonWorkingDates,
	})
}

// EngineOptions 校验配置并组装仿真引擎的运行参数
func (c *Config) EngineOptions(bus *event.Bus, logger *slog.Logger) (engine.Options, error) {
	if err := c.Validate(); err != nil {
		return engine.Options{}, err
	}
	cal, err := c.Calendar.Build()
	if err != nil {
		return engine.Options{}, err
	}
	rule, err := station.CompileInspectionRule(c.InspectionRule)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Products:       c.Products,
		Calendar:       cal,
		Router:         routing.NewRouter(c.Reprocess.InspectionGates, c.Reprocess.FullReprocess, logger),
		InspectionRule: rule,
		Variance:       &c.VarianceFraction,
		Seed:           c.Seed,
		Bus:            bus,
		Logger:         logger,
	}, nil
}

// OutageSettings 校验 outages 配置并组装停机计划生成参数
func (c *Config) OutageSettings() (outage.Settings, error) {
	o := c.Outages
	var errs error

	cal, err := o.Calendar.Build()
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("outages.calendar: %w", err))
	}
	loc := time.UTC
	if cal != nil {
		loc = cal.Epoch().Location()
	}
	start, err := time.ParseInLocation(EpochLayout, o.Start, loc)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("outages.start %q (use YYYY-MM-DD HH:MM): %w", o.Start, err))
	}
	end, err := time.ParseInLocation(EpochLayout, o.End, loc)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("outages.end %q (use YYYY-MM-DD HH:MM): %w", o.End, err))
	}
	if err == nil && !start.IsZero() && !start.Before(end) {
		errs = multierr.Append(errs, errors.New("outages.start must be before outages.end"))
	}
	if len(o.Stations) == 0 {
		errs = multierr.Append(errs, errors.New("outages.stations is empty"))
	}

	profiles := make([]outage.StationProfile, 0, len(o.Stations))
	for i, st := range o.Stations {
		if st.Station == "" {
			errs = multierr.Append(errs, fmt.Errorf("outages.stations[%d]: station name is required", i))
		}
		if st.FailureProbability < 0 || st.FailureProbability > 1 {
			errs = multierr.Append(errs, fmt.Errorf("outages.stations[%d] (%s): failure_probability must be within [0, 1]", i, st.Station))
		}
		if st.SevereProbability < 0 || st.SevereProbability > 1 {
			errs = multierr.Append(errs, fmt.Errorf("outages.stations[%d] (%s): severe_probability must be within [0, 1]", i, st.Station))
		}
		if st.RepairHours < 0 {
			errs = multierr.Append(errs, fmt.Errorf("outages.stations[%d] (%s): repair_hours must be >= 0", i, st.Station))
		}
		profiles = append(profiles, outage.StationProfile{
			Station:            st.Station,
			FailureProbability: orDefault(st.FailureProbability, o.DefaultFailureProbability),
			RepairHours:        orDefault(st.RepairHours, o.DefaultRepairHours),
			SevereProbability:  orDefault(st.SevereProbability, o.DefaultSevereProbability),
		})
	}

	if errs != nil {
		return outage.Settings{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return outage.Settings{
		Start:                start,
		End:                  end,
		Calendar:             cal,
		RepairStdDevFraction: o.RepairStdDevFraction,
		SevereFactor:         o.SevereFactor,
		Stations:             profiles,
	}, nil
}

// orDefault 对未配置（零值）的工站参数使用 outages 段的默认值
func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// SlogLevel 将 log_level 转换为 slog 级别
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
