package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout 是非工作日配置使用的日期格式
const DateLayout = "2006-01-02"

// maxScanDays 限制寻找下一个工作日时的逐日扫描范围
const maxScanDays = 3660

// ErrNoWorkingDays 表示日历中不存在任何工作日
var ErrNoWorkingDays = errors.New("calendar has no working weekday")

// Settings 描述工作日历
type Settings struct {
	Epoch              time.Time      // 仿真起点（通常为某工作日的 StartHour 整点）
	StartHour          int            // 每日工作开始时间
	EndHour            int            // 每日工作结束时间（不含）
	NonWorkingWeekdays []time.Weekday // 每周的固定休息日
	NonWorkingDates    []string       // 额外的非工作日 (YYYY-MM-DD)
}

// Calendar 将仿真经过的分钟数映射到真实的工作日历时间
type Calendar struct {
	epoch     time.Time
	startHour int
	endHour   int
	weekdays  map[time.Weekday]bool
	dates     map[string]bool
}

// New 校验配置并创建日历
func New(s Settings) (*Calendar, error) {
	if s.StartHour < 0 || s.EndHour > 24 || s.StartHour >= s.EndHour {
		return nil, fmt.Errorf("invalid working hours [%d, %d)", s.StartHour, s.EndHour)
	}
	c := &Calendar{
		epoch:     s.Epoch,
		startHour: s.StartHour,
		endHour:   s.EndHour,
		weekdays:  make(map[time.Weekday]bool),
		dates:     make(map[string]bool),
	}
	for _, wd := range s.NonWorkingWeekdays {
		c.weekdays[wd] = true
	}
	if len(c.weekdays) >= 7 {
		return nil, ErrNoWorkingDays
	}
	for _, ds := range s.NonWorkingDates {
		d, err := time.ParseInLocation(DateLayout, ds, s.Epoch.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid non-working date %q (use YYYY-MM-DD): %w", ds, err)
		}
		c.dates[d.Format(DateLayout)] = true
	}
	return c, nil
}

// Epoch 返回仿真起点
func (c *Calendar) Epoch() time.Time { return c.epoch }

// Hours 返回每日工作时段 [start, end)
func (c *Calendar) Hours() (start, end int) { return c.startHour, c.endHour }

// At 返回 t 当天 hour 整点的时间
func (c *Calendar) At(t time.Time, hour int) time.Time { return c.at(t, hour) }

// IsWorkingDay 判断日期是否为工作日
func (c *Calendar) IsWorkingDay(t time.Time) bool {
	if c.weekdays[t.Weekday()] {
		return false
	}
	return !c.dates[t.Format(DateLayout)]
}

// NextWorkingDay 返回 t 之后第一个工作日的 StartHour 时刻
func (c *Calendar) NextWorkingDay(t time.Time) time.Time {
	d := c.at(t, c.startHour)
	for i := 0; i < maxScanDays; i++ {
		d = d.AddDate(0, 0, 1)
		if c.IsWorkingDay(d) {
			return d
		}
	}
	// 非工作日列表是有限的，扫描范围内必然存在工作日
	panic(fmt.Sprintf("calendar: no working day within %d days after %s", maxScanDays, t.Format(DateLayout)))
}

// Clamp 将时间调整到最近的工作时段内（当前或之后）
func (c *Calendar) Clamp(t time.Time) time.Time {
	if !c.IsWorkingDay(t) {
		return c.NextWorkingDay(t)
	}
	if t.Before(c.at(t, c.startHour)) {
		return c.at(t, c.startHour)
	}
	if !t.Before(c.at(t, c.endHour)) {
		return c.NextWorkingDay(t)
	}
	return t
}

// Map 将仿真经过的分钟数转换为日历时间。
// 只有工作日的 [StartHour, EndHour) 时段消耗分钟数，非工作时段不计。
func (c *Calendar) Map(elapsed float64) time.Time {
	if elapsed <= 0 {
		return c.epoch
	}
	remaining := time.Duration(elapsed * float64(time.Minute))
	cursor := c.epoch
	for {
		cursor = c.Clamp(cursor)
		available := c.at(cursor, c.endHour).Sub(cursor)
		if remaining < available {
			return cursor.Add(remaining)
		}
		// 恰好用完当天时段时顺延到下一个工作日开工时刻
		remaining -= available
		cursor = c.NextWorkingDay(cursor)
	}
}

func (c *Calendar) at(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

// ParseWeekday 解析英文星期名称（大小写不敏感，支持三字母缩写）
func ParseWeekday(s string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := wd.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
