package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"gearline/internal/event"
	"gearline/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 日志条目类型
const (
	EntryRun    = "RUN"    // 运行元数据，位于文件首行
	EntryRecord = "RECORD" // 一条时间线记录
)

// maxLineBytes 是读取日志时单行允许的最大长度
const maxLineBytes = 1 << 20

// RunInfo 描述产生日志的那次运行
type RunInfo struct {
	RunID string `json:"run_id"`
	Seed  int64  `json:"seed"`
}

// LogEntry 代表日志文件中的一行
type LogEntry struct {
	Type   string        `json:"type"`             // 日志类型: "RUN" 或 "RECORD"
	Run    *RunInfo      `json:"run,omitempty"`    // 运行元数据
	Record *types.Record `json:"record,omitempty"` // 时间线记录
}

// Journal 以 JSON Lines 格式保存一次运行的时间线副本。
// 它只是导出格式，启动时不会读取它来恢复仿真。
type Journal struct {
	file *os.File      // 日志文件句柄
	w    *bufio.Writer // 写缓冲
	mu   sync.Mutex    // 互斥锁，保证写入的原子性
}

// CreateJournal 创建（或截断）日志文件并写入运行元数据
func CreateJournal(path string, run RunInfo) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	j := &Journal{file: file, w: bufio.NewWriter(file)}
	if err := j.write(LogEntry{Type: EntryRun, Run: &run}); err != nil {
		file.Close()
		return nil, err
	}
	return j, nil
}

// Append 将一条记录写入日志
func (j *Journal) Append(rec types.Record) error {
	return j.write(LogEntry{Type: EntryRecord, Record: &rec})
}

func (j *Journal) write(entry LogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// 写入数据并在末尾添加换行符
	if _, err := j.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Handler 返回把带记录的事件写入日志的总线处理器，写入失败只记录日志
func (j *Journal) Handler(logger *slog.Logger) event.Handler {
	return func(e event.Event) {
		if e.Record == nil {
			return
		}
		if err := j.Append(*e.Record); err != nil {
			logger.Error("写入运行日志失败", "unit_id", e.UnitID, "error", err)
		}
	}
}

// Close 刷新缓冲、落盘并关闭日志文件
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.w.Flush()
	if err == nil {
		// 确保数据被刷新到磁盘
		err = j.file.Sync()
	}
	return errors.Join(err, j.file.Close())
}

// ReadJournal 读取日志文件，返回运行元数据与按写入顺序排列的记录
func ReadJournal(path string) (RunInfo, []types.Record, error) {
	var run RunInfo
	file, err := os.Open(path)
	if err != nil {
		return run, nil, err
	}
	defer file.Close()

	var records []types.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return run, records, fmt.Errorf("%s:%d: 解析日志失败: %w", path, line, err)
		}

		switch entry.Type {
		case EntryRun:
			if entry.Run != nil {
				run = *entry.Run
			}
		case EntryRecord:
			if entry.Record != nil {
				records = append(records, *entry.Record)
			}
		default:
			return run, records, fmt.Errorf("%s:%d: 未知的日志类型 %q", path, line, entry.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return run, records, err
	}
	return run, records, nil
}
