package timeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"gearline/internal/types"
)

// TimestampLayout 是时间线 CSV 的时间格式
const TimestampLayout = "2006-01-02 15:04:05"

// Header 是时间线 CSV 的表头
var Header = []string{
	"timestamp",
	"producto",
	"product_id",
	"estacion",
	"duracion_min",
	"espera_min",
	"intento_numero",
	"estado_calidad",
}

// WriteCSV 按追加顺序将记录写为 CSV
func WriteCSV(w io.Writer, records []types.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec)); err != nil {
			return fmt.Errorf("写入记录失败 (unit %s): %w", rec.UnitID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row 将一条记录格式化为 CSV 行
func Row(rec types.Record) []string {
	return []string{
		rec.Timestamp.Format(TimestampLayout),
		rec.Product,
		rec.UnitID,
		rec.Station,
		formatNumber(rec.Duration),
		formatNumber(math.Round(rec.Wait*100) / 100),
		strconv.Itoa(rec.Attempt),
		rec.Outcome.Label(),
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
