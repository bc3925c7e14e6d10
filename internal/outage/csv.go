package outage

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// Header 是停机计划 CSV 的表头
var Header = []string{
	"falla_id",
	"estacion",
	"fecha_falla",
	"hora_falla",
	"fecha_reparacion",
	"hora_reparacion",
	"duracion_horas",
	"tipo_falla",
}

const (
	dateLayout = "2006-01-02"
	hourLayout = "15:04"
)

// WriteCSV 以分号分隔、逗号作小数点的格式写出停机计划
func WriteCSV(w io.Writer, failures []Failure) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, f := range failures {
		if err := cw.Write(Row(f)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row 将一条停机窗口转换为 CSV 行
func Row(f Failure) []string {
	return []string{
		f.ID,
		f.Station,
		f.FailedAt.Format(dateLayout),
		f.FailedAt.Format(hourLayout),
		f.RepairedAt.Format(dateLayout),
		f.RepairedAt.Format(hourLayout),
		DecimalComma(f.RepairHours),
		string(f.Severity),
	}
}

// DecimalComma 保留两位小数并以逗号作为小数点
func DecimalComma(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1)
}
