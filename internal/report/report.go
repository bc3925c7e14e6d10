package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"gearline/internal/engine"
	"gearline/internal/timeline"
)

// Run 描述报告对应的运行
type Run struct {
	RunID      string  `yaml:"run_id"`
	Seed       int64   `yaml:"seed"`
	Records    int     `yaml:"records"`
	SimMinutes float64 `yaml:"sim_minutes,omitempty"`
	FinishedAt string  `yaml:"finished_at,omitempty"` // 最后一条记录的日历时间
}

// Document 是控制台报告与 YAML 导出的内容
type Document struct {
	Run      Run                   `yaml:"run"`
	Summary  timeline.Summary      `yaml:"summary"`
	Stations []engine.StationStats `yaml:"station_usage,omitempty"` // 从日志离线生成时为空
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801")).MarginTop(1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).Width(24)
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
)

// Render 以表格形式把统计结果写到控制台
func Render(w io.Writer, doc Document) error {
	s := doc.Summary
	var b strings.Builder

	b.WriteString(titleStyle.Render("REPORTE DETALLADO DE CALIDAD"))
	b.WriteString("\n")
	if doc.Run.RunID != "" {
		b.WriteString(line("Ejecución", doc.Run.RunID))
	}
	b.WriteString(line("Semilla", strconv.FormatInt(doc.Run.Seed, 10)))
	if doc.Run.FinishedAt != "" {
		b.WriteString(line("Fin de la simulación", doc.Run.FinishedAt))
	}
	b.WriteString(line("Productos únicos", strconv.Itoa(s.Units)))
	b.WriteString(line("Completados", goodStyle.Render(strconv.Itoa(s.Completed))))
	b.WriteString(line("Descartados", badStyle.Render(strconv.Itoa(s.Discarded))))
	if s.Pending > 0 {
		b.WriteString(line("Sin estado final", badStyle.Render(strconv.Itoa(s.Pending))))
	}
	b.WriteString(line("Traspasos a reproceso", strconv.Itoa(s.Reprocesses)))
	b.WriteString(line("Reprocesos descartados", strconv.Itoa(s.DiscardedReprocesses)))
	b.WriteString(line("Tasa de éxito", pct(s.SuccessRate)))

	b.WriteString(sectionStyle.Render("Verificaciones de calidad"))
	b.WriteString("\n")
	b.WriteString(newTable("Tipo", "Total", "Aprobadas", "Rechazadas", "Tasa de rechazo").
		Row(countsRow("Estaciones de proceso", s.Process)...).
		Row(countsRow("Estaciones de inspección", s.Inspection)...).
		String())
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Estadísticas por tipo de producto"))
	b.WriteString("\n")
	products := newTable("Producto", "Total", "Completados", "Descartados", "Tasa de éxito")
	for _, p := range s.Products {
		products.Row(p.Product, strconv.Itoa(p.Units), strconv.Itoa(p.Completed), strconv.Itoa(p.Discarded), pct(p.SuccessRate))
	}
	b.WriteString(products.String())
	b.WriteString("\n")

	if len(s.Stations) > 0 {
		b.WriteString(sectionStyle.Render("Estaciones"))
		b.WriteString("\n")
		peaks := map[string]engine.StationStats{}
		for _, st := range doc.Stations {
			peaks[st.Name] = st
		}
		stations := newTable("Estación", "Aprobadas", "Rechazadas", "Espera media", "Duración media", "Uso máx.")
		for _, st := range s.Stations {
			usage := "-"
			if p, ok := peaks[st.Station]; ok {
				usage = fmt.Sprintf("%d/%d", p.Peak, p.Capacity)
			}
			stations.Row(st.Station, strconv.Itoa(st.Approved), strconv.Itoa(st.Rejected), minutes(st.MeanWait), minutes(st.MeanDuration), usage)
		}
		b.WriteString(stations.String())
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteYAML 以 YAML 格式导出统计结果
func WriteYAML(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("导出 YAML 失败: %w", err)
	}
	return enc.Close()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func countsRow(label string, c timeline.Counts) []string {
	return []string{label, strconv.Itoa(c.Total), strconv.Itoa(c.Approved), strconv.Itoa(c.Rejected), pct(c.RejectionRate)}
}

func line(label, value string) string {
	return labelStyle.Render(label+":") + " " + value + "\n"
}

func pct(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + "%" }

func minutes(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) + " min" }
