package timeline

import (
	"gearline/internal/types"
)

// Counts 汇总一类工站的质检结果
type Counts struct {
	Approved      int     `json:"approved" yaml:"approved"`
	Rejected      int     `json:"rejected" yaml:"rejected"`
	Total         int     `json:"total" yaml:"total"`
	RejectionRate float64 `json:"rejection_rate_pct" yaml:"rejection_rate_pct"`
}

// ProductSummary 汇总某一产品类型的结果
type ProductSummary struct {
	Product     string  `json:"product" yaml:"product"`
	Units       int     `json:"units" yaml:"units"`
	Completed   int     `json:"completed" yaml:"completed"`
	Discarded   int     `json:"discarded" yaml:"discarded"`
	SuccessRate float64 `json:"success_rate_pct" yaml:"success_rate_pct"`
}

// StationSummary 汇总单个工站的质检与等待情况
type StationSummary struct {
	Station      string  `json:"station" yaml:"station"`
	Approved     int     `json:"approved" yaml:"approved"`
	Rejected     int     `json:"rejected" yaml:"rejected"`
	MeanWait     float64 `json:"mean_wait_min" yaml:"mean_wait_min"`
	MeanDuration float64 `json:"mean_duration_min" yaml:"mean_duration_min"`
}

// Summary 是一次仿真运行的统计结果
type Summary struct {
	Units                int              `json:"units" yaml:"units"`
	Completed            int              `json:"completed" yaml:"completed"`
	Discarded            int              `json:"discarded" yaml:"discarded"`
	Pending              int              `json:"pending" yaml:"pending"`
	Reprocesses          int              `json:"reprocesses" yaml:"reprocesses"`                     // 所有终态工件的重工转交次数
	DiscardedReprocesses int              `json:"discarded_reprocesses" yaml:"discarded_reprocesses"` // 仅报废工件的重工次数
	SuccessRate          float64          `json:"success_rate_pct" yaml:"success_rate_pct"`
	Process              Counts           `json:"process_stations" yaml:"process_stations"`
	Inspection           Counts           `json:"inspection_stations" yaml:"inspection_stations"`
	Products             []ProductSummary `json:"products" yaml:"products"`
	Stations             []StationSummary `json:"stations" yaml:"stations"`
}

// Summarize 汇总时间线记录。
// isInspection 判定工站是否为检验工站，应与仿真时使用的规则一致。
// 重工次数按每个终态记录的 (全局尝试次数 - 1) 累加；DiscardedReprocesses 只累加报废记录。
func Summarize(records []types.Record, isInspection func(station string) bool) Summary {
	var s Summary

	unitOrder := []string{}
	unitProduct := map[string]string{}
	unitFinal := map[string]types.Outcome{}

	productIdx := map[string]int{}
	stationIdx := map[string]int{}
	waitSum := map[string]float64{}
	durSum := map[string]float64{}

	for _, rec := range records {
		if _, ok := unitProduct[rec.UnitID]; !ok {
			unitOrder = append(unitOrder, rec.UnitID)
			unitProduct[rec.UnitID] = rec.Product
			if _, ok := productIdx[rec.Product]; !ok {
				productIdx[rec.Product] = len(s.Products)
				s.Products = append(s.Products, ProductSummary{Product: rec.Product})
			}
		}

		switch rec.Outcome {
		case types.OutcomeCompleted, types.OutcomeDiscarded:
			unitFinal[rec.UnitID] = rec.Outcome
			s.Reprocesses += rec.Attempt - 1
			if rec.Outcome == types.OutcomeDiscarded {
				s.DiscardedReprocesses += rec.Attempt - 1
			}
			continue
		}

		counts := &s.Process
		if isInspection != nil && isInspection(rec.Station) {
			counts = &s.Inspection
		}
		idx, ok := stationIdx[rec.Station]
		if !ok {
			idx = len(s.Stations)
			stationIdx[rec.Station] = idx
			s.Stations = append(s.Stations, StationSummary{Station: rec.Station})
		}
		st := &s.Stations[idx]
		if rec.Outcome == types.OutcomeApproved {
			counts.Approved++
			st.Approved++
		} else {
			counts.Rejected++
			st.Rejected++
		}
		counts.Total++
		waitSum[rec.Station] += rec.Wait
		durSum[rec.Station] += rec.Duration
	}

	s.Units = len(unitOrder)
	for _, id := range unitOrder {
		ps := &s.Products[productIdx[unitProduct[id]]]
		ps.Units++
		switch unitFinal[id] {
		case types.OutcomeCompleted:
			s.Completed++
			ps.Completed++
		case types.OutcomeDiscarded:
			s.Discarded++
			ps.Discarded++
		default:
			s.Pending++
		}
	}

	s.SuccessRate = percent(s.Completed, s.Units)
	s.Process.RejectionRate = percent(s.Process.Rejected, s.Process.Total)
	s.Inspection.RejectionRate = percent(s.Inspection.Rejected, s.Inspection.Total)
	for i := range s.Products {
		s.Products[i].SuccessRate = percent(s.Products[i].Completed, s.Products[i].Units)
	}
	for i := range s.Stations {
		st := &s.Stations[i]
		if n := st.Approved + st.Rejected; n > 0 {
			st.MeanWait = waitSum[st.Station] / float64(n)
			st.MeanDuration = durSum[st.Station] / float64(n)
		}
	}
	return s
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
