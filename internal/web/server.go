package web

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gearline/internal/types"
)

// RecordSource 提供当前已产生的时间线记录
type RecordSource interface {
	Records() []types.Record
}

// NewMux 注册指标、WebSocket 与查询接口
func NewMux(hub *Hub, st *StateTracker, records RecordSource, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, st.GetStateSnapshot(), logger)
	})
	mux.HandleFunc("/api/timeline", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var outcome types.Outcome
		if v := r.URL.Query().Get("outcome"); v != "" {
			o, ok := types.ParseOutcome(v)
			if !ok {
				http.Error(w, "unknown outcome "+v, http.StatusBadRequest)
				return
			}
			outcome = o
		}
		unit := r.URL.Query().Get("unit")

		out := []types.Record{}
		for _, rec := range records.Records() {
			if unit != "" && rec.UnitID != unit {
				continue
			}
			if outcome != "" && rec.Outcome != outcome {
				continue
			}
			out = append(out, rec)
		}
		writeJSON(w, out, logger)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", "error", err)
	}
}
