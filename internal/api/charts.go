package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachAdminRoutes mounts the debug pages under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("counters-chart", "Entered/exited per hour", s.handleCountersChart)
	debug.HandleFunc("outofrange", "Out-of-range compensation status", s.showOutOfRange)
}

// handleCountersChart renders a bar chart of the hourly entered and exited
// totals.
func (s *Server) handleCountersChart(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSONError(w, http.StatusNotFound, "no count history available")
		return
	}
	totals, status, err := s.hourlyTotals(r)
	if err != nil {
		s.writeJSONError(w, status, err.Error())
		return
	}

	x := make([]string, 0, len(totals))
	entered := make([]opts.BarData, 0, len(totals))
	exited := make([]opts.BarData, 0, len(totals))
	for _, t := range totals {
		x = append(x, t.Start.Format("01-02 15:04"))
		entered = append(entered, opts.BarData{Value: t.Entered})
		exited = append(exited, opts.BarData{Value: t.Exited})
	}
	in, out := s.counters.Counters()

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "People Counter", Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Entered / exited per hour", Subtitle: fmt.Sprintf("live in=%d out=%d", in, out)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("entered", entered).
		AddSeries("exited", exited)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
