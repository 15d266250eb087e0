package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"StockWatch/internal/model"
	"StockWatch/internal/recorder"

	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle  = lipgloss.NewStyle().Bold(true)
	HelpStyle   = lipgloss.NewStyle().Faint(true)
	ErrorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	AlertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	trendStyles = map[model.TrendSignal]lipgloss.Style{
		model.Bullish: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		model.Bearish: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		model.Neutral: lipgloss.NewStyle().Faint(true),
	}
)

type column struct {
	title string
	width int
}

func cell(s string, width int) string {
	return cellStyle.Width(width + 2).Render(s)
}

func renderRow(cols []column, values []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i == len(cols)-1 {
			// free-form notes are not wrapped
			b.WriteString(values[i])
			break
		}
		b.WriteString(cell(values[i], c.width))
	}
	return strings.TrimRight(b.String(), " ")
}

func renderReport(w io.Writer, report *model.BatchReport, windows []int, loc *time.Location) {
	cols := []column{{"SYMBOL", 8}, {"DATE", 10}, {"CLOSE", 10}, {"TREND", 8}}
	for _, win := range windows {
		cols = append(cols, column{fmt.Sprintf("SMA%d", win), 10})
	}
	cols = append(cols, column{"SALE LINE", 10}, column{"NOTE", 24})

	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("StockWatch %s", report.StartedAt.In(loc).Format("2006-01-02 15:04"))))
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = TitleStyle.Render(c.title)
	}
	fmt.Fprintln(w, renderRow(cols, titles))

	for _, r := range report.Results {
		fmt.Fprintln(w, renderRow(cols, reportRow(r, windows)))
	}

	fmt.Fprintln(w, HelpStyle.Render(fmt.Sprintf("%d symbols, %d failed, run %s",
		len(report.Results), report.Failed(), report.RunID)))
}

func reportRow(r model.SymbolResult, windows []int) []string {
	row := []string{r.Symbol}
	if !r.OK() {
		row = append(row, "-", "-", "-")
		for range windows {
			row = append(row, "-")
		}
		return append(row, "-", ErrorStyle.Render(r.Err.Error()))
	}

	row = append(row,
		r.LastDate.Format(model.DateLayout),
		fmt.Sprintf("%.2f", r.LatestClose),
		trendStyles[r.Trend].Render(string(r.Trend)))
	for _, win := range windows {
		if v, ok := r.Current[win]; ok {
			row = append(row, fmt.Sprintf("%.2f", v))
		} else {
			row = append(row, "n/a")
		}
	}

	var notes []string
	switch {
	case r.SaleLine != nil:
		row = append(row, r.SaleLine.Price.StringFixed(2))
		if r.BelowThreshold {
			notes = append(notes, AlertStyle.Render("BELOW SALE LINE"))
		}
	case r.SaleErr != nil:
		row = append(row, "n/a")
		notes = append(notes, "sale line: "+r.SaleErr.Error())
	default:
		row = append(row, "-")
	}
	if r.Stale {
		notes = append(notes, "stale")
	}
	if r.TrendErr != nil {
		notes = append(notes, "insufficient history")
	}
	return append(row, strings.Join(notes, ", "))
}

func renderInspect(w io.Writer, series model.PriceSeries, rec model.PullRecord, current model.IndicatorSnapshot, windows []int, loc *time.Location) {
	fmt.Fprintln(w, TitleStyle.Render(series.Symbol))
	fmt.Fprintf(w, "points:     %d\n", series.Len())
	if first, ok := series.First(); ok {
		last, _ := series.Latest()
		fmt.Fprintf(w, "range:      %s .. %s\n", first.Date.Format(model.DateLayout), last.Date.Format(model.DateLayout))
		fmt.Fprintf(w, "last close: %.2f\n", last.Close)
	}
	fmt.Fprintf(w, "last pull:  %s\n", rec.LastPullDate.In(loc).Format(time.RFC3339))

	cols := []column{{"WINDOW", 8}, {"CURRENT", 10}, {"BASELINE", 10}}
	fmt.Fprintln(w, renderRow(cols, []string{TitleStyle.Render("WINDOW"), TitleStyle.Render("CURRENT"), TitleStyle.Render("BASELINE")}))
	for _, win := range windows {
		cur, base := "n/a", "n/a"
		if v, ok := current.Value(win); ok {
			cur = fmt.Sprintf("%.2f", v)
		}
		if v, ok := rec.Snapshot.Value(win); ok {
			base = fmt.Sprintf("%.2f", v)
		}
		fmt.Fprintln(w, renderRow(cols, []string{fmt.Sprintf("SMA%d", win), cur, base}))
	}
}

func renderHistory(w io.Writer, hist []recorder.SignalRecord) {
	if len(hist) == 0 {
		return
	}
	cols := []column{{"DATE", 10}, {"CLOSE", 10}, {"TREND", 8}, {"SALE LINE", 10}, {"NOTE", 24}}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderRow(cols, []string{
		TitleStyle.Render("DATE"), TitleStyle.Render("CLOSE"), TitleStyle.Render("TREND"),
		TitleStyle.Render("SALE LINE"), TitleStyle.Render("NOTE"),
	}))
	for _, h := range hist {
		if h.ErrorKind != "" {
			fmt.Fprintln(w, renderRow(cols, []string{"-", "-", "-", "-", ErrorStyle.Render(h.ErrorStage + ": " + h.ErrorKind)}))
			continue
		}
		note := ""
		if h.BelowThreshold {
			note = AlertStyle.Render("BELOW SALE LINE")
		}
		sale := h.SaleLine
		if sale == "" {
			sale = "-"
		}
		fmt.Fprintln(w, renderRow(cols, []string{
			h.Date, fmt.Sprintf("%.2f", h.Close),
			trendStyles[model.TrendSignal(h.Trend)].Render(h.Trend), sale, note,
		}))
	}
}
