package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"StockWatch/internal/errors"
	"StockWatch/internal/model"
)

var trendIcon = map[model.TrendSignal]string{
	model.Bullish: "🟢",
	model.Bearish: "🔴",
	model.Neutral: "⚪",
}

// FormatReport formats a batch report into a Telegram HTML message.
// Symbols that failed get a one-line placeholder naming the stage.
func FormatReport(report *model.BatchReport, loc *time.Location) string {
	var b strings.Builder
	if loc == nil {
		loc = time.Local
	}

	b.WriteString(fmt.Sprintf("📊 <b>StockWatch</b> | %s\n", report.StartedAt.In(loc).Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("%d symbols, %d failed, %d below sale line\n\n",
		len(report.Results), report.Failed(), countBelow(report)))

	for _, r := range report.Results {
		b.WriteString(FormatSymbol(r))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatSymbol renders one result block.
func FormatSymbol(r model.SymbolResult) string {
	var b strings.Builder
	if !r.OK() {
		b.WriteString(fmt.Sprintf("❌ <b>%s</b> unavailable (%s)\n", html.EscapeString(r.Symbol), describe(r.Err)))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("%s <b>%s</b> %.2f (%s) %s",
		trendIcon[r.Trend], html.EscapeString(r.Symbol), r.LatestClose, r.LastDate.Format(model.DateLayout), r.Trend))
	if r.Stale {
		b.WriteString(" <i>stale</i>")
	}
	b.WriteString("\n")

	if len(r.Current) > 0 {
		windows := make([]int, 0, len(r.Current))
		for w := range r.Current {
			windows = append(windows, w)
		}
		sort.Ints(windows)
		cells := make([]string, 0, len(windows))
		for _, w := range windows {
			cells = append(cells, fmt.Sprintf("SMA%d %.2f%s", w, r.Current[w], arrow(r.Current[w], r.Baseline, w)))
		}
		b.WriteString("   " + strings.Join(cells, " | ") + "\n")
	}
	if r.TrendErr != nil {
		b.WriteString(fmt.Sprintf("   trend: %s\n", describe(r.TrendErr)))
	}

	switch {
	case r.SaleLine != nil:
		branch := "stop"
		if r.SaleLine.Trailing {
			branch = "trailing"
		}
		b.WriteString(fmt.Sprintf("   sale line %s (%s, high %s)", r.SaleLine.Price.StringFixed(2), branch, r.SaleLine.MaxClose.StringFixed(2)))
		if r.BelowThreshold {
			b.WriteString(" ⚠️ <b>BELOW</b>")
		}
		b.WriteString("\n")
	case r.SaleErr != nil:
		b.WriteString(fmt.Sprintf("   sale line unavailable (%s)\n", describe(r.SaleErr)))
	}
	return b.String()
}

// FormatStatus is the reply to /status.
func FormatStatus(report *model.BatchReport, next time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	b.WriteString("📦 <b>StockWatch status</b>\n\n")
	if report == nil {
		b.WriteString("no batch has run yet\n")
	} else {
		b.WriteString(fmt.Sprintf("last run: %s (%s)\n", report.FinishedAt.In(loc).Format("2006-01-02 15:04"), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)))
		b.WriteString(fmt.Sprintf("run id: <code>%s</code>\n", report.RunID))
		b.WriteString(fmt.Sprintf("symbols: %d, failed: %d, below sale line: %d\n", len(report.Results), report.Failed(), countBelow(report)))
		if below := belowSymbols(report); len(below) > 0 {
			b.WriteString("below: " + html.EscapeString(strings.Join(below, ", ")) + "\n")
		}
	}
	if !next.IsZero() {
		b.WriteString(fmt.Sprintf("next run: %s\n", next.In(loc).Format("2006-01-02 15:04")))
	}
	return b.String()
}

func describe(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		stage := e.Stage
		if stage == "" {
			stage = "error"
		}
		return html.EscapeString(fmt.Sprintf("%s: %s", stage, errors.KindOf(err)))
	}
	return html.EscapeString(err.Error())
}

func arrow(cur float64, base model.IndicatorSnapshot, w int) string {
	prev, ok := base.Value(w)
	switch {
	case !ok || prev == 0:
		return ""
	case cur > prev:
		return " ▲"
	case cur < prev:
		return " ▼"
	default:
		return ""
	}
}

func countBelow(report *model.BatchReport) int {
	return len(belowSymbols(report))
}

func belowSymbols(report *model.BatchReport) []string {
	var out []string
	for _, r := range report.Results {
		if r.BelowThreshold {
			out = append(out, r.Symbol)
		}
	}
	return out
}
