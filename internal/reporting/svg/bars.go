// Package svg renders dependency-free chart markup for the report pages.
package svg

import (
	"fmt"
	"html/template"
	"math"
	"sort"
	"strings"
)

// Defaults for report charts.
const (
	DefaultWidth   = 720
	DefaultHeight  = 240
	DefaultPadding = 28.0
	DefaultTicks   = 5
)

// Opts customises the bar renderer.
type Opts struct {
	Title     string
	BarColor  string
	AxisColor string
	GridColor string
	Padding   float64
	TickCount int
}

// DailyBars renders one bar per day for the given counts, days sorted
// ascending. Values are non-negative counts so the baseline is always zero.
func DailyBars(width, height int, byDay map[string]float64, opts Opts) (template.HTML, error) {
	if len(byDay) == 0 {
		return "", fmt.Errorf("svg: no data points")
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	padding := opts.Padding
	if padding <= 0 {
		padding = DefaultPadding
	}
	ticks := opts.TickCount
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	barColor := fallback(opts.BarColor, "#2563eb")
	axisColor := fallback(opts.AxisColor, "#475569")
	gridColor := fallback(opts.GridColor, "#cbd5f5")

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	chartWidth := float64(width) - 2*padding
	chartHeight := float64(height) - 2*padding
	if chartWidth <= 0 || chartHeight <= 0 {
		return "", fmt.Errorf("svg: viewport too small")
	}

	maxVal := 0.0
	for _, v := range byDay {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}
	scale := chartHeight / maxVal

	title := fallback(opts.Title, "Orders per day")
	var b strings.Builder
	fmt.Fprintf(&b, "<svg xmlns=\"http://www.w3.org/2000/svg\" viewBox=\"0 0 %d %d\" role=\"img\" aria-label=%q>", width, height, title)
	fmt.Fprintf(&b, "<title>%s</title>", template.HTMLEscapeString(title))

	for i := 0; i <= ticks; i++ {
		ratio := float64(i) / float64(ticks)
		y := padding + chartHeight - ratio*chartHeight
		fmt.Fprintf(&b, "<line x1=\"%.2f\" y1=\"%.2f\" x2=\"%.2f\" y2=\"%.2f\" stroke=\"%s\" stroke-width=\"0.5\" stroke-dasharray=\"2,4\" aria-hidden=\"true\"></line>",
			padding, y, padding+chartWidth, y, gridColor)
		fmt.Fprintf(&b, "<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"10\" text-anchor=\"end\">%s</text>",
			padding-6, y+4, axisColor, formatTick(maxVal*ratio))
	}

	fmt.Fprintf(&b, "<g stroke=\"%s\"><line x1=\"%.2f\" y1=\"%.2f\" x2=\"%.2f\" y2=\"%.2f\" stroke-width=\"1\"></line>", axisColor,
		padding, padding, padding, padding+chartHeight)
	fmt.Fprintf(&b, "<line x1=\"%.2f\" y1=\"%.2f\" x2=\"%.2f\" y2=\"%.2f\" stroke-width=\"1\"></line></g>",
		padding, padding+chartHeight, padding+chartWidth, padding+chartHeight)

	slot := chartWidth / float64(len(days))
	barWidth := slot * 0.6
	for i, day := range days {
		v := byDay[day]
		h := v * scale
		x := padding + float64(i)*slot + (slot-barWidth)/2
		y := padding + chartHeight - h
		fmt.Fprintf(&b, "<rect x=\"%.2f\" y=\"%.2f\" width=\"%.2f\" height=\"%.2f\" fill=\"%s\"><title>%s: %s</title></rect>",
			x, y, barWidth, h, barColor, template.HTMLEscapeString(day), formatTick(v))
		fmt.Fprintf(&b, "<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"9\" text-anchor=\"middle\">%s</text>",
			x+barWidth/2, padding+chartHeight+14, axisColor, template.HTMLEscapeString(shortDay(day)))
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

// shortDay trims the year off a YYYY-MM-DD label to keep the axis readable.
func shortDay(day string) string {
	if len(day) == 10 && day[4] == '-' {
		return day[5:]
	}
	return day
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func formatTick(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	case v == math.Trunc(v):
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.1f", v)
	}
}
