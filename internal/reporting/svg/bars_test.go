package svg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDailyBars(t *testing.T) {
	out, err := DailyBars(720, 240, map[string]float64{
		"2026-08-20": 42,
		"2026-08-21": 57,
		"2026-08-19": 8,
	}, Opts{Title: "Orders per day"})
	require.NoError(t, err)

	markup := string(out)
	require.True(t, strings.HasPrefix(markup, "<svg"))
	require.True(t, strings.HasSuffix(markup, "</svg>"))
	require.Equal(t, 3, strings.Count(markup, "<rect"))
	require.Contains(t, markup, "<title>Orders per day</title>")

	// days render in ascending order
	require.Less(t, strings.Index(markup, "08-19"), strings.Index(markup, "08-20"))
	require.Less(t, strings.Index(markup, "08-20"), strings.Index(markup, "08-21"))
}

func TestDailyBarsEmptySeries(t *testing.T) {
	_, err := DailyBars(720, 240, nil, Opts{})
	require.Error(t, err)
}

func TestDailyBarsTinyViewport(t *testing.T) {
	_, err := DailyBars(10, 10, map[string]float64{"2026-08-20": 1}, Opts{Padding: 40})
	require.Error(t, err)
}

func TestFormatTick(t *testing.T) {
	require.Equal(t, "42", formatTick(42))
	require.Equal(t, "1.5k", formatTick(1500))
	require.Equal(t, "2.0M", formatTick(2_000_000))
	require.Equal(t, "0.5", formatTick(0.5))
}
