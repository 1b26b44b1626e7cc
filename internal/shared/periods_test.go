package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidatePayrollPeriod(t *testing.T) {
	require.NoError(t, ValidatePayrollPeriod("2026-08-1"))
	require.NoError(t, ValidatePayrollPeriod("2026-12-2"))

	for _, bad := range []string{"", "2026-08", "2026-08-3", "2026-8-1", "2026-13-1", "garbage"} {
		require.ErrorIs(t, ValidatePayrollPeriod(bad), ErrInvalidPayrollPeriod, "period %q", bad)
	}
}

func TestCurrentPayrollPeriod(t *testing.T) {
	first := time.Date(2026, 8, 15, 23, 59, 0, 0, time.UTC)
	second := time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC)

	require.Equal(t, "2026-08-1", CurrentPayrollPeriod(first))
	require.Equal(t, "2026-08-2", CurrentPayrollPeriod(second))
	require.Equal(t, "2026-01-1", CurrentPayrollPeriod(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}
