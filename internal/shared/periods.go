package shared

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Payroll debits are scheduled per fortnight, identified as "YYYY-MM-1"
// (first half of the month) or "YYYY-MM-2" (second half).
var payrollPeriodRe = regexp.MustCompile(`^\d{4}-\d{2}-[12]$`)

// ErrInvalidPayrollPeriod indicates a malformed fortnight identifier.
var ErrInvalidPayrollPeriod = errors.New("payroll period must be YYYY-MM-1 or YYYY-MM-2")

// ValidatePayrollPeriod checks the fortnight identifier format.
func ValidatePayrollPeriod(period string) error {
	if !payrollPeriodRe.MatchString(period) {
		return ErrInvalidPayrollPeriod
	}
	if _, err := time.Parse("2006-01", period[:7]); err != nil {
		return ErrInvalidPayrollPeriod
	}
	return nil
}

// CurrentPayrollPeriod returns the fortnight containing t.
func CurrentPayrollPeriod(t time.Time) string {
	half := 1
	if t.Day() > 15 {
		half = 2
	}
	return fmt.Sprintf("%s-%d", t.Format("2006-01"), half)
}
