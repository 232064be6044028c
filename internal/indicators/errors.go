package indicators

import "fmt"

// CalculationError reports an indicator that could not be produced.
// It aborts indicator computation for the symbol.
type CalculationError struct {
	Indicator string
	Reason    string
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("indicator %s: %s", e.Indicator, e.Reason)
}

func calcErr(indicator, format string, args ...interface{}) error {
	return &CalculationError{Indicator: indicator, Reason: fmt.Sprintf(format, args...)}
}

func checkInput(indicator string, n, window int) error {
	if n == 0 {
		return calcErr(indicator, "empty input")
	}
	if window <= 0 {
		return calcErr(indicator, "window must be positive, got %d", window)
	}
	return nil
}
