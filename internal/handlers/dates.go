package handlers

import (
	"fmt"
	"time"
)

// reportDateLayout is the upstream YYYY/MM/DD date format.
const reportDateLayout = "2006/01/02"

// longRangeDays is the span above which a query is logged as expensive.
const longRangeDays = 31

// parseReportDate parses a YYYY/MM/DD date.
func parseReportDate(field, value string) (time.Time, error) {
	t, err := time.Parse(reportDateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: use YYYY/MM/DD format", field, value)
	}
	return t, nil
}

// validateDateRange checks both bounds and that start is not after end. It
// returns the span in days.
func validateDateRange(startField, start, endField, end string) (int, error) {
	from, err := parseReportDate(startField, start)
	if err != nil {
		return 0, err
	}
	to, err := parseReportDate(endField, end)
	if err != nil {
		return 0, err
	}
	if from.After(to) {
		return 0, fmt.Errorf("invalid date range: %s must be before or equal to %s", startField, endField)
	}
	return int(to.Sub(from).Hours() / 24), nil
}

// validateOptionalRange validates whichever bounds are present. It reports
// whether any bound was given.
func validateOptionalRange(startField string, start *string, endField string, end *string) (bool, error) {
	hasStart := start != nil && *start != ""
	hasEnd := end != nil && *end != ""

	switch {
	case hasStart && hasEnd:
		_, err := validateDateRange(startField, *start, endField, *end)
		return true, err
	case hasStart:
		_, err := parseReportDate(startField, *start)
		return true, err
	case hasEnd:
		_, err := parseReportDate(endField, *end)
		return true, err
	}
	return false, nil
}
