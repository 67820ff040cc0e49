package models

import "fmt"

// ShapeError reports a table that is missing a required column category or
// is not rectangular. It is terminal for the whole run: no DMU is evaluated.
type ShapeError struct {
	Expected string
	Found    string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid table shape: expected %s, found %s", e.Expected, e.Found)
}

// DataError reports a malformed cell or row, such as a non-numeric value.
// Like ShapeError it covers the whole batch.
type DataError struct {
	Row    int // 1-based line in the source, 0 when not applicable
	Column string
	Value  string
	Reason string
}

func (e *DataError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("invalid data at row %d, column %q: %s (found %q)", e.Row, e.Column, e.Reason, e.Value)
	case e.Row > 0:
		return fmt.Sprintf("invalid data at row %d: %s", e.Row, e.Reason)
	default:
		return fmt.Sprintf("invalid data: %s", e.Reason)
	}
}
