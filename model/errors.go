package model

import (
	"fmt"
)

// InvalidGeometryError signals a malformed or degenerate polygon: a ring with fewer than
// three distinct vertices or a self-intersecting ring.
type InvalidGeometryError struct {
	Code   string
	Reason string
	WKT    string
}

func (e *InvalidGeometryError) Error() string {
	msg := "invalid geometry"
	if e.Code != "" {
		msg += " for " + e.Code
	}
	msg += ": " + e.Reason
	if e.WKT != "" {
		msg += " (" + e.WKT + ")"
	}
	return msg
}

// DivisionPreconditionError signals that a density metric would divide by zero.
type DivisionPreconditionError struct {
	Code     string
	Quantity string
}

func (e *DivisionPreconditionError) Error() string {
	return fmt.Sprintf("no model available for %s: %s is zero", e.Code, e.Quantity)
}

// MissingDataError signals that a source has no record for an area.
type MissingDataError struct {
	Source string
	Code   string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("%s has no data for %s", e.Source, e.Code)
}
