package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Checks accumulates validation problems for one stage output.
type Checks struct {
	problems []string
}

// Required flags an empty string field.
func (c *Checks) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		c.Addf("%s is required", field)
	}
}

// OneOf flags a value outside the allowed literals. Empty values are flagged only when required.
func (c *Checks) OneOf(field, value string, required bool, allowed ...string) {
	if value == "" {
		if required {
			c.Addf("%s is required (one of %s)", field, strings.Join(allowed, "|"))
		}
		return
	}
	if !slices.Contains(allowed, value) {
		c.Addf("%s %q is not one of %s", field, value, strings.Join(allowed, "|"))
	}
}

// NonEmpty flags an empty collection.
func (c *Checks) NonEmpty(field string, n int) {
	if n == 0 {
		c.Addf("%s must not be empty", field)
	}
}

// Count flags a collection whose size is outside [minN, maxN].
func (c *Checks) Count(field string, n, minN, maxN int) {
	switch {
	case minN == maxN && n != minN:
		c.Addf("%s must have exactly %d entries, got %d", field, minN, n)
	case n < minN || n > maxN:
		c.Addf("%s must have %d-%d entries, got %d", field, minN, maxN, n)
	}
}

// Range flags an integer outside [minV, maxV].
func (c *Checks) Range(field string, v, minV, maxV int) {
	if v < minV || v > maxV {
		c.Addf("%s must be between %d and %d, got %d", field, minV, maxV, v)
	}
}

// NonNegative flags a negative amount.
func (c *Checks) NonNegative(field string, v float64) {
	if v < 0 {
		c.Addf("%s must not be negative, got %g", field, v)
	}
}

// Addf records a problem.
func (c *Checks) Addf(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

// Err returns all recorded problems as one error, or nil.
func (c *Checks) Err() error {
	if len(c.problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(c.problems, "; "))
}
