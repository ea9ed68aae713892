package game

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MoneyPlaces    = int32(2)
	QuantityPlaces = int32(4)

	Day  = 24 * time.Hour
	Week = 7 * Day
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrLockTimeout          = errors.New("company lock timeout")
	ErrInvariant            = errors.New("invariant violation")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
)

// ValidationError reports a precondition that a state transition did not meet.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an entity missing at execution time.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityPlaces)
}

func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// ClampDecimal bounds d to [lo, hi].
func ClampDecimal(d, lo, hi decimal.Decimal) decimal.Decimal {
	return MaxDecimal(lo, MinDecimal(d, hi))
}

func ClampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MaxDays is the longest day count a time.Duration can hold at second precision.
var MaxDays = decimal.NewFromInt(math.MaxInt64 / int64(time.Second)).Div(decimal.NewFromInt(int64(Day / time.Second))).Truncate(0)

// Days converts a (possibly fractional) day count to a duration, truncated to
// the second. Counts beyond MaxDays saturate; negative counts are zero.
func Days(d decimal.Decimal) time.Duration {
	if !d.IsPositive() {
		return 0
	}
	if d.GreaterThan(MaxDays) {
		d = MaxDays
	}
	secs := d.Mul(decimal.NewFromInt(int64(Day / time.Second))).Truncate(0).IntPart()
	return time.Duration(secs) * time.Second
}

// DaysWithin is Days for player-driven schedules: a count outside [0, MaxDays]
// is a validation error on field rather than a saturated duration.
func DaysWithin(field string, d decimal.Decimal) (time.Duration, error) {
	if d.IsNegative() {
		return 0, Invalid(field, "duration of %s days is negative", d.StringFixed(2))
	}
	if d.GreaterThan(MaxDays) {
		return 0, Invalid(field, "duration of %s days exceeds %s", d.StringFixed(2), MaxDays)
	}
	return Days(d), nil
}

func DaysFloat(days float64) time.Duration {
	return Days(decimal.NewFromFloat(days))
}

// ElapsedDays returns the fractional days between from and to, never negative.
func ElapsedDays(from, to time.Time) float64 {
	if from.IsZero() || !to.After(from) {
		return 0
	}
	return to.Sub(from).Hours() / 24
}

func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func WeekKey(t time.Time) string {
	y, w := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

func ValidateEntityName(name string) error {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return Invalid("name", "is required")
	}
	if len(clean) > 64 {
		return Invalid("name", "too long (max 64 chars)")
	}
	return nil
}
