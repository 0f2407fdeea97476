// Package serial parses and expands the serial numbers printed on
// physically-controlled stock (checkbooks, CPOs, passbooks). A serial is an
// alphabetic prefix followed by a fixed-width numeric suffix, e.g. "CB001001".
package serial

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidFormat = errors.New("invalid serial format")
	ErrInvalidRange  = errors.New("invalid serial range")
	ErrIndivisible   = errors.New("range not divisible by leaves per book")
)

// MaxRange caps a single batch registration. Real vault deliveries are a few
// thousand units; anything past this is a typo in the range bounds.
const MaxRange = 100_000

// Parsed is the decomposition of one serial string.
type Parsed struct {
	Prefix string
	Width  int
	Value  uint64
}

// Parse splits a serial into its non-numeric prefix and numeric suffix.
// The suffix must be non-empty and parse as an unsigned integer.
func Parse(s string) (Parsed, error) {
	i := 0
	for i < len(s) && (s[i] < '0' || s[i] > '9') {
		i++
	}
	digits := s[i:]
	if digits == "" {
		return Parsed{}, fmt.Errorf("%w: %q has no numeric suffix", ErrInvalidFormat, s)
	}
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return Parsed{Prefix: s[:i], Width: len(digits), Value: v}, nil
}

// Format renders a numeric value back into serial form, zero-padded to the
// parsed width of the range's start serial.
func (p Parsed) Format(v uint64) string {
	return p.Prefix + fmt.Sprintf("%0*d", p.Width, v)
}

// Expand generates every serial from start to end inclusive. Both bounds must
// share a prefix, and end must not precede start. Padding width follows the
// start serial.
func Expand(start, end string) ([]string, error) {
	sp, err := Parse(start)
	if err != nil {
		return nil, err
	}
	ep, err := Parse(end)
	if err != nil {
		return nil, err
	}
	if sp.Prefix != ep.Prefix {
		return nil, fmt.Errorf("%w: prefix mismatch between %q and %q", ErrInvalidFormat, start, end)
	}
	if ep.Value < sp.Value {
		return nil, fmt.Errorf("%w: end serial %q precedes start serial %q", ErrInvalidRange, end, start)
	}
	n := ep.Value - sp.Value + 1
	if n > MaxRange {
		return nil, fmt.Errorf("%w: %d units exceeds the %d unit limit", ErrInvalidRange, n, MaxRange)
	}
	out := make([]string, 0, n)
	for v := sp.Value; v <= ep.Value; v++ {
		out = append(out, sp.Format(v))
	}
	return out, nil
}

// Count returns the number of serials Expand would generate, without
// materializing them.
func Count(start, end string) (int, error) {
	sp, err := Parse(start)
	if err != nil {
		return 0, err
	}
	ep, err := Parse(end)
	if err != nil {
		return 0, err
	}
	if sp.Prefix != ep.Prefix {
		return 0, fmt.Errorf("%w: prefix mismatch between %q and %q", ErrInvalidFormat, start, end)
	}
	if ep.Value < sp.Value {
		return 0, fmt.Errorf("%w: end serial %q precedes start serial %q", ErrInvalidRange, end, start)
	}
	n := ep.Value - sp.Value + 1
	if n > MaxRange {
		return 0, fmt.Errorf("%w: %d units exceeds the %d unit limit", ErrInvalidRange, n, MaxRange)
	}
	return int(n), nil
}

// Window is one consecutive sub-range of page serials, as bound into a single
// checkbook.
type Window struct {
	Start string
	End   string
}

// Windows partitions the page range into consecutive, non-overlapping windows
// of leaves pages each. The total page count must divide evenly by leaves;
// a remainder is a registration error, not something to round away.
func Windows(start, end string, leaves int) ([]Window, error) {
	if leaves <= 0 {
		return nil, fmt.Errorf("%w: leaves per book must be positive, got %d", ErrIndivisible, leaves)
	}
	sp, err := Parse(start)
	if err != nil {
		return nil, err
	}
	pages, err := Count(start, end)
	if err != nil {
		return nil, err
	}
	if pages%leaves != 0 {
		return nil, fmt.Errorf("%w: %d pages is not divisible by %d leaves per book", ErrIndivisible, pages, leaves)
	}
	out := make([]Window, 0, pages/leaves)
	for i := 0; i < pages/leaves; i++ {
		first := sp.Value + uint64(i*leaves)
		last := first + uint64(leaves) - 1
		out = append(out, Window{Start: sp.Format(first), End: sp.Format(last)})
	}
	return out, nil
}

// Compare orders two serials by prefix, then by numeric value. Malformed
// serials fall back to plain string comparison rather than failing; ordering
// must never panic mid-scan.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	pa, errA := Parse(a)
	pb, errB := Parse(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	if pa.Prefix != pb.Prefix {
		return strings.Compare(pa.Prefix, pb.Prefix)
	}
	switch {
	case pa.Value < pb.Value:
		return -1
	case pa.Value > pb.Value:
		return 1
	}
	return 0
}
