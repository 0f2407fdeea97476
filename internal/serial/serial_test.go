package serial

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name   string
		serial string
		prefix string
		width  int
		value  uint64
		err    error
	}{
		{"plain", "CB1001", "CB", 4, 1001, nil},
		{"zero padded", "CP00042", "CP", 5, 42, nil},
		{"no prefix", "12345", "", 5, 12345, nil},
		{"lowercase prefix", "pas003", "pas", 3, 3, nil},
		{"no digits", "CBXX", "", 0, 0, ErrInvalidFormat},
		{"empty", "", "", 0, 0, ErrInvalidFormat},
		{"digits then letters", "CB10A2", "", 0, 0, ErrInvalidFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.serial)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.prefix, p.Prefix)
			assert.Equal(t, tc.width, p.Width)
			assert.Equal(t, tc.value, p.Value)
		})
	}
}

func TestExpand(t *testing.T) {
	got, err := Expand("CP001", "CP005")
	require.NoError(t, err)
	assert.Equal(t, []string{"CP001", "CP002", "CP003", "CP004", "CP005"}, got)

	got, err = Expand("PB09", "PB11")
	require.NoError(t, err)
	assert.Equal(t, []string{"PB09", "PB10", "PB11"}, got)

	got, err = Expand("CB100", "CB100")
	require.NoError(t, err)
	assert.Equal(t, []string{"CB100"}, got)
}

func TestExpandErrors(t *testing.T) {
	_, err := Expand("CP005", "CP001")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Expand("CP001", "PB005")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Expand("CPX", "CP005")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Expand("CP1", "CP999999")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

// Round-trip property: for any well-formed bounds, the expansion has
// end-start+1 entries, is sorted ascending, and starts at the start serial.
func TestExpandProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[A-Z]{1,3}`).Draw(t, "prefix")
		width := rapid.IntRange(3, 7).Draw(t, "width")
		start := rapid.Uint64Range(0, 5000).Draw(t, "start")
		span := rapid.Uint64Range(0, 300).Draw(t, "span")

		s := prefix + fmt.Sprintf("%0*d", width, start)
		e := prefix + fmt.Sprintf("%0*d", width, start+span)

		got, err := Expand(s, e)
		if err != nil {
			t.Fatalf("expand(%q, %q): %v", s, e, err)
		}
		if len(got) != int(span)+1 {
			t.Fatalf("length %d, want %d", len(got), span+1)
		}
		if got[0] != s {
			t.Fatalf("first %q, want %q", got[0], s)
		}
		for i := 1; i < len(got); i++ {
			if Compare(got[i-1], got[i]) >= 0 {
				t.Fatalf("not ascending at %d: %q >= %q", i, got[i-1], got[i])
			}
		}
	})
}

func TestWindows(t *testing.T) {
	ws, err := Windows("CB1001", "CB1050", 25)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, Window{Start: "CB1001", End: "CB1025"}, ws[0])
	assert.Equal(t, Window{Start: "CB1026", End: "CB1050"}, ws[1])
}

func TestWindowsIndivisible(t *testing.T) {
	// 49 pages cannot be bound into 25-leaf books.
	_, err := Windows("CB1001", "CB1049", 25)
	assert.ErrorIs(t, err, ErrIndivisible)

	_, err = Windows("CB1001", "CB1050", 0)
	assert.ErrorIs(t, err, ErrIndivisible)
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"CP001", "CP002", -1},
		{"CP010", "CP002", 1},
		{"CP002", "CP002", 0},
		{"CP2", "CP010", -1}, // numeric, not lexicographic
		{"AA5", "AB1", -1},   // prefix order first
		{"???", "CP1", -1},   // malformed falls back to string order
	}
	for _, tc := range cases {
		got := Compare(tc.a, tc.b)
		if got != 0 {
			got = got / abs(got)
		}
		assert.Equalf(t, tc.want, got, "Compare(%q, %q)", tc.a, tc.b)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestCount(t *testing.T) {
	n, err := Count("CB1001", "CB1050")
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	_, err = Count("CB2", "CB1")
	assert.True(t, errors.Is(err, ErrInvalidRange))
}
