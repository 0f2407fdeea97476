package stock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func itemAt(serial string, issued, returned bool) *Item {
	it := &Item{ID: "id-" + serial, StartSerial: serial, EndSerial: serial}
	now := time.Now()
	if issued {
		it.IssuedAt = &now
	}
	if returned {
		it.ReturnedAt = &now
	}
	return it
}

func TestOpenForIssue(t *testing.T) {
	assert.True(t, openForIssue(itemAt("A1", false, false)), "fresh unit")
	assert.False(t, openForIssue(itemAt("A1", true, false)), "issued unit")
	assert.True(t, openForIssue(itemAt("A1", true, true)), "returned unit re-enters the pool")
}

func TestNextIssuable(t *testing.T) {
	tests := []struct {
		name     string
		siblings []*Item
		wantIdx  int
		wantOK   bool
	}{
		{
			name:     "fresh batch starts at the first unit",
			siblings: []*Item{itemAt("A1", false, false), itemAt("A2", false, false)},
			wantIdx:  0,
			wantOK:   true,
		},
		{
			name:     "advances past issued units",
			siblings: []*Item{itemAt("A1", true, false), itemAt("A2", false, false), itemAt("A3", false, false)},
			wantIdx:  1,
			wantOK:   true,
		},
		{
			name:     "returned unit is picked before untouched successors",
			siblings: []*Item{itemAt("A1", true, true), itemAt("A2", false, false)},
			wantIdx:  0,
			wantOK:   true,
		},
		{
			name:     "all issued means no candidate",
			siblings: []*Item{itemAt("A1", true, false), itemAt("A2", true, false)},
			wantOK:   false,
		},
		{
			name:     "empty batch",
			siblings: nil,
			wantOK:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := nextIssuable(tt.siblings, nil)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantIdx, idx)
			}
		})
	}
}

func TestNextIssuableWithFilter(t *testing.T) {
	siblings := []*Item{itemAt("A1", false, false), itemAt("A2", false, false)}
	// The filter cannot skip ahead of the lockstep rule: A2 is filtered in
	// but not issuable while A1 is open.
	_, ok := nextIssuable(siblings, func(it *Item) bool { return it.StartSerial == "A2" })
	assert.False(t, ok)
}

func TestIssuableLockstep(t *testing.T) {
	siblings := []*Item{itemAt("A1", false, false), itemAt("A2", false, false), itemAt("A3", false, false)}
	assert.True(t, issuable(siblings, 0))
	assert.False(t, issuable(siblings, 1), "predecessor not issued")
	assert.False(t, issuable(siblings, 2))

	now := time.Now()
	siblings[0].IssuedAt = &now
	assert.True(t, issuable(siblings, 1), "predecessor issued unlocks the next unit")
	assert.False(t, issuable(siblings, 2))
}
