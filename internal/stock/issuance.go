package stock

// Sequential issuance rules. Siblings must be ordered ascending by the
// numeric value of their (start-of-range) serial before any of these are
// called; stores guarantee that ordering, never insertion order.

// openForIssue reports whether the unit can enter the issue transition:
// either never issued, or issued and since returned to the branch (a returned
// unit re-enters the pool).
func openForIssue(it *Item) bool {
	return it.IssuedAt == nil || it.ReturnedAt != nil
}

// issuable applies the lockstep rule: a unit may be issued only if it is open
// for issue and is the first of the batch or its immediate predecessor has
// been issued.
func issuable(siblings []*Item, i int) bool {
	if !openForIssue(siblings[i]) {
		return false
	}
	return i == 0 || siblings[i-1].IssuedAt != nil
}

// nextIssuable scans the ordered siblings and returns the index of the first
// unit satisfying both the lockstep rule and the caller's filter. match may
// be nil.
func nextIssuable(siblings []*Item, match func(*Item) bool) (int, bool) {
	for i := range siblings {
		if !issuable(siblings, i) {
			continue
		}
		if match != nil && !match(siblings[i]) {
			continue
		}
		return i, true
	}
	return 0, false
}

// indexOf locates an item among its ordered siblings by id.
func indexOf(siblings []*Item, id string) int {
	for i, it := range siblings {
		if it.ID == id {
			return i
		}
	}
	return -1
}
