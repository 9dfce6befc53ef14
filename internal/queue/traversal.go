package queue

import (
	"strconv"

	"outreach-dialer/internal/outreach"
)

// HouseholdIndex groups a loaded working set into households in order of
// first appearance. Contacts without an address form a household of one.
type HouseholdIndex struct {
	keys    []string
	members map[string][]int
}

// IndexHouseholds builds the index for loaded. Indexes refer to positions in loaded.
func IndexHouseholds(loaded []outreach.QueueEntry) HouseholdIndex {
	idx := HouseholdIndex{members: map[string][]int{}}
	for i, e := range loaded {
		k := householdKey(e)
		if _, ok := idx.members[k]; !ok {
			idx.keys = append(idx.keys, k)
		}
		idx.members[k] = append(idx.members[k], i)
	}
	return idx
}

func (h HouseholdIndex) Len() int { return len(h.keys) }

// Members returns the positions of the household's entries in the loaded set.
func (h HouseholdIndex) Members(key string) []int { return h.members[key] }

func householdKey(e outreach.QueueEntry) string {
	if k := e.Contact.Household(); k != "" {
		return k
	}
	return "contact:" + strconv.FormatInt(e.ContactID, 10)
}

// order returns positions into loaded in traversal order.
func (h HouseholdIndex) order(loaded []outreach.QueueEntry, groupByHousehold bool) []int {
	seq := make([]int, 0, len(loaded))
	if !groupByHousehold || len(h.keys) == 0 {
		for i := range loaded {
			seq = append(seq, i)
		}
		return seq
	}
	for _, k := range h.keys {
		for _, i := range h.members[k] {
			if i < len(loaded) {
				seq = append(seq, i)
			}
		}
	}
	return seq
}

// NextInLoadedSet picks the next dialable entry after currentContactID without
// touching the store. The scan moves forward, wraps to the start and may land
// back on the current entry. With skipHousehold every member of the current
// household is passed over. ok is false when no entry in the set has a phone.
//
// households must be IndexHouseholds(loaded); a zero index is rebuilt.
func NextInLoadedSet(loaded []outreach.QueueEntry, households HouseholdIndex, currentContactID int64, groupByHousehold, skipHousehold bool) (outreach.QueueEntry, bool) {
	if len(loaded) == 0 {
		return outreach.QueueEntry{}, false
	}
	if households.members == nil {
		households = IndexHouseholds(loaded)
	}

	seq := households.order(loaded, groupByHousehold)
	pos := -1
	for p, i := range seq {
		if loaded[i].ContactID == currentContactID {
			pos = p
			break
		}
	}

	skipKey := ""
	if skipHousehold && pos >= 0 {
		skipKey = householdKey(loaded[seq[pos]])
	}

	// pos+1 is 0 when current is not loaded, so the scan covers the whole set once.
	n := len(seq)
	start := pos + 1
	for step := 0; step < n; step++ {
		e := loaded[seq[(start+step)%n]]
		if !e.Contact.Dialable() {
			continue
		}
		if skipKey != "" && householdKey(e) == skipKey {
			continue
		}
		return e, true
	}
	return outreach.QueueEntry{}, false
}

// RemainingHouseholds counts households after the current entry (in traversal
// order) that still have a dialable member. The UI fetches more when this
// drops under the low-water mark.
func RemainingHouseholds(loaded []outreach.QueueEntry, households HouseholdIndex, currentContactID int64) int {
	if households.members == nil {
		households = IndexHouseholds(loaded)
	}
	seq := households.order(loaded, true)
	pos := -1
	for p, i := range seq {
		if loaded[i].ContactID == currentContactID {
			pos = p
			break
		}
	}

	seen := map[string]bool{}
	count := 0
	for _, i := range seq[pos+1:] {
		e := loaded[i]
		k := householdKey(e)
		if seen[k] || !e.Contact.Dialable() {
			continue
		}
		seen[k] = true
		count++
	}
	return count
}

// NeedsMore reports whether remaining households fell below lowWater.
func NeedsMore(remaining, lowWater int) bool {
	return remaining < lowWater
}
