package devices

import (
	"iter"
	"slices"
)

// Table stores the latest Record per address in first-seen order.
//
// A Table is not safe for concurrent use; the scan session's consumer
// goroutine is its only owner.
type Table struct {
	index   map[string]int
	records []Record
}

func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Upsert inserts rec on first sighting of its address (appending it to the
// display order) or replaces the existing record in place.
func (t *Table) Upsert(rec Record) (inserted bool) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[rec.Address]; ok {
		t.records[i] = rec
		return false
	}
	t.index[rec.Address] = len(t.records)
	t.records = append(t.records, rec)
	return true
}

func (t *Table) Get(address string) (Record, bool) {
	i, ok := t.index[address]
	if !ok {
		return Record{}, false
	}
	return t.records[i], true
}

// List yields the current records in display order. The sequence may be
// ranged over any number of times; each pass reflects the table at that time.
func (t *Table) List() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, rec := range t.records {
			if !yield(rec) {
				return
			}
		}
	}
}

// Snapshot returns deep copies of all records in display order.
func (t *Table) Snapshot() []Record {
	out := make([]Record, 0, len(t.records))
	for rec := range t.List() {
		out = append(out, rec.Clone())
	}
	return out
}

// Clear removes every record.
func (t *Table) Clear() {
	clear(t.index)
	t.records = nil
}

func (t *Table) Len() int {
	return len(t.records)
}

// SortByRSSI orders records strongest first. Records without a reading sort
// last; ties keep display order.
func SortByRSSI(recs []Record) {
	slices.SortStableFunc(recs, func(a, b Record) int {
		return b.RSSI - a.RSSI
	})
}
