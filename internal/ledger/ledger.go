// Package ledger keeps the in-session attendance status of every student
// for a single section and day.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is a student's attendance for the session. The zero value is Unset.
type Status string

const (
	Unset   Status = ""
	Present Status = "present"
	Absent  Status = "absent"
	Excused Status = "excused"
)

// ParseStatus accepts the wire names of the three settable statuses.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case Present, Absent, Excused:
		return Status(s), nil
	}
	return Unset, fmt.Errorf("invalid status %q", s)
}

// Valid reports whether s is one of the settable statuses.
func (s Status) Valid() bool {
	return s == Present || s == Absent || s == Excused
}

// DateLayout is the day-granularity format used for session dates.
const DateLayout = "2006-01-02"

// Key identifies a session: one section on one calendar day.
type Key struct {
	SectionID string
	Date      string
}

// NewKey builds a key for section on the calendar day of t.
func NewKey(sectionID string, t time.Time) Key {
	return Key{SectionID: sectionID, Date: t.Format(DateLayout)}
}

func (k Key) String() string { return k.SectionID + "@" + k.Date }

// ErrStaleSession is returned when a write targets a session the ledger is
// no longer bound to, e.g. a submission that completes after a section switch.
var ErrStaleSession = errors.New("ledger: write targets a closed session")

// Ledger maps student id to status for the currently bound session.
// Later writes for the same student overwrite earlier ones.
type Ledger struct {
	mu      sync.Mutex
	key     Key
	entries map[string]Status
}

func New() *Ledger {
	return &Ledger{entries: make(map[string]Status)}
}

// Open binds the ledger to key and discards all entries.
func (l *Ledger) Open(key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.key = key
	l.entries = make(map[string]Status)
}

// Close discards the entries and unbinds the ledger.
func (l *Ledger) Close() {
	l.Open(Key{})
}

// Key returns the session the ledger is bound to.
func (l *Ledger) Key() Key {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key
}

func (l *Ledger) Get(studentID string) (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.entries[studentID]
	return s, ok
}

// Set assigns status if the ledger is still bound to key and returns the
// previous status (Unset when there was none) for rollback.
func (l *Ledger) Set(key Key, studentID string, status Status) (Status, error) {
	if !status.Valid() {
		return Unset, fmt.Errorf("ledger: cannot set status %q", status)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if key != l.key || key == (Key{}) {
		return Unset, ErrStaleSession
	}
	prev := l.entries[studentID]
	l.entries[studentID] = status
	return prev, nil
}

// Restore puts back a value returned by Set. Restoring Unset removes the entry.
func (l *Ledger) Restore(key Key, studentID string, prev Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if key != l.key {
		return ErrStaleSession
	}
	if prev == Unset {
		delete(l.entries, studentID)
		return nil
	}
	l.entries[studentID] = prev
	return nil
}

// Adopt sets status only when the student has no entry yet. It reports
// whether the value was taken.
func (l *Ledger) Adopt(key Key, studentID string, status Status) (bool, error) {
	if !status.Valid() {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if key != l.key || key == (Key{}) {
		return false, ErrStaleSession
	}
	if _, ok := l.entries[studentID]; ok {
		return false, nil
	}
	l.entries[studentID] = status
	return true, nil
}

// Missing returns the ids in studentIDs that have no entry.
func (l *Ledger) Missing(studentIDs []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, id := range studentIDs {
		if _, ok := l.entries[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot returns a copy of the entries.
func (l *Ledger) Snapshot() map[string]Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Status, len(l.entries))
	for id, s := range l.entries {
		out[id] = s
	}
	return out
}

// Counts tallies entries per status.
func (l *Ledger) Counts() map[Status]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[Status]int, 3)
	for _, s := range l.entries {
		out[s]++
	}
	return out
}
