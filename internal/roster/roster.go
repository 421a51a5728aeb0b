package roster

import "sync"

// Student as listed on a section roster.
type Student struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	PhotoURL  string `json:"photoUrl,omitempty"`
}

// Key is the identifier the ledger uses for the student: the external
// student number when known, the backend id otherwise.
func (s Student) Key() string {
	if s.StudentID != "" {
		return s.StudentID
	}
	return s.ID
}

// Entry is one enrolled student with the last attendance percentage the
// backend reported.
type Entry struct {
	Student      Student `json:"student"`
	EnrollmentID string  `json:"enrollmentId"`
	Percentage   float64 `json:"attendancePercentage"`
}

// Project returns the percentage to display after a submission. The
// backend's figure wins when it sent one; nothing is derived locally.
func Project(previous float64, returned *float64) float64 {
	if returned != nil {
		return *returned
	}
	return previous
}

// Roster is the enrolled-student list of the open section.
type Roster struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
}

func New(entries []Entry) *Roster {
	r := &Roster{}
	r.Replace(entries)
	return r
}

// Replace swaps in a freshly loaded list.
func (r *Roster) Replace(entries []Entry) {
	index := make(map[string]int, 2*len(entries))
	for i, e := range entries {
		if e.Student.ID != "" {
			index[e.Student.ID] = i
		}
		if e.Student.StudentID != "" {
			index[e.Student.StudentID] = i
		}
	}
	r.mu.Lock()
	r.entries = append([]Entry(nil), entries...)
	r.index = index
	r.mu.Unlock()
}

// Loaded reports whether the roster has any students.
func (r *Roster) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) > 0
}

// Lookup finds a student by backend id or external student number.
func (r *Roster) Lookup(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Keys returns the ledger key of every enrolled student.
func (r *Roster) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Student.Key())
	}
	return out
}

func (r *Roster) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// ApplyPercentage projects a backend response onto the student's entry and
// returns the value now displayed.
func (r *Roster) ApplyPercentage(id string, returned *float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return Project(0, returned)
	}
	r.entries[i].Percentage = Project(r.entries[i].Percentage, returned)
	return r.entries[i].Percentage
}
