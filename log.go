package blocktree

// Entry is one committed batch in a store's change log.
type Entry struct {
	Commit  int64
	Changes []BlockChange
}

// Log is the append-only commit log backing WatchChangesSince backlogs.
// It is not safe for concurrent use; stores guard it with their own
// mutation lock. The log grows without bound: it exists for correctness
// of resumption, not for production-scale retention.
type Log struct {
	entries []Entry
	last    int64
}

// NewLog returns an empty log. The first appended commit is 1.
func NewLog() *Log {
	return &Log{}
}

// Append records a batch of changes and returns its commit number.
func (l *Log) Append(changes []BlockChange) int64 {
	l.last++
	l.entries = append(l.entries, Entry{Commit: l.last, Changes: changes})
	return l.last
}

// LastCommit returns the most recently appended commit number, 0 when
// the log is empty.
func (l *Log) LastCommit() int64 {
	return l.last
}

// Len returns the number of committed entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Since returns every change with commit number > commit, flattened in
// commit order.
func (l *Log) Since(commit int64) []BlockChange {
	var out []BlockChange
	for _, e := range l.entries {
		if e.Commit <= commit {
			continue
		}
		out = append(out, e.Changes...)
	}
	return out
}

// Contains reports whether the given commit number is within the log's
// recorded range (0 means "before the first commit" and is always in
// range).
func (l *Log) Contains(commit int64) bool {
	return commit >= 0 && commit <= l.last
}

// Clone returns a deep copy of the log.
func (l *Log) Clone() *Log {
	c := &Log{last: l.last}
	if l.entries != nil {
		c.entries = make([]Entry, len(l.entries))
		for i, e := range l.entries {
			changes := make([]BlockChange, len(e.Changes))
			for j, ch := range e.Changes {
				ch.Data = ch.Data.Clone()
				changes[j] = ch
			}
			c.entries[i] = Entry{Commit: e.Commit, Changes: changes}
		}
	}
	return c
}
