package board

import "syncboard/domain"

// activityCap bounds the in-process audit trail. Older entries are evicted;
// the archiver is responsible for anything longer-lived.
const activityCap = 20

// activityLog is the bounded, newest-first record of board events. The
// engine's mutex serializes all access.
type activityLog struct {
	entries []domain.Activity
}

func newActivityLog() *activityLog {
	return &activityLog{}
}

// add prepends the record and truncates the log to activityCap entries.
func (l *activityLog) add(act domain.Activity) {
	l.entries = append([]domain.Activity{act}, l.entries...)
	if len(l.entries) > activityCap {
		l.entries = l.entries[:activityCap]
	}
}

// list returns a copy of the log, newest first.
func (l *activityLog) list() []domain.Activity {
	out := make([]domain.Activity, len(l.entries))
	copy(out, l.entries)
	return out
}
