package domain

import "time"

// ZombieFlag is the one-way Unflagged -> Flagged{at} transition attached to a
// subscription. The zero value is Unflagged. There is no way back.
type ZombieFlag struct {
	at time.Time
}

// Unflagged returns the initial state.
func Unflagged() ZombieFlag {
	return ZombieFlag{}
}

// FlaggedAt rebuilds a flagged state loaded from storage.
func FlaggedAt(at time.Time) ZombieFlag {
	if at.IsZero() {
		return ZombieFlag{}
	}
	return ZombieFlag{at: at.UTC()}
}

// IsFlagged reports whether the transition has happened.
func (f ZombieFlag) IsFlagged() bool {
	return !f.at.IsZero()
}

// At returns when the subscription was flagged.
func (f ZombieFlag) At() (time.Time, bool) {
	return f.at, f.IsFlagged()
}

// Flag performs the transition. The second result is false when the flag was
// already set, in which case the original timestamp is kept.
func (f ZombieFlag) Flag(at time.Time) (ZombieFlag, bool) {
	if f.IsFlagged() {
		return f, false
	}
	return FlaggedAt(at), true
}

func (f ZombieFlag) String() string {
	if !f.IsFlagged() {
		return "unflagged"
	}
	return "flagged@" + f.at.Format(time.RFC3339)
}
