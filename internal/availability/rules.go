package availability

import "time"

const (
	// MaxTally caps each vote kind before it reaches the state row.
	MaxTally = 10
	// MinWorkingVotes is the quorum of "working" votes required to declare availability.
	MinWorkingVotes = 2

	VoteCooldown  = 5 * time.Minute
	TallyWindow   = 30 * time.Minute
	VoteRetention = 60 * time.Minute
)

// Tally counts active votes per kind.
type Tally struct {
	Outage  int
	Working int
}

func (t Tally) Total() int {
	return t.Outage + t.Working
}

// Clamped bounds both counts to [0, MaxTally].
func (t Tally) Clamped() Tally {
	return Tally{Outage: Clamp(t.Outage), Working: Clamp(t.Working)}
}

// Clamp bounds a vote count to [0, MaxTally].
func Clamp(count int) int {
	if count < 0 {
		return 0
	}
	if count > MaxTally {
		return MaxTally
	}
	return count
}

// Decide derives availability from the vote window tally.
func Decide(working, outage int) bool {
	working = Clamp(working)
	outage = Clamp(outage)
	return working > outage && working >= MinWorkingVotes
}

// LegacyDecide derives availability for counts posted directly by older clients.
func LegacyDecide(available, unavailable int) bool {
	return Clamp(available) >= MinWorkingVotes && Clamp(unavailable) < MinWorkingVotes
}

// LegacyStateFromCounts builds the state row for a direct count update.
func LegacyStateFromCounts(available, unavailable int, observedAt time.Time) State {
	return State{
		ID:               StateRowID,
		IsAvailable:      LegacyDecide(available, unavailable),
		AvailableVotes:   Clamp(available),
		UnavailableVotes: Clamp(unavailable),
		LastUpdated:      observedAt.UTC(),
	}
}

// StateFromTally builds the state row for a tally observed at the given instant.
func StateFromTally(tally Tally, observedAt time.Time) State {
	clamped := tally.Clamped()
	return State{
		ID:               StateRowID,
		IsAvailable:      Decide(clamped.Working, clamped.Outage),
		AvailableVotes:   clamped.Working,
		UnavailableVotes: clamped.Outage,
		LastUpdated:      observedAt.UTC(),
	}
}
