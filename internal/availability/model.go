package availability

import "time"

// VoteType is the claim carried by an outage vote.
type VoteType string

const (
	VoteOutage  VoteType = "outage"
	VoteWorking VoteType = "working"
)

// ParseVoteType accepts the two known vote kinds.
func ParseVoteType(raw string) (VoteType, bool) {
	switch VoteType(raw) {
	case VoteOutage:
		return VoteOutage, true
	case VoteWorking:
		return VoteWorking, true
	default:
		return "", false
	}
}

// StateRowID identifies the single availability_state row.
const StateRowID uint = 1

// State is the persisted community verdict.
type State struct {
	ID               uint      `gorm:"column:id;primaryKey;autoIncrement:false"`
	IsAvailable      bool      `gorm:"column:is_available;not null"`
	AvailableVotes   int       `gorm:"column:available_votes;not null"`
	UnavailableVotes int       `gorm:"column:unavailable_votes;not null"`
	LastUpdated      time.Time `gorm:"column:last_updated;not null"`
}

func (State) TableName() string {
	return "availability_state"
}

// OutageVote records one fingerprint's claim about availability.
type OutageVote struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Fingerprint string    `gorm:"column:fingerprint;size:190;not null;index:idx_outage_votes_fingerprint_created,priority:1"`
	IPAddress   string    `gorm:"column:ip_address;size:64;not null"`
	VoteType    VoteType  `gorm:"column:vote_type;size:16;not null"`
	IsActive    bool      `gorm:"column:is_active;not null;index:idx_outage_votes_active_created,priority:1"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_outage_votes_fingerprint_created,priority:2;index:idx_outage_votes_active_created,priority:2"`
}

func (OutageVote) TableName() string {
	return "outage_votes"
}

// Models lists the tables owned by this package, in migration order.
func Models() []any {
	return []any{&State{}, &OutageVote{}}
}
