package ratings

import "time"

// Rating is one patron's scored review of the day's tortilla.
type Rating struct {
	ID                string    `gorm:"column:id;primaryKey;size:36"`
	ClientFingerprint string    `gorm:"column:client_fingerprint;size:190;not null;index:idx_ratings_fingerprint_created,priority:1"`
	IPHash            string    `gorm:"column:ip_hash;size:64;not null"`
	Sabor             int       `gorm:"column:sabor;not null"`
	Jugosidad         int       `gorm:"column:jugosidad;not null"`
	Cuajada           int       `gorm:"column:cuajada;not null"`
	Temperatura       int       `gorm:"column:temperatura;not null"`
	ScoreOverall      int       `gorm:"column:score_overall;not null"`
	Comment           *string   `gorm:"column:comment;size:512"`
	ImageURL          *string   `gorm:"column:image_url;size:1024"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;index:idx_ratings_fingerprint_created,priority:2;index"`
}

func (Rating) TableName() string {
	return "ratings"
}

// ArchivedRating keeps a cleared day's ratings available to the history readers.
type ArchivedRating struct {
	ID                string    `gorm:"column:id;primaryKey;size:36"`
	ClientFingerprint string    `gorm:"column:client_fingerprint;size:190;not null"`
	IPHash            string    `gorm:"column:ip_hash;size:64;not null"`
	Sabor             int       `gorm:"column:sabor;not null"`
	Jugosidad         int       `gorm:"column:jugosidad;not null"`
	Cuajada           int       `gorm:"column:cuajada;not null"`
	Temperatura       int       `gorm:"column:temperatura;not null"`
	ScoreOverall      int       `gorm:"column:score_overall;not null"`
	Comment           *string   `gorm:"column:comment;size:512"`
	ImageURL          *string   `gorm:"column:image_url;size:1024"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;index"`
	ArchivedAt        time.Time `gorm:"column:deleted_at;not null"`
}

func (ArchivedRating) TableName() string {
	return "archive_ratings"
}

// Reaction is one of the emoji a patron can attach to a comment.
type Reaction string

const (
	ReactionFire  Reaction = "🔥"
	ReactionLaugh Reaction = "😂"
	ReactionGoat  Reaction = "🐐"
)

// Reactions lists the accepted emoji in display order.
var Reactions = []Reaction{ReactionFire, ReactionLaugh, ReactionGoat}

func ParseReaction(raw string) (Reaction, bool) {
	for _, reaction := range Reactions {
		if string(reaction) == raw {
			return reaction, true
		}
	}
	return "", false
}

// ReactionCounts always carries every accepted emoji, zero when unused.
type ReactionCounts map[Reaction]int

func NewReactionCounts() ReactionCounts {
	counts := make(ReactionCounts, len(Reactions))
	for _, reaction := range Reactions {
		counts[reaction] = 0
	}
	return counts
}

func (c ReactionCounts) Total() int {
	total := 0
	for _, count := range c {
		total += count
	}
	return total
}

type CommentReaction struct {
	ID                uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	RatingID          string    `gorm:"column:rating_id;size:36;not null;uniqueIndex:idx_comment_reactions_unique,priority:1"`
	ClientFingerprint string    `gorm:"column:client_fingerprint;size:190;not null;uniqueIndex:idx_comment_reactions_unique,priority:2"`
	Reaction          Reaction  `gorm:"column:reaction;size:16;not null;uniqueIndex:idx_comment_reactions_unique,priority:3"`
	IPHash            string    `gorm:"column:ip_hash;size:64;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
}

func (CommentReaction) TableName() string {
	return "comment_reactions"
}

type ArchivedCommentReaction struct {
	ID                uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	RatingID          string    `gorm:"column:rating_id;size:36;not null;index"`
	ClientFingerprint string    `gorm:"column:client_fingerprint;size:190;not null"`
	Reaction          Reaction  `gorm:"column:reaction;size:16;not null"`
	IPHash            string    `gorm:"column:ip_hash;size:64;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
}

func (ArchivedCommentReaction) TableName() string {
	return "archive_comment_reactions"
}

type CommentLike struct {
	ID                uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	RatingID          string    `gorm:"column:rating_id;size:36;not null;uniqueIndex:idx_comment_likes_unique,priority:1"`
	ClientFingerprint string    `gorm:"column:client_fingerprint;size:190;not null;uniqueIndex:idx_comment_likes_unique,priority:2"`
	IPHash            string    `gorm:"column:ip_hash;size:64;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
}

func (CommentLike) TableName() string {
	return "comment_likes"
}

// Models lists the tables owned by this package, in migration order.
func Models() []any {
	return []any{&Rating{}, &ArchivedRating{}, &CommentReaction{}, &ArchivedCommentReaction{}, &CommentLike{}}
}
