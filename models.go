package songbook

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. The two deletion timestamps drive the deferred
// deletion lifecycle:
//
//	Active             deletion_requested_at IS NULL
//	DeletionRequested  deletion_requested_at set, deletion_scheduled_at NULL
//	DeletionScheduled  deletion_scheduled_at set
//	Deleted            row removed by the sweeper
//
// deletion_scheduled_at is only ever set while deletion_requested_at is set,
// and never precedes it.
type User struct {
	bun.BaseModel       `bun:"table:users,alias:usr"`
	ID                  uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role                UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username            string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email               string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName            string     `bun:"full_name" json:"full_name,omitempty"`
	Bio                 string     `bun:"bio" json:"bio,omitempty"`
	AvatarURL           string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	IsMusician          bool       `bun:"is_musician" json:"is_musician,omitempty"`
	PasswordHash        string     `bun:"password_hash" json:"password_hash,omitempty"`
	EmailVerified       bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	EmailVerifiedAt     *time.Time `bun:"email_verified_at,nullzero" json:"email_verified_at,omitempty"`
	LoginAttempts       int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt      *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt          *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	PasswordChangedAt   *time.Time `bun:"password_changed_at,nullzero" json:"password_changed_at,omitempty"`
	DeletionRequestedAt *time.Time `bun:"deletion_requested_at,nullzero" json:"deletion_requested_at,omitempty"`
	DeletionScheduledAt *time.Time `bun:"deletion_scheduled_at,nullzero" json:"deletion_scheduled_at,omitempty"`
	CreatedAt           *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// DeletionState is the derived lifecycle state of an account. It is computed
// from the two timestamps, never stored.
type DeletionState string

const (
	DeletionStateActive    DeletionState = "active"
	DeletionStateRequested DeletionState = "deletion_requested"
	DeletionStateScheduled DeletionState = "deletion_scheduled"
)

// DeletionState derives the lifecycle state from the deletion timestamps.
func (u *User) DeletionState() DeletionState {
	switch {
	case u.DeletionScheduledAt != nil:
		return DeletionStateScheduled
	case u.DeletionRequestedAt != nil:
		return DeletionStateRequested
	default:
		return DeletionStateActive
	}
}

// Artist is a catalog artist page.
type Artist struct {
	bun.BaseModel `bun:"table:artists,alias:art"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	Bio           string     `bun:"bio" json:"bio,omitempty"`
	Genre         string     `bun:"genre" json:"genre,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Song is a lyrics/chords sheet in the catalog.
type Song struct {
	bun.BaseModel `bun:"table:songs,alias:sng"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ArtistID      *uuid.UUID `bun:"artist_id" json:"artist_id,omitempty"`
	Artist        *Artist    `bun:"rel:has-one,join:artist_id=id" json:"artist,omitempty"`
	Title         string     `bun:"title,notnull" json:"title,omitempty"`
	Lyrics        string     `bun:"lyrics" json:"lyrics,omitempty"`
	Chords        string     `bun:"chords" json:"chords,omitempty"`
	Key           string     `bun:"song_key" json:"song_key,omitempty"`
	Capo          int        `bun:"capo" json:"capo,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// FavoriteSong links a user to a song they starred.
type FavoriteSong struct {
	bun.BaseModel `bun:"table:favorite_songs,alias:fav"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	SongID        *uuid.UUID `bun:"song_id,notnull" json:"song_id,omitempty"`
	Song          *Song      `bun:"rel:has-one,join:song_id=id" json:"song,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
