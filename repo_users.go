package songbook

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ChangeUserPasswordSQL rotates the credential and stamps the watermark that
// invalidates previously issued session tokens.
var ChangeUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"password_changed_at" = ?,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

// AccountStore is the narrow surface the deletion lifecycle and the sweeper
// mutate accounts through. Every mutating statement carries its own guard in
// the WHERE clause, so a guard re-check and its mutation are one atomic
// statement.
type AccountStore interface {
	GetAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetAccountByEmail(ctx context.Context, email string) (*User, error)
	GetAccountByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	RequestDeletionTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error)
	ScheduleDeletionTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
	CancelDeletionTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error)
	DeleteIfDueTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error)
	ChangePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, now time.Time) error
	VerifyEmailTx(ctx context.Context, tx bun.IDB, email string, now time.Time) (bool, error)
	ChangeEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, newEmail string, now time.Time) (bool, error)
	ListDueForDeletion(ctx context.Context, now time.Time) ([]*User, error)
	ListAbandonedRequests(ctx context.Context, now time.Time, maxAge time.Duration) ([]*User, error)
	ClearAbandonedRequests(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)
}

type Users interface {
	repository.Repository[*User]
	AccountStore

	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

// GetByIdentifierTx resolves an email, username, or id in that order.
func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	identifier = strings.TrimSpace(identifier)

	columns := []string{"email", "username"}
	if _, err := uuid.Parse(identifier); err == nil {
		columns = []string{"id"}
	}

	for _, column := range columns {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where("?TableAlias."+column+" = ?", identifier).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user.Role == "" {
		user.Role = RoleUser
	}
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) GetAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return record, nil
}

func (a *users) GetAccountByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetAccountByEmailTx(ctx, a.db, email)
}

func (a *users) GetAccountByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return record, nil
}

// RequestDeletionTx stamps deletion_requested_at, guarded on no request being
// pending. Returns false when the guard did not match.
func (a *users) RequestDeletionTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().Model((*User)(nil)).
		Set("deletion_requested_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("deletion_requested_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return rowsAffected(res) > 0, nil
}

// ScheduleDeletionTx stamps deletion_scheduled_at, guarded on a pending and
// not yet confirmed request. The guard keeps a second confirmation from
// pushing the deadline forward.
func (a *users) ScheduleDeletionTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().Model((*User)(nil)).
		Set("deletion_scheduled_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("deletion_requested_at IS NOT NULL").
		Where("deletion_scheduled_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return rowsAffected(res) > 0, nil
}

// CancelDeletionTx clears both deletion fields. Returns false when neither
// was set, which callers treat as a no-op rather than an error.
func (a *users) CancelDeletionTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().Model((*User)(nil)).
		Set("deletion_requested_at = NULL").
		Set("deletion_scheduled_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				WhereOr("deletion_requested_at IS NOT NULL").
				WhereOr("deletion_scheduled_at IS NOT NULL")
		}).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return rowsAffected(res) > 0, nil
}

// DeleteIfDueTx removes the row only if it is still scheduled and due at
// delete time. A concurrent cancellation makes the guard miss and the delete
// becomes a no-op, which is how login wins the race against the sweeper.
func (a *users) DeleteIfDueTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error) {
	res, err := tx.NewDelete().Model((*User)(nil)).
		Where("id = ?", id).
		Where("deletion_scheduled_at IS NOT NULL").
		Where("deletion_scheduled_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return rowsAffected(res) > 0, nil
}

func (a *users) ChangePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, now time.Time) error {
	res, err := a.Repository.RawTx(ctx, tx, ChangeUserPasswordSQL, passwordHash, now, now, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) VerifyEmailTx(ctx context.Context, tx bun.IDB, email string, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().Model((*User)(nil)).
		Set("is_email_verified = ?", true).
		Set("email_verified_at = ?", now).
		Set("updated_at = ?", now).
		Where("email = ?", strings.TrimSpace(email)).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return rowsAffected(res) > 0, nil
}

// ChangeEmailTx swaps the address and clears verification; the new address
// has to be verified again.
func (a *users) ChangeEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, newEmail string, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().Model((*User)(nil)).
		Set("email = ?", strings.TrimSpace(newEmail)).
		Set("is_email_verified = ?", false).
		Set("email_verified_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	return rowsAffected(res) > 0, nil
}

func (a *users) ListDueForDeletion(ctx context.Context, now time.Time) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().Model(&records).
		Where("deletion_scheduled_at IS NOT NULL").
		Where("deletion_scheduled_at <= ?", now).
		Order("deletion_scheduled_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *users) ListAbandonedRequests(ctx context.Context, now time.Time, maxAge time.Duration) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().Model(&records).
		Where("deletion_requested_at IS NOT NULL").
		Where("deletion_scheduled_at IS NULL").
		Where("deletion_requested_at <= ?", now.Add(-maxAge)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *users) ClearAbandonedRequests(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	res, err := a.db.NewUpdate().Model((*User)(nil)).
		Set("deletion_requested_at = NULL").
		Set("updated_at = ?", now).
		Where("deletion_requested_at IS NOT NULL").
		Where("deletion_scheduled_at IS NULL").
		Where("deletion_requested_at <= ?", now.Add(-maxAge)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return rowsAffected(res), nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?);
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.Update(ctx, record, criteria...)

	return err
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }) int {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
