package songbook

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Artists() Artists
	Songs() Songs
	FavoriteSongs() FavoriteSongs
}

type mngr struct {
	db            *bun.DB
	users         Users
	artists       Artists
	songs         Songs
	favoriteSongs FavoriteSongs
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db),
		artists:       NewArtistsRepository(db),
		songs:         NewSongsRepository(db),
		favoriteSongs: NewFavoriteSongsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.artists == nil {
		return errors.New("repository artists should be initialized")
	}

	if m.songs == nil {
		return errors.New("repository songs should be initialized")
	}

	if m.favoriteSongs == nil {
		return errors.New("repository favoriteSongs should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Artists() Artists {
	return m.artists
}

func (m mngr) Songs() Songs {
	return m.songs
}

func (m mngr) FavoriteSongs() FavoriteSongs {
	return m.favoriteSongs
}
