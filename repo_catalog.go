package songbook

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Artists interface {
	repository.Repository[*Artist]

	GetByName(ctx context.Context, name string) (*Artist, error)
}

type Songs interface {
	repository.Repository[*Song]

	ListByArtist(ctx context.Context, artistID uuid.UUID) ([]*Song, error)
	SearchByTitle(ctx context.Context, query string, limit int) ([]*Song, error)
}

type FavoriteSongs interface {
	repository.Repository[*FavoriteSong]

	ListByUser(ctx context.Context, userID uuid.UUID) ([]*FavoriteSong, error)
	Unfavorite(ctx context.Context, userID, songID uuid.UUID) (bool, error)
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error)
}

type artists struct {
	repository.Repository[*Artist]
	db *bun.DB
}

func NewArtistsRepository(db *bun.DB) Artists {
	repo := repository.NewRepository[*Artist](db, repository.ModelHandlers[*Artist]{
		NewRecord: func() *Artist { return &Artist{} },
		GetID: func(a *Artist) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Artist, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &artists{Repository: repo, db: db}
}

func (a *artists) GetByName(ctx context.Context, name string) (*Artist, error) {
	record := &Artist{}
	err := a.db.NewSelect().Model(record).
		Where("?TableAlias.name = ?", strings.TrimSpace(name)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

type songs struct {
	repository.Repository[*Song]
	db *bun.DB
}

func NewSongsRepository(db *bun.DB) Songs {
	repo := repository.NewRepository[*Song](db, repository.ModelHandlers[*Song]{
		NewRecord: func() *Song { return &Song{} },
		GetID: func(s *Song) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Song, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "title"
		},
	})

	return &songs{Repository: repo, db: db}
}

func (s *songs) ListByArtist(ctx context.Context, artistID uuid.UUID) ([]*Song, error) {
	var records []*Song
	err := s.db.NewSelect().Model(&records).
		Where("?TableAlias.artist_id = ?", artistID).
		Order("title ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *songs) SearchByTitle(ctx context.Context, query string, limit int) ([]*Song, error) {
	if limit <= 0 {
		limit = 25
	}

	var records []*Song
	err := s.db.NewSelect().Model(&records).
		Relation("Artist").
		Where("?TableAlias.title LIKE ?", "%"+strings.TrimSpace(query)+"%").
		Order("title ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

type favoriteSongs struct {
	repository.Repository[*FavoriteSong]
	db *bun.DB
}

func NewFavoriteSongsRepository(db *bun.DB) FavoriteSongs {
	repo := repository.NewRepository[*FavoriteSong](db, repository.ModelHandlers[*FavoriteSong]{
		NewRecord: func() *FavoriteSong { return &FavoriteSong{} },
		GetID: func(f *FavoriteSong) uuid.UUID {
			if f == nil {
				return uuid.Nil
			}
			return f.ID
		},
		SetID: func(f *FavoriteSong, id uuid.UUID) {
			if f != nil {
				f.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &favoriteSongs{Repository: repo, db: db}
}

func (f *favoriteSongs) ListByUser(ctx context.Context, userID uuid.UUID) ([]*FavoriteSong, error) {
	var records []*FavoriteSong
	err := f.db.NewSelect().Model(&records).
		Relation("Song").
		Relation("Song.Artist").
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (f *favoriteSongs) Unfavorite(ctx context.Context, userID, songID uuid.UUID) (bool, error) {
	res, err := f.db.NewDelete().Model((*FavoriteSong)(nil)).
		Where("user_id = ?", userID).
		Where("song_id = ?", songID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

// DeleteByUserTx removes a user's favorites. The sweeper runs this in the
// same transaction that removes the account row.
func (f *favoriteSongs) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error) {
	res, err := tx.NewDelete().Model((*FavoriteSong)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}
