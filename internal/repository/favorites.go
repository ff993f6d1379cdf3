package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"server-browser/internal/domain"
)

// ErrNotFound marks a lookup or delete that matched no row.
var ErrNotFound = errors.New("not found")

type FavoritesRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewFavoritesRepository(sqlDB *sql.DB, logger zerolog.Logger) *FavoritesRepository {
	return &FavoritesRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// List returns every favorite, oldest first.
func (r *FavoritesRepository) List(ctx context.Context) ([]domain.FavoriteServer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT address, name FROM favorites ORDER BY created_at, address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []domain.FavoriteServer
	for rows.Next() {
		var fav domain.FavoriteServer
		if err := rows.Scan(&fav.Address, &fav.Name); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favorites = append(favorites, fav)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read favorites: %w", err)
	}
	return favorites, nil
}

// Add stores a favorite, updating the remembered name when the address
// is already present.
func (r *FavoritesRepository) Add(ctx context.Context, fav domain.FavoriteServer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO favorites (address, name) VALUES (?, ?)
		 ON CONFLICT(address) DO UPDATE SET name = excluded.name`,
		fav.Address, fav.Name)
	if err != nil {
		r.logger.Error().Err(err).Str("address", fav.Address).Msg("failed to add favorite")
		return fmt.Errorf("failed to add favorite %s: %w", fav.Address, err)
	}

	r.logger.Debug().Str("address", fav.Address).Msg("favorite added")
	return nil
}

// Remove deletes a favorite; ErrNotFound when the address was never
// saved.
func (r *FavoritesRepository) Remove(ctx context.Context, address string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE address = ?`, address)
	if err != nil {
		r.logger.Error().Err(err).Str("address", address).Msg("failed to remove favorite")
		return fmt.Errorf("failed to remove favorite %s: %w", address, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove favorite %s: %w", address, err)
	}
	if affected == 0 {
		return fmt.Errorf("favorite %s: %w", address, ErrNotFound)
	}

	r.logger.Debug().Str("address", address).Msg("favorite removed")
	return nil
}
