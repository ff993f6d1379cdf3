package domain

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// FavoriteServer is a bookmarked endpoint. Only the address is required;
// the name is whatever the server reported when it was saved and is used
// as a placeholder until the next successful query.
type FavoriteServer struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// FavoriteSet answers membership by address.
type FavoriteSet map[string]struct{}

// NewFavoriteSet builds a set over the given favorites.
func NewFavoriteSet(favorites []FavoriteServer) FavoriteSet {
	set := make(FavoriteSet, len(favorites))
	for _, fav := range favorites {
		set[fav.Address] = struct{}{}
	}
	return set
}

// Contains reports whether addr is favorited.
func (fs FavoriteSet) Contains(addr string) bool {
	_, ok := fs[addr]
	return ok
}

// DeriveFavoriteID produces a stable synthetic ID for a favorite absent
// from the master list, so the record keeps its identity across refreshes.
func DeriveFavoriteID(addr string) string {
	return fmt.Sprintf("fav-%016x", xxhash.Sum64String(addr))
}

// SyntheticFavorite builds a placeholder record for a favorited address
// the master list does not know about. The record starts unqueried; the
// query client fills in status like for any other server.
func SyntheticFavorite(fav FavoriteServer) (Server, error) {
	host, port, err := SplitAddr(fav.Address)
	if err != nil {
		return Server{}, fmt.Errorf("favorite %q: %w", fav.Address, err)
	}
	return Server{
		ID:        DeriveFavoriteID(fav.Address),
		Host:      host,
		Port:      port,
		Kind:      KindPrivate,
		Ownership: OwnershipSelfHosted,
		Name:      fav.Name,
		Validity:  ValidityInvalid,
	}, nil
}
