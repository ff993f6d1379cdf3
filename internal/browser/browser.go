// Package browser ties the master list, the status prober, and the
// favorites store into one stateful server directory. A refresh round
// fetches the roster, folds in favorites the master does not know
// about, probes everything, and only then swaps the published list in
// a single step; readers always see either the previous complete
// round or the new one, never a half-updated mix.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"server-browser/internal/constants"
	"server-browser/internal/domain"
	"server-browser/internal/masterlist"
	"server-browser/internal/query"
	"server-browser/internal/repository"
	"server-browser/internal/servers"
)

// ErrSuperseded is returned by a refresh that was replaced by a newer
// one before it could publish. The newer round owns the outcome.
var ErrSuperseded = errors.New("refresh superseded")

// Browser owns the published server list and the refresh lifecycle.
type Browser struct {
	fetcher   *masterlist.Fetcher
	client    *query.Client
	favorites *repository.FavoritesRepository
	sessions  *repository.SessionRepository
	logger    zerolog.Logger

	mu         sync.Mutex
	list       servers.ServerList
	stats      Stats
	generation uint64
	cancel     context.CancelFunc

	favMu  sync.RWMutex
	favSet domain.FavoriteSet

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

// New builds a Browser and primes the favorites cache from the store.
func New(
	fetcher *masterlist.Fetcher,
	client *query.Client,
	favorites *repository.FavoritesRepository,
	sessions *repository.SessionRepository,
	logger zerolog.Logger,
) (*Browser, error) {
	b := &Browser{
		fetcher:   fetcher,
		client:    client,
		favorites: favorites,
		sessions:  sessions,
		logger:    logger,
		subs:      make(map[int]chan Update),
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	favs, err := favorites.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("priming favorites: %w", err)
	}
	b.favSet = domain.NewFavoriteSet(favs)

	return b, nil
}

// Refresh runs one full round and publishes its result. Starting a new
// refresh cancels any round still in flight; the superseded round
// returns ErrSuperseded and never publishes or emits further updates.
func (b *Browser) Refresh(ctx context.Context) (servers.ServerList, Stats, error) {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	if b.cancel != nil {
		b.cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	defer func() {
		cancel()
		b.mu.Lock()
		if b.generation == gen {
			b.cancel = nil
		}
		b.mu.Unlock()
	}()

	start := time.Now()
	b.logger.Info().Uint64("round", gen).Msg("refresh started")
	b.notifyIfCurrent(gen, Update{Kind: UpdateStarted})

	records, err := b.fetcher.Fetch(rctx)
	if err != nil {
		err = fmt.Errorf("refresh: %w", err)
		b.notifyIfCurrent(gen, Update{Kind: UpdateFailed, Err: err})
		return servers.Empty(), Stats{}, err
	}

	staging, merged := b.mergeFavorites(rctx, records)

	for res := range b.client.QueryAll(rctx, staging) {
		staging[res.Index] = res.Record
		b.notifyIfCurrent(gen, Update{Kind: UpdateServer, Record: res.Record})
	}

	if rctx.Err() != nil {
		if b.currentGeneration() != gen {
			return servers.Empty(), Stats{}, ErrSuperseded
		}
		err := fmt.Errorf("refresh: %w", rctx.Err())
		b.notifyIfCurrent(gen, Update{Kind: UpdateFailed, Err: err})
		return servers.Empty(), Stats{}, err
	}

	list := servers.FromRecords(staging)
	stats := roundStats(staging, merged, time.Since(start))

	b.mu.Lock()
	if b.generation != gen {
		b.mu.Unlock()
		return servers.Empty(), Stats{}, ErrSuperseded
	}
	b.list = list
	b.stats = stats
	b.mu.Unlock()

	b.notify(Update{Kind: UpdateCompleted, List: list, Stats: stats})
	b.logger.Info().
		Uint64("round", gen).
		Int("total", stats.Total).
		Int("fresh", stats.Fresh).
		Int("degraded", stats.Degraded).
		Dur("duration", stats.Duration).
		Msg("refresh completed")

	return list, stats, nil
}

// Servers returns the most recently published list. It is empty until
// the first refresh completes.
func (b *Browser) Servers() servers.ServerList {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.list
}

// LastStats returns the stats of the most recently published round.
func (b *Browser) LastStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// View filters and sorts the published list without copying records.
// When the criteria carry no favorite set the browser's own is used,
// so type=favorites works out of the box.
func (b *Browser) View(criteria servers.FilterCriteria, sort servers.SortCriteria) (servers.ServerList, error) {
	if criteria.Favorites == nil {
		criteria.Favorites = b.favoriteSet()
	}
	filter, err := servers.NewFilter(criteria)
	if err != nil {
		return servers.Empty(), err
	}
	return b.Servers().Filtered(filter).Sorted(sort), nil
}

// Ping probes a single address outside the refresh cycle. When the
// address is on the published list the probe keeps that record's
// identity and last-known fields; unknown addresses are probed as bare
// private entries.
func (b *Browser) Ping(ctx context.Context, address string) (domain.Server, error) {
	host, port, err := domain.SplitAddr(address)
	if err != nil {
		return domain.Server{}, fmt.Errorf("pinging %s: %w", address, err)
	}

	rec := domain.Server{
		ID:        domain.DeriveFavoriteID(address),
		Host:      host,
		Port:      port,
		Kind:      domain.KindPrivate,
		Ownership: domain.OwnershipSelfHosted,
	}
	list := b.Servers()
	for i := 0; i < list.Len(); i++ {
		if cur := list.At(i); cur.Addr() == address {
			rec = *cur
			break
		}
	}

	return b.client.QueryOne(ctx, rec)
}

// Favorites lists the stored favorites.
func (b *Browser) Favorites(ctx context.Context) ([]domain.FavoriteServer, error) {
	return b.favorites.List(ctx)
}

// AddFavorite stores a favorite and refreshes the in-memory set. The
// address must be host:port.
func (b *Browser) AddFavorite(ctx context.Context, fav domain.FavoriteServer) error {
	if _, _, err := domain.SplitAddr(fav.Address); err != nil {
		return fmt.Errorf("adding favorite: %w", err)
	}
	if err := b.favorites.Add(ctx, fav); err != nil {
		return err
	}
	b.favMu.Lock()
	b.favSet[fav.Address] = struct{}{}
	b.favMu.Unlock()
	return nil
}

// RemoveFavorite deletes a favorite and refreshes the in-memory set.
func (b *Browser) RemoveFavorite(ctx context.Context, address string) error {
	if err := b.favorites.Remove(ctx, address); err != nil {
		return err
	}
	b.favMu.Lock()
	delete(b.favSet, address)
	b.favMu.Unlock()
	return nil
}

// MarkJoined records that the player connected to the given address.
// The server name is taken from the published list when known.
func (b *Browser) MarkJoined(ctx context.Context, address string) (domain.Session, error) {
	if _, _, err := domain.SplitAddr(address); err != nil {
		return domain.Session{}, fmt.Errorf("marking joined: %w", err)
	}

	var name string
	list := b.Servers()
	for i := 0; i < list.Len(); i++ {
		if rec := list.At(i); rec.Addr() == address {
			name = rec.Name
			break
		}
	}

	return b.sessions.Record(ctx, address, name)
}

// RecentSessions returns the newest join records, capped at limit.
func (b *Browser) RecentSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 || limit > constants.SessionLogLimit {
		limit = constants.SessionLogLimit
	}
	return b.sessions.Recent(ctx, limit)
}

// LastConnected returns the most recent join record.
func (b *Browser) LastConnected(ctx context.Context) (domain.Session, error) {
	return b.sessions.LastConnected(ctx)
}

// Subscribe registers an update stream for refresh events. Per-record
// updates are dropped for subscribers that fall behind; started,
// completed and failed events use the same buffer, so keep draining.
func (b *Browser) Subscribe() (int, <-chan Update) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan Update, constants.UpdateBuffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a stream and closes its channel.
func (b *Browser) Unsubscribe(id int) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// mergeFavorites appends a synthesized record for every favorite the
// master list does not carry and refreshes the in-memory set. Store
// failures degrade to the plain roster rather than failing the round.
func (b *Browser) mergeFavorites(ctx context.Context, records []domain.Server) ([]domain.Server, int) {
	favs, err := b.favorites.List(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("favorites unavailable, refreshing without them")
		return records, 0
	}

	b.favMu.Lock()
	b.favSet = domain.NewFavoriteSet(favs)
	b.favMu.Unlock()

	known := make(map[string]struct{}, len(records))
	for i := range records {
		known[records[i].Addr()] = struct{}{}
	}

	merged := 0
	for _, fav := range favs {
		if _, ok := known[fav.Address]; ok {
			continue
		}
		rec, err := domain.SyntheticFavorite(fav)
		if err != nil {
			b.logger.Warn().Err(err).Str("address", fav.Address).Msg("skipping unusable favorite")
			continue
		}
		records = append(records, rec)
		merged++
	}

	return records, merged
}

func (b *Browser) favoriteSet() domain.FavoriteSet {
	b.favMu.RLock()
	defer b.favMu.RUnlock()
	return b.favSet
}

func (b *Browser) currentGeneration() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// notifyIfCurrent drops the event when the round has been superseded.
// The check races with a concurrent supersede for per-record events,
// which is acceptable; terminal publication is guarded by the lock.
func (b *Browser) notifyIfCurrent(gen uint64, u Update) {
	if b.currentGeneration() != gen {
		return
	}
	b.notify(u)
}

func (b *Browser) notify(u Update) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func roundStats(records []domain.Server, merged int, duration time.Duration) Stats {
	s := Stats{
		Total:     len(records),
		Favorites: merged,
		Duration:  duration,
		At:        time.Now().UTC(),
	}
	for i := range records {
		if records[i].Validity == domain.ValidityValid {
			s.Fresh++
		} else {
			s.Degraded++
		}
	}
	return s
}
