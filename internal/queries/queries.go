package queries

import (
	"context"

	"auction-client/internal/cache"
	"auction-client/internal/config"
	"auction-client/internal/domain"
	"auction-client/pkg/logger"
)

// Queries binds the cache key namespace to the API gateways: one place
// decides which key each read uses, how stale it may get, and which keys
// poll in the background. Views go through here instead of inventing keys.
type Queries struct {
	auctions      domain.AuctionGateway
	notifications domain.NotificationGateway
	users         domain.UserGateway
	cache         *cache.Cache
	poller        *cache.Poller
	session       func() domain.Session
	cfg           config.CacheConfig
	log           logger.Logger
}

func New(
	auctions domain.AuctionGateway,
	notifications domain.NotificationGateway,
	users domain.UserGateway,
	c *cache.Cache,
	poller *cache.Poller,
	session func() domain.Session,
	cfg config.CacheConfig,
	log logger.Logger,
) *Queries {
	return &Queries{
		auctions:      auctions,
		notifications: notifications,
		users:         users,
		cache:         c,
		poller:        poller,
		session:       session,
		cfg:           cfg,
		log:           log,
	}
}

// Auction reads one auction detail. Short staleness: prices move.
func (q *Queries) Auction(ctx context.Context, auctionID string) cache.Result {
	return q.cache.Get(ctx, cache.KeyAuction(auctionID), q.auctionFetcher(auctionID),
		cache.Options{StaleAfter: q.cfg.AuctionStale})
}

// WatchAuction marks the detail view open: the key gains a reader and a
// background poll job so the price stays current even while the tab is
// backgrounded.
func (q *Queries) WatchAuction(auctionID string) error {
	key := cache.KeyAuction(auctionID)
	q.cache.Subscribe(key)
	return q.poller.Track(key, q.auctionFetcher(auctionID), cache.Options{StaleAfter: q.cfg.AuctionStale})
}

func (q *Queries) UnwatchAuction(auctionID string) {
	key := cache.KeyAuction(auctionID)
	q.cache.Unsubscribe(key)
	q.poller.Untrack(key)
}

func (q *Queries) Auctions(ctx context.Context, filter string, page, limit int) cache.Result {
	return q.cache.Get(ctx, cache.KeyAuctions(filter, page, limit), q.auctionsFetcher(filter, page, limit),
		cache.Options{StaleAfter: q.cfg.AuctionListStale})
}

func (q *Queries) WatchAuctions(filter string, page, limit int) error {
	key := cache.KeyAuctions(filter, page, limit)
	q.cache.Subscribe(key)
	return q.poller.Track(key, q.auctionsFetcher(filter, page, limit),
		cache.Options{StaleAfter: q.cfg.AuctionListStale})
}

func (q *Queries) UnwatchAuctions(filter string, page, limit int) {
	key := cache.KeyAuctions(filter, page, limit)
	q.cache.Unsubscribe(key)
	q.poller.Untrack(key)
}

// Notifications reads the current user's notification list. Long staleness:
// the push stream keeps this entry current, polling is a backstop.
func (q *Queries) Notifications(ctx context.Context) cache.Result {
	sess := q.session()
	if !sess.IsAuthenticated {
		return cache.Result{Err: domain.ErrNotAuthenticated}
	}
	return q.cache.Get(ctx, cache.KeyNotifications(sess.UserID), q.notificationsFetcher(sess.UserID),
		cache.Options{StaleAfter: q.cfg.NotificationsStale})
}

// ClearNotifications replaces the entire collection with empty once the
// server confirms. No optimistic clear: the operation is rare and cheap to
// wait for.
func (q *Queries) ClearNotifications(ctx context.Context) error {
	sess := q.session()
	if !sess.IsAuthenticated {
		return domain.ErrNotAuthenticated
	}
	if err := q.notifications.ClearNotifications(ctx); err != nil {
		return err
	}
	q.cache.Set(cache.KeyNotifications(sess.UserID), domain.NotificationList{})
	return nil
}

func (q *Queries) UserStatistics(ctx context.Context) cache.Result {
	return q.cache.Get(ctx, cache.KeyUserStatistics(), func(ctx context.Context) (interface{}, error) {
		stats, err := q.users.UserStatistics(ctx)
		if err != nil {
			return nil, err
		}
		return *stats, nil
	}, cache.Options{StaleAfter: q.cfg.UserStale})
}

func (q *Queries) auctionFetcher(auctionID string) cache.Fetcher {
	return func(ctx context.Context) (interface{}, error) {
		auction, err := q.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		return *auction, nil
	}
}

func (q *Queries) auctionsFetcher(filter string, page, limit int) cache.Fetcher {
	return func(ctx context.Context) (interface{}, error) {
		result, err := q.auctions.ListAuctions(ctx, filter, page, limit)
		if err != nil {
			return nil, err
		}
		return *result, nil
	}
}

func (q *Queries) notificationsFetcher(userID string) cache.Fetcher {
	return func(ctx context.Context) (interface{}, error) {
		list, err := q.notifications.Notifications(ctx, userID)
		if err != nil {
			return nil, err
		}
		return *list, nil
	}
}
