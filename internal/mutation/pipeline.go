package mutation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"auction-client/internal/cache"
	"auction-client/internal/domain"
	"auction-client/pkg/logger"
)

// SessionSource yields the current session. The pipeline refuses work for
// unauthenticated sessions before touching the cache or the network.
type SessionSource func() domain.Session

// pendingEntry remembers one cache key as it was before an optimistic write,
// so a failed mutation can put it back exactly.
type pendingEntry struct {
	key     cache.Key
	value   interface{}
	existed bool
}

// pendingMutation is the rollback unit for one in-flight operation. Entries
// cover every key the mutation wrote and nothing else.
type pendingMutation struct {
	id        string
	entries   []pendingEntry
	appliedAt time.Time
}

// Pipeline runs write operations against the auction backend with optimistic
// cache updates. Mutations touching the same keys are serialized; disjoint
// mutations run concurrently.
type Pipeline struct {
	cache    *cache.Cache
	auctions domain.AuctionGateway
	session  SessionSource
	alerter  domain.Alerter
	log      logger.Logger

	busy *keyLocks
}

func NewPipeline(c *cache.Cache, auctions domain.AuctionGateway, session SessionSource, alerter domain.Alerter, log logger.Logger) *Pipeline {
	return &Pipeline{
		cache:    c,
		auctions: auctions,
		session:  session,
		alerter:  alerter,
		log:      log,
		busy:     newKeyLocks(),
	}
}

// PlaceBid validates the amount against the cached auction state, applies the
// new price optimistically, then confirms with the server. On failure every
// touched key is restored and the user gets a toast unless the error carries
// field-level validation details for the form to display.
func (p *Pipeline) PlaceBid(ctx context.Context, auctionID string, amount float64) error {
	sess := p.session()
	if !sess.IsAuthenticated {
		return domain.ErrNotAuthenticated
	}

	current, err := p.currentSnapshot(ctx, auctionID)
	if err != nil {
		p.surface(err)
		return err
	}
	if err := validateBid(amount, current.CurrentPrice); err != nil {
		return err
	}

	keys := p.touchedAuctionKeys(auctionID)
	release := p.busy.acquire(keys)
	defer release()

	// Re-read under the lock: an earlier mutation or a push frame may have
	// moved the price while we waited.
	if v, ok := p.cache.Peek(cache.KeyAuction(auctionID)); ok {
		snap := v.(domain.AuctionSnapshot)
		current = &snap
	}
	if err := validateBid(amount, current.CurrentPrice); err != nil {
		return err
	}

	pending := p.capture(keys)

	optimistic := *current
	optimistic.CurrentPrice = amount
	optimistic.Status = domain.AuctionWinning
	optimistic.Bids = append(append([]domain.Bid(nil), current.Bids...), domain.Bid{
		ID:        uuid.NewString(),
		BidderID:  sess.UserID,
		Amount:    amount,
		CreatedAt: time.Now(),
	})
	p.cache.Set(cache.KeyAuction(auctionID), optimistic)
	p.patchLists(keys[1:], auctionID, func(s *domain.AuctionSnapshot) {
		s.CurrentPrice = amount
		s.Status = domain.AuctionWinning
	})

	confirmed, err := p.auctions.PlaceBid(ctx, auctionID, amount)
	if err != nil {
		p.rollback(pending)
		p.surface(err)
		return err
	}

	if confirmed != nil {
		p.cache.Set(cache.KeyAuction(auctionID), *confirmed)
		p.patchLists(keys[1:], auctionID, func(s *domain.AuctionSnapshot) {
			s.CurrentPrice = confirmed.CurrentPrice
			s.Status = confirmed.Status
		})
	}
	p.cache.Invalidate(cache.KeyUserStatistics())

	p.log.Debug("bid placed", "auction_id", auctionID, "amount", amount, "mutation_id", pending.id)
	return nil
}

// CreateAuction has no optimistic phase: the listing does not exist until the
// server assigns it an identity. The created snapshot is seeded into the cache
// and every list page is invalidated because filter membership is server-side.
func (p *Pipeline) CreateAuction(ctx context.Context, draft domain.AuctionDraft) (*domain.AuctionSnapshot, error) {
	if !p.session().IsAuthenticated {
		return nil, domain.ErrNotAuthenticated
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	created, err := p.auctions.CreateAuction(ctx, draft)
	if err != nil {
		p.surface(err)
		return nil, err
	}

	if created != nil {
		p.cache.Set(cache.KeyAuction(created.ID), *created)
	}
	p.cache.Invalidate(cache.KeyAuctionsPrefix())
	p.cache.Invalidate(cache.KeyUserStatistics())
	return created, nil
}

// UpdateAuction optimistically patches the editable fields of the cached
// snapshot while the server call is in flight.
func (p *Pipeline) UpdateAuction(ctx context.Context, auctionID string, draft domain.AuctionDraft) error {
	if !p.session().IsAuthenticated {
		return domain.ErrNotAuthenticated
	}
	if err := validateDraft(draft); err != nil {
		return err
	}

	keys := p.touchedAuctionKeys(auctionID)
	release := p.busy.acquire(keys)
	defer release()

	pending := p.capture(keys)

	patch := func(s *domain.AuctionSnapshot) {
		s.Title = draft.Title
		s.Description = draft.Description
		s.EndTime = draft.EndTime
		if draft.ImageURL != "" {
			s.ImageURL = draft.ImageURL
		}
	}
	if v, ok := p.cache.Peek(cache.KeyAuction(auctionID)); ok {
		snap := v.(domain.AuctionSnapshot)
		patch(&snap)
		p.cache.Set(cache.KeyAuction(auctionID), snap)
	}
	p.patchLists(keys[1:], auctionID, patch)

	updated, err := p.auctions.UpdateAuction(ctx, auctionID, draft)
	if err != nil {
		p.rollback(pending)
		p.surface(err)
		return err
	}

	if updated != nil {
		p.cache.Set(cache.KeyAuction(auctionID), *updated)
	}
	p.cache.Invalidate(cache.KeyAuctionsPrefix())
	return nil
}

// DeleteAuction removes the listing optimistically from the detail entry and
// every cached page, restoring them if the server refuses.
func (p *Pipeline) DeleteAuction(ctx context.Context, auctionID string) error {
	if !p.session().IsAuthenticated {
		return domain.ErrNotAuthenticated
	}

	keys := p.touchedAuctionKeys(auctionID)
	release := p.busy.acquire(keys)
	defer release()

	pending := p.capture(keys)

	p.cache.Delete(cache.KeyAuction(auctionID))
	for _, key := range keys[1:] {
		v, ok := p.cache.Peek(key)
		if !ok {
			continue
		}
		page, ok := v.(domain.AuctionPage)
		if !ok {
			continue
		}
		kept := page.Auctions[:0:0]
		removed := false
		for _, s := range page.Auctions {
			if s.ID == auctionID {
				removed = true
				continue
			}
			kept = append(kept, s)
		}
		if removed {
			page.Auctions = kept
			page.Total--
			p.cache.Set(key, page)
		}
	}

	if err := p.auctions.DeleteAuction(ctx, auctionID); err != nil {
		p.rollback(pending)
		p.surface(err)
		return err
	}

	p.cache.Invalidate(cache.KeyAuctionsPrefix())
	p.cache.Invalidate(cache.KeyUserStatistics())
	return nil
}

// currentSnapshot prefers the cached value and falls back to the server when
// the auction was never loaded, since bid validation needs a price to compare
// against.
func (p *Pipeline) currentSnapshot(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error) {
	if v, ok := p.cache.Peek(cache.KeyAuction(auctionID)); ok {
		snap := v.(domain.AuctionSnapshot)
		return &snap, nil
	}
	snap, err := p.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	p.cache.Set(cache.KeyAuction(auctionID), *snap)
	return snap, nil
}

// touchedAuctionKeys lists every cache key a mutation of this auction may
// write: the detail entry plus each cached list page containing it.
func (p *Pipeline) touchedAuctionKeys(auctionID string) []cache.Key {
	keys := []cache.Key{cache.KeyAuction(auctionID)}
	for _, key := range p.cache.KeysWithPrefix(cache.KeyAuctionsPrefix()) {
		v, ok := p.cache.Peek(key)
		if !ok {
			continue
		}
		page, ok := v.(domain.AuctionPage)
		if !ok {
			continue
		}
		for _, s := range page.Auctions {
			if s.ID == auctionID {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

// capture snapshots the pre-mutation value of every touched key. Must be
// called with the keys already held.
func (p *Pipeline) capture(keys []cache.Key) *pendingMutation {
	pending := &pendingMutation{id: uuid.NewString(), appliedAt: time.Now()}
	for _, key := range keys {
		v, ok := p.cache.Peek(key)
		pending.entries = append(pending.entries, pendingEntry{key: key, value: v, existed: ok})
	}
	return pending
}

// rollback restores exactly the keys the mutation captured. Keys that did not
// exist before are deleted rather than written back.
func (p *Pipeline) rollback(pending *pendingMutation) {
	for _, e := range pending.entries {
		if e.existed {
			p.cache.Set(e.key, e.value)
		} else {
			p.cache.Delete(e.key)
		}
	}
	p.log.Debug("mutation rolled back", "mutation_id", pending.id, "keys", len(pending.entries))
}

// patchLists applies fn to the auction's row in each of the given list pages.
// Only keys already captured by the mutation may be passed, so rollback stays
// scoped to what was actually written. The rollback snapshot holds the same
// backing array as the cached page, so the patch must go into a fresh slice
// or it would rewrite the captured pre-mutation values.
func (p *Pipeline) patchLists(keys []cache.Key, auctionID string, fn func(*domain.AuctionSnapshot)) {
	for _, key := range keys {
		v, ok := p.cache.Peek(key)
		if !ok {
			continue
		}
		page, ok := v.(domain.AuctionPage)
		if !ok {
			continue
		}
		auctions := append([]domain.AuctionSnapshot(nil), page.Auctions...)
		changed := false
		for i := range auctions {
			if auctions[i].ID == auctionID {
				fn(&auctions[i])
				changed = true
			}
		}
		if changed {
			page.Auctions = auctions
			p.cache.Set(key, page)
		}
	}
}

// surface routes a failed mutation to the user. Validation errors are returned
// to the caller for inline display and never toasted.
func (p *Pipeline) surface(err error) {
	if domain.IsValidationError(err) || p.alerter == nil {
		return
	}
	p.alerter.Toast(domain.UserMessage(err))
}

// keyLocks serializes mutations by cache key. Acquisition is in sorted key
// order so two mutations over overlapping key sets cannot deadlock.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: make(map[string]chan struct{})}
}

func (l *keyLocks) acquire(keys []cache.Key) (release func()) {
	ids := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		id := k.ID()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		for {
			l.mu.Lock()
			waiter, busy := l.held[id]
			if !busy {
				l.held[id] = make(chan struct{})
				l.mu.Unlock()
				break
			}
			l.mu.Unlock()
			<-waiter
		}
	}

	return func() {
		l.mu.Lock()
		for _, id := range ids {
			close(l.held[id])
			delete(l.held, id)
		}
		l.mu.Unlock()
	}
}
