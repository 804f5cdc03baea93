package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-client/internal/cache"
	"auction-client/internal/domain"
	"auction-client/pkg/logger"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client maintains the long-lived push connection and folds incoming
// notification frames into the cache. At most one connection is live at a
// time; Connect supersedes any earlier connection or reconnect chain.
// Push-channel failures never surface to the user beyond the state flag.
type Client struct {
	dialer         domain.StreamDialer
	cache          *cache.Cache
	session        func() domain.Session
	alerter        domain.Alerter
	endpoint       string
	reconnectDelay time.Duration

	mu      sync.Mutex
	state   State
	conn    domain.StreamConn
	cancel  context.CancelFunc
	attempt uint64 // bumped by Connect/Disconnect; stale chains check it and die

	onState func(State)

	log logger.Logger
}

func NewClient(
	dialer domain.StreamDialer,
	c *cache.Cache,
	session func() domain.Session,
	alerter domain.Alerter,
	endpoint string,
	reconnectDelay time.Duration,
	log logger.Logger,
) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Client{
		dialer:         dialer,
		cache:          c,
		session:        session,
		alerter:        alerter,
		endpoint:       endpoint,
		reconnectDelay: reconnectDelay,
		state:          StateDisconnected,
		log:            log,
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange installs the background-status hook. Called outside a frame
// handler but with the client lock held, so it must not call back in.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Connect opens the push connection. Without a structurally valid token and a
// configured endpoint it stays disconnected and does not retry.
func (c *Client) Connect() {
	sess := c.session()
	if c.endpoint == "" || !domain.ValidToken(sess.Token) {
		c.log.Debug("Stream connect withheld", "endpoint_set", c.endpoint != "")
		return
	}

	c.mu.Lock()
	c.attempt++
	gen := c.attempt
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.run(ctx, gen, sess)
}

// Disconnect forces the disconnected state from anywhere: the live
// connection closes and any pending reconnect chain dies.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.attempt++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context, gen uint64, sess domain.Session) {
	conn, err := c.dialer.Dial(ctx, c.endpoint, sess.Token)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("Stream dial failed", "error", err)
		c.retryAfterDelay(ctx, gen)
		return
	}

	c.mu.Lock()
	if gen != c.attempt {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.log.Info("Stream connected", "user_id", sess.UserID)

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("Stream read failed", "error", err)
			c.retryAfterDelay(ctx, gen)
			return
		}
		c.apply(frame)
	}
}

// retryAfterDelay waits the fixed reconnect delay and dials again, but only
// while this chain is still the most recent attempt.
func (c *Client) retryAfterDelay(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.attempt {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	timer := time.NewTimer(c.reconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	// Do not retry once the session ended underneath us.
	sess := c.session()
	if !domain.ValidToken(sess.Token) {
		return
	}

	c.mu.Lock()
	if gen != c.attempt || ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.attempt++
	gen = c.attempt
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.run(ctx, gen, sess)
}

// apply folds one frame into the cache. Malformed frames are logged and
// dropped without touching the connection. No de-duplication by id happens
// here; the channel offers no resumption cursor, so a reconnect can both
// lose and repeat frames, and hiding repeats would hide the gap.
func (c *Client) apply(data []byte) {
	sess := c.session()
	if !sess.IsAuthenticated {
		return
	}

	wire, target, err := decodeFrame(data)
	if err != nil {
		c.log.Warn("Discarding malformed stream frame", "error", err)
		return
	}
	if target != "" && target != sess.UserID {
		c.log.Debug("Discarding frame for another user", "target_user_id", target)
		return
	}

	n := wire.toDomain()

	key := cache.KeyNotifications(sess.UserID)
	var list domain.NotificationList
	if v, ok := c.cache.Peek(key); ok {
		if existing, ok := v.(domain.NotificationList); ok {
			list = existing
		}
	}
	list.Notifications = append([]domain.Notification{n}, list.Notifications...)
	list.Total++
	c.cache.Set(key, list)

	c.patchAuction(n)

	if n.Won() {
		c.alerter.Alert("Auction won", fmt.Sprintf("You won %q for %.2f", n.AuctionTitle, *n.Price), n.AuctionID)
	} else {
		c.alerter.Alert("Outbid", fmt.Sprintf("You have been outbid on %q", n.AuctionTitle), n.AuctionID)
	}
}

// patchAuction treats push data as authoritative for the auction it
// concerns: it may overwrite an optimistic patch on the same key.
func (c *Client) patchAuction(n domain.Notification) {
	key := cache.KeyAuction(n.AuctionID)
	v, ok := c.cache.Peek(key)
	if !ok {
		return
	}
	snap, ok := v.(domain.AuctionSnapshot)
	if !ok {
		return
	}

	if n.Won() {
		snap.Status = domain.AuctionDone
		snap.CurrentPrice = *n.Price
	} else {
		snap.Status = domain.AuctionOutbid
	}
	c.cache.Set(key, snap)
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}
