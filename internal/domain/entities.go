package domain

import (
	"time"
)

// Session is the process-wide authentication state. Exactly one Session is
// live per client instance; it is replaced wholesale on every auth transition.
type Session struct {
	Token           string
	UserID          string
	IsAuthenticated bool
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Profile is the registration payload (everything except the password).
type Profile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthResult is what the server hands back on successful login/register.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type AuctionStatus string

const (
	AuctionInProgress AuctionStatus = "in-progress"
	AuctionOutbid     AuctionStatus = "outbid"
	AuctionWinning    AuctionStatus = "winning"
	AuctionDone       AuctionStatus = "done"
)

type Bid struct {
	ID        string    `json:"id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// AuctionSnapshot is the cached projection of one auction. It is owned by
// the query cache and mutated only through server refetch or an optimistic
// patch. Bids are ordered by CreatedAt ascending.
type AuctionSnapshot struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	ImageURL     string        `json:"image_url,omitempty"`
	CurrentPrice float64       `json:"current_price"`
	Status       AuctionStatus `json:"status"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	SellerID     string        `json:"seller_id"`
	Bids         []Bid         `json:"bids,omitempty"`
}

// AuctionPage is one page of a filtered auction list.
type AuctionPage struct {
	Auctions []AuctionSnapshot `json:"auctions"`
	Total    int               `json:"total"`
}

// AuctionDraft carries the user-edited fields for create/update.
type AuctionDraft struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	StartingPrice float64   `json:"starting_price"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ImageURL      string    `json:"image_url,omitempty"`
}

// Notification is append-only from the client's perspective: created by push
// events, never mutated, removed only by clear-all. A non-nil Price means the
// user won the auction; nil means they were outbid.
type Notification struct {
	ID           string    `json:"id"`
	AuctionID    string    `json:"auction_id"`
	AuctionTitle string    `json:"auction_title"`
	ImageURL     string    `json:"image_url,omitempty"`
	EndTime      time.Time `json:"end_time"`
	Price        *float64  `json:"price"`
	CreatedAt    time.Time `json:"created_at"`
}

func (n Notification) Won() bool {
	return n.Price != nil
}

type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
}

type UserStatistics struct {
	ActiveAuctions int     `json:"active_auctions"`
	WonAuctions    int     `json:"won_auctions"`
	TotalBids      int     `json:"total_bids"`
	TotalSpent     float64 `json:"total_spent"`
}
