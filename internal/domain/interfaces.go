package domain

import (
	"context"
)

// Gateway interfaces (the request-response API, consumed not owned)
type AuthGateway interface {
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, profile Profile, password string) (*AuthResult, error)
	Logout(ctx context.Context) error
}

type AuctionGateway interface {
	GetAuction(ctx context.Context, auctionID string) (*AuctionSnapshot, error)
	ListAuctions(ctx context.Context, filter string, page, limit int) (*AuctionPage, error)
	CreateAuction(ctx context.Context, draft AuctionDraft) (*AuctionSnapshot, error)
	UpdateAuction(ctx context.Context, auctionID string, draft AuctionDraft) (*AuctionSnapshot, error)
	DeleteAuction(ctx context.Context, auctionID string) error
	PlaceBid(ctx context.Context, auctionID string, amount float64) (*AuctionSnapshot, error)
}

type NotificationGateway interface {
	Notifications(ctx context.Context, userID string) (*NotificationList, error)
	ClearNotifications(ctx context.Context) error
}

type UserGateway interface {
	CurrentUser(ctx context.Context) (*User, error)
	UserStatistics(ctx context.Context) (*UserStatistics, error)
}

// Credential persistence
type TokenStore interface {
	Save(token string) error
	Load() (string, error)
	Clear() error
}

type TokenSource interface {
	Token() string
}

// TokenFunc adapts a closure to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Push channel
type StreamConn interface {
	ReadFrame() ([]byte, error)
	Close() error
}

type StreamDialer interface {
	Dial(ctx context.Context, endpoint, token string) (StreamConn, error)
}

// User-facing alerts. Alert carries a deep link target, Toast is a plain
// failure message.
type Alerter interface {
	Alert(title, message, auctionID string)
	Toast(message string)
}
