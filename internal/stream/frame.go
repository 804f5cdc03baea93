package stream

import (
	"encoding/json"
	"errors"
	"time"

	"auction-client/internal/domain"
)

// Two frame shapes arrive on the push channel: the notification payload
// itself, and a wrapper {user_id, notification}. An absent target user id
// implies the current user.

type wireAuction struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	ImageURL string    `json:"image_url"`
	EndTime  time.Time `json:"end_time"`
}

type wireNotification struct {
	ID        string      `json:"id"`
	Auction   wireAuction `json:"auction"`
	Price     *float64    `json:"price"`
	CreatedAt time.Time   `json:"created_at"`
}

func (w wireNotification) toDomain() domain.Notification {
	return domain.Notification{
		ID:           w.ID,
		AuctionID:    w.Auction.ID,
		AuctionTitle: w.Auction.Title,
		ImageURL:     w.Auction.ImageURL,
		EndTime:      w.Auction.EndTime,
		Price:        w.Price,
		CreatedAt:    w.CreatedAt,
	}
}

var errUnknownFrame = errors.New("frame matches no known shape")

// decodeFrame returns the notification and the explicit target user id
// ("" when the frame implies the current user).
func decodeFrame(data []byte) (wireNotification, string, error) {
	var wrapped struct {
		UserID       string            `json:"user_id"`
		Notification *wireNotification `json:"notification"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return wireNotification{}, "", err
	}
	if wrapped.Notification != nil {
		return *wrapped.Notification, wrapped.UserID, nil
	}

	var direct wireNotification
	if err := json.Unmarshal(data, &direct); err != nil {
		return wireNotification{}, "", err
	}
	if direct.ID == "" && direct.Auction.ID == "" {
		return wireNotification{}, "", errUnknownFrame
	}
	return direct, "", nil
}
