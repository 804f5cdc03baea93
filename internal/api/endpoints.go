package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"auction-client/internal/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type bidRequest struct {
	Amount float64 `json:"amount"`
}

// AuthGateway

func (c *Client) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	var result domain.AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, loginRequest{Email: email, Password: password}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Register(ctx context.Context, profile domain.Profile, password string) (*domain.AuthResult, error) {
	var result domain.AuthResult
	req := registerRequest{Email: profile.Email, Name: profile.Name, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// AuctionGateway

func (c *Client) GetAuction(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error) {
	var auction domain.AuctionSnapshot
	if err := c.do(ctx, http.MethodGet, "/auctions/"+url.PathEscape(auctionID), nil, nil, &auction); err != nil {
		return nil, err
	}
	return &auction, nil
}

func (c *Client) ListAuctions(ctx context.Context, filter string, page, limit int) (*domain.AuctionPage, error) {
	query := url.Values{}
	query.Set("filter", filter)
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var result domain.AuctionPage
	if err := c.do(ctx, http.MethodGet, "/auctions", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CreateAuction(ctx context.Context, draft domain.AuctionDraft) (*domain.AuctionSnapshot, error) {
	var auction domain.AuctionSnapshot
	if err := c.do(ctx, http.MethodPost, "/auctions", nil, draft, &auction); err != nil {
		return nil, err
	}
	return &auction, nil
}

func (c *Client) UpdateAuction(ctx context.Context, auctionID string, draft domain.AuctionDraft) (*domain.AuctionSnapshot, error) {
	var auction domain.AuctionSnapshot
	if err := c.do(ctx, http.MethodPut, "/auctions/"+url.PathEscape(auctionID), nil, draft, &auction); err != nil {
		return nil, err
	}
	return &auction, nil
}

func (c *Client) DeleteAuction(ctx context.Context, auctionID string) error {
	return c.do(ctx, http.MethodDelete, "/auctions/"+url.PathEscape(auctionID), nil, nil, nil)
}

func (c *Client) PlaceBid(ctx context.Context, auctionID string, amount float64) (*domain.AuctionSnapshot, error) {
	var auction domain.AuctionSnapshot
	path := "/auctions/" + url.PathEscape(auctionID) + "/bids"
	if err := c.do(ctx, http.MethodPost, path, nil, bidRequest{Amount: amount}, &auction); err != nil {
		return nil, err
	}
	return &auction, nil
}

// NotificationGateway

func (c *Client) Notifications(ctx context.Context, userID string) (*domain.NotificationList, error) {
	var result domain.NotificationList
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ClearNotifications(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/notifications", nil, nil, nil)
}

// UserGateway

func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UserStatistics(ctx context.Context) (*domain.UserStatistics, error) {
	var stats domain.UserStatistics
	if err := c.do(ctx, http.MethodGet, "/users/me/statistics", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
