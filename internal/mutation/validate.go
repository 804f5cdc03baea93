package mutation

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"auction-client/internal/domain"
)

// MinIncrement returns the smallest allowed step above the current price.
// Steps grow with the price so late bidding on expensive items stays meaningful.
func MinIncrement(currentPrice float64) float64 {
	switch {
	case currentPrice < 100:
		return 1
	case currentPrice < 500:
		return 5
	default:
		return 10
	}
}

// MinimumBid is the lowest amount accepted for an auction at the given price.
func MinimumBid(currentPrice float64) float64 {
	return currentPrice + MinIncrement(currentPrice)
}

func hasAtMostTwoDecimals(amount float64) bool {
	scaled := amount * 100
	return math.Abs(scaled-math.Round(scaled)) <= 1e-9
}

func validateBid(amount, currentPrice float64) error {
	fields := map[string]string{}
	switch {
	case math.IsNaN(amount) || math.IsInf(amount, 0):
		fields["amount"] = "amount must be a valid number"
	case amount <= 0:
		fields["amount"] = "amount must be positive"
	case !hasAtMostTwoDecimals(amount):
		fields["amount"] = "amount cannot have more than two decimal places"
	case amount < MinimumBid(currentPrice):
		fields["amount"] = fmt.Sprintf("bid must be at least %.2f", MinimumBid(currentPrice))
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func validateDraft(draft domain.AuctionDraft) error {
	fields := map[string]string{}

	title := strings.TrimSpace(draft.Title)
	if n := utf8.RuneCountInString(title); n < 3 {
		fields["title"] = "title must be at least 3 characters"
	} else if n > 100 {
		fields["title"] = "title cannot exceed 100 characters"
	}

	if utf8.RuneCountInString(draft.Description) > 2000 {
		fields["description"] = "description cannot exceed 2000 characters"
	}

	switch {
	case math.IsNaN(draft.StartingPrice) || math.IsInf(draft.StartingPrice, 0):
		fields["starting_price"] = "starting price must be a valid number"
	case draft.StartingPrice <= 0:
		fields["starting_price"] = "starting price must be positive"
	case !hasAtMostTwoDecimals(draft.StartingPrice):
		fields["starting_price"] = "starting price cannot have more than two decimal places"
	}

	now := time.Now()
	if draft.EndTime.IsZero() || !draft.EndTime.After(now) {
		fields["end_time"] = "end time must be in the future"
	} else if !draft.StartTime.IsZero() && !draft.EndTime.After(draft.StartTime) {
		fields["end_time"] = "end time must be after start time"
	}

	if draft.ImageURL != "" {
		u, err := url.Parse(draft.ImageURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			fields["image_url"] = "image url must be an absolute http or https url"
		}
	}

	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}
