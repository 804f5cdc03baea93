package cache

import (
	"strconv"
	"strings"
)

// Key is an ordered tuple of semantic identifiers. Collaborators must build
// keys through the constructors below and invalidate by namespace prefix,
// never with ad hoc keys.
type Key []string

// ID is the exact identity form, used as a map key. The separator cannot
// appear in identifiers coming off the wire, so joined forms collide only
// when the tuples are equal.
func (k Key) ID() string {
	return strings.Join(k, "\x1f")
}

func (k Key) String() string {
	return strings.Join(k, "/")
}

func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func KeyUser() Key {
	return Key{"user"}
}

func KeyAuction(auctionID string) Key {
	return Key{"auction", auctionID}
}

func KeyAuctions(filter string, page, limit int) Key {
	return Key{"auctions", filter, strconv.Itoa(page), strconv.Itoa(limit)}
}

// KeyAuctionsPrefix matches every cached auction list page.
func KeyAuctionsPrefix() Key {
	return Key{"auctions"}
}

func KeyNotifications(userID string) Key {
	return Key{"notifications", userID}
}

func KeyUserStatistics() Key {
	return Key{"user-statistics"}
}
