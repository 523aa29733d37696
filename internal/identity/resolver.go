// Package identity decides which orders belong to which user. A user is
// either a registered account or a guest known only by the email used at
// checkout.
package identity

import (
	"sort"
	"strconv"
	"time"

	"github.com/fjod/stonehub/internal/domain"
)

// Matches reports whether the order belongs to the user. Any one of these
// is enough:
//   - the order was placed under the user's id
//   - the order carries the user's email
//   - the order is a guest order shipped to the user's email
//
// Empty values never match.
func Matches(order domain.Order, user domain.User) bool {
	if order.UserID != "" && user.ID != "" && order.UserID == user.ID {
		return true
	}
	if user.Email == "" {
		return false
	}
	if order.UserEmail != "" && order.UserEmail == user.Email {
		return true
	}
	return order.IsGuest() && order.ShippingInfo.Email == user.Email
}

// OrdersForUser returns copies of the user's orders, newest first. Orders
// with the same date keep reverse append order.
func OrdersForUser(orders []domain.Order, user domain.User) []domain.Order {
	matched := make([]domain.Order, 0)
	for i := len(orders) - 1; i >= 0; i-- {
		if Matches(orders[i], user) {
			matched = append(matched, orders[i].Clone())
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OrderDate.After(matched[j].OrderDate)
	})
	return matched
}

// ResolveOwner returns the user id and email to stamp on a new order. A nil
// user checks out as a guest.
func ResolveOwner(user *domain.User, now time.Time) (userID, userEmail string) {
	if user == nil || (user.ID == "" && user.Email == "") {
		return GuestID(now), ""
	}
	userID = user.ID
	if userID == "" {
		userID = user.Email
	}
	return userID, user.Email
}

func GuestID(now time.Time) string {
	return domain.GuestPrefix + strconv.FormatInt(now.UnixMilli(), 10)
}
