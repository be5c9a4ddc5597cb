package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Order ids deterministically encode the paying identity so the webhook can
// recover the owner without a lookup table: "user:<account-id>:<unix-ms>".
// Encode/decode live together so the format cannot drift apart.

const orderIDPrefix = "user"

// EncodeOrderID builds an order id owned by userID, unique per millisecond.
func EncodeOrderID(userID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", orderIDPrefix, userID, at.UnixMilli())
}

// DecodeOrderID recovers the owning account id from an order id. The
// timestamp segment is validated but not returned; callers only need the
// owner.
func DecodeOrderID(orderID string) (string, error) {
	parts := strings.SplitN(orderID, ":", 3)
	if len(parts) != 3 || parts[0] != orderIDPrefix {
		return "", fmt.Errorf("%w: order_id %q", ErrMalformed, orderID)
	}
	userID := parts[1]
	if userID == "" {
		return "", fmt.Errorf("%w: order_id missing owner", ErrMalformed)
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return "", fmt.Errorf("%w: order_id timestamp %q", ErrMalformed, parts[2])
	}
	return userID, nil
}
