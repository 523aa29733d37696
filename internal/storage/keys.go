package storage

import "strings"

// Durable keys.
const (
	KeyCart              = "cart"
	KeyOrders            = "orders"
	KeyCurrentUser       = "currentUser"
	KeyRegisterResponses = "register_responses"
)

// Session keys.
const (
	KeyLastOrder         = "lastOrder"
	KeyProceedToCheckout = "proceedToCheckout"
)

// DefaultSessionID is used when the caller does not send a session id.
const DefaultSessionID = "default"

func durableKey(prefix, clientID, key string) string {
	return strings.Join([]string{prefix, clientID, key}, ":")
}

func sessionKey(prefix, clientID, sessionID, key string) string {
	return strings.Join([]string{prefix, clientID, "session", sessionID, key}, ":")
}
