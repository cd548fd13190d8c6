// Package broadcast defines the port for pushing messages to connected clients.
package broadcast

import "context"

// Pusher delivers text messages to connected users. Delivery is best-effort:
// none of the methods report per-recipient failures.
type Pusher interface {
	// SendMessage pushes message to a single user. Unknown users are ignored.
	SendMessage(ctx context.Context, userID, message string)

	// BatchSendMessage pushes message once per entry in userIDs.
	BatchSendMessage(ctx context.Context, userIDs []string, message string)

	// Broadcast pushes message to every connected user.
	Broadcast(ctx context.Context, message string)
}
