package messagequeue

// PushUserPayload is the schema for push.user messages.
type PushUserPayload struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// PushBatchPayload is the schema for push.batch messages.
type PushBatchPayload struct {
	UserIDs []string `json:"user_ids"`
	Message string   `json:"message"`
}

// PushBroadcastPayload is the schema for push.broadcast messages.
type PushBroadcastPayload struct {
	Message string `json:"message"`
}
