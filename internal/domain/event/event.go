// Package event defines the unit pushed to a connected client.
package event

import "time"

// ContentTypeJSON is the content-type hint carried by broadcast events.
const ContentTypeJSON = "application/json"

// Event is a single pushed message. Transports decide how the fields are
// framed on the wire; the core only fills them in.
type Event struct {
	// ID is an optional event identifier.
	ID string `json:"id,omitempty"`
	// Data is the message payload, sent verbatim.
	Data string `json:"data"`
	// ContentType is a payload hint. Empty means plain text.
	ContentType string `json:"content_type,omitempty"`
	// Retry is the reconnect interval the client should use. Zero omits it.
	Retry time.Duration `json:"-"`
}

// Text returns a plain-text event with no content-type hint.
func Text(data string) Event {
	return Event{Data: data}
}

// JSON returns an event hinted as application/json.
func JSON(data string) Event {
	return Event{Data: data, ContentType: ContentTypeJSON}
}

// Handshake returns the first event written to a fresh connection: a
// reconnect hint plus a confirmation payload.
func Handshake(retry time.Duration, message string) Event {
	return Event{Data: message, Retry: retry}
}

// IsJSON reports whether the event carries the JSON hint.
func (e Event) IsJSON() bool {
	return e.ContentType == ContentTypeJSON
}
