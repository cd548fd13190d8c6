package sse

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/Strob0t/ssepush/internal/domain/event"
)

// lineBreaks splits payloads on every line terminator the SSE grammar accepts.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// heartbeatFrame is a comment block; EventSource clients ignore it.
var heartbeatFrame = []byte(": ping\n\n")

// Encode renders ev as one event-stream block terminated by a blank line.
// A content-type hint is written as a comment line, which clients ignore.
func Encode(ev event.Event) []byte {
	var b bytes.Buffer

	if ev.ContentType != "" {
		b.WriteString(": content-type ")
		b.WriteString(singleLine(ev.ContentType))
		b.WriteByte('\n')
	}
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(singleLine(ev.ID))
		b.WriteByte('\n')
	}
	if ev.Retry > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.FormatInt(ev.Retry.Milliseconds(), 10))
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(lineBreaks.Replace(ev.Data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	return b.Bytes()
}

// singleLine drops line terminators from a field value.
func singleLine(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
