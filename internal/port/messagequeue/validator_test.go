package messagequeue

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodePushUser(t *testing.T) {
	got, err := Decode(SubjectPushUser, []byte(`{"user_id":"u1","message":"hello"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := got.(*PushUserPayload)
	if !ok {
		t.Fatalf("expected *PushUserPayload, got %T", got)
	}
	if p.UserID != "u1" || p.Message != "hello" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestDecodePushBatch(t *testing.T) {
	got, err := Decode(SubjectPushBatch, []byte(`{"user_ids":["u1","u2","u1"],"message":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := got.(*PushBatchPayload)
	if len(p.UserIDs) != 3 {
		t.Errorf("expected duplicates to be kept, got %v", p.UserIDs)
	}
}

func TestDecodePushBroadcastEmptyMessage(t *testing.T) {
	got, err := Decode(SubjectPushBroadcast, []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := got.(*PushBroadcastPayload); p.Message != "" {
		t.Errorf("expected empty message, got %q", p.Message)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		errMsg  string
	}{
		{"invalid json", SubjectPushUser, `{not valid`, "invalid JSON"},
		{"missing user", SubjectPushUser, `{"message":"x"}`, "user_id is required"},
		{"wrong type", SubjectPushUser, `{"user_id":42}`, "schema validation failed"},
		{"empty batch", SubjectPushBatch, `{"user_ids":[],"message":"x"}`, "user_ids is required"},
		{"batch wrong type", SubjectPushBatch, `{"user_ids":"u1"}`, "schema validation failed"},
		{"unknown subject", "push.unknown", `{}`, "unknown subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.subject, []byte(tt.data))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected %q in error, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestDecodeUnknownSubjectSentinel(t *testing.T) {
	_, err := Decode("tasks.created", []byte(`{}`))
	if !errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("expected ErrUnknownSubject, got %v", err)
	}
}
