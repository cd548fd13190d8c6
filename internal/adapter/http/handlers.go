package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Strob0t/ssepush/internal/adapter/sse"
	"github.com/Strob0t/ssepush/internal/adapter/ws"
	"github.com/Strob0t/ssepush/internal/config"
	"github.com/Strob0t/ssepush/internal/domain/connection"
	"github.com/Strob0t/ssepush/internal/logger"
	"github.com/Strob0t/ssepush/internal/port/broadcast"
	"github.com/Strob0t/ssepush/internal/port/messagequeue"
	"github.com/Strob0t/ssepush/internal/port/stream"
	"github.com/Strob0t/ssepush/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Registry   *service.Registry
	Pusher     broadcast.Pusher
	Stream     config.Stream
	PushConfig config.Push
	// Queue is the trigger subscriber, nil when NATS is disabled.
	Queue messagequeue.Subscriber
}

// pushRequest is the body of POST /api/v1/push. An empty UserIDs broadcasts.
type pushRequest struct {
	UserIDs []string `json:"user_ids"`
	Message string   `json:"message"`
}

type pushResponse struct {
	Status     string `json:"status"`
	Mode       string `json:"mode"`
	Recipients int    `json:"recipients,omitempty"`
}

// ConnectSSE handles GET /sse/connect/{userId}. The request stays open for
// as long as the stream is registered.
func (h *Handlers) ConnectSSE(w http.ResponseWriter, r *http.Request) {
	userID := urlParam(r, "userId")
	if err := connection.ValidateUserID(userID); err != nil {
		writeDomainError(w, err)
		return
	}

	s, err := sse.NewStream(w, sse.Options{
		WriteTimeout: h.Stream.WriteTimeout,
		Heartbeat:    h.Stream.Heartbeat,
	})
	if err != nil {
		writeInternalError(w, err)
		return
	}
	h.serve(logger.WithUserID(r.Context(), userID), userID, s, s.Wait)
}

// ConnectWS handles GET /ws/connect/{userId}.
func (h *Handlers) ConnectWS(w http.ResponseWriter, r *http.Request) {
	userID := urlParam(r, "userId")
	if err := connection.ValidateUserID(userID); err != nil {
		writeDomainError(w, err)
		return
	}

	s, err := ws.Accept(w, r, ws.Options{
		WriteTimeout: h.Stream.WriteTimeout,
		PingInterval: h.Stream.Heartbeat,
	})
	if err != nil {
		// Accept has already written the failure response.
		slog.WarnContext(r.Context(), "websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	h.serve(logger.WithUserID(r.Context(), userID), userID, s, s.Wait)
}

// serve registers s, blocks until the transport reports the end of the
// stream and releases the connection with that reason.
func (h *Handlers) serve(ctx context.Context, userID string, s stream.Stream, wait func(context.Context) connection.CloseReason) {
	conn, err := h.Registry.Connect(ctx, userID, s)
	if err != nil {
		// Connect closed the stream and logged the failure; headers are
		// already on the wire so there is nothing left to report.
		return
	}
	reason := wait(ctx)
	h.Registry.Release(context.WithoutCancel(ctx), conn, reason)
}

// CloseUser handles GET /sse/close/{userId}.
func (h *Handlers) CloseUser(w http.ResponseWriter, r *http.Request) {
	userID := urlParam(r, "userId")
	removed := h.Registry.RemoveUser(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// ListUsers handles GET /sse/list.
func (h *Handlers) ListUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.IDs())
}

// CountUsers handles GET /sse/count.
func (h *Handlers) CountUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.UserCount())
}

// ListConnections handles GET /api/v1/connections.
func (h *Handlers) ListConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.Connections())
}

// PushAll handles GET /sse/push/{message}.
func (h *Handlers) PushAll(w http.ResponseWriter, r *http.Request) {
	h.Pusher.Broadcast(r.Context(), urlParam(r, "message"))
	writeJSON(w, http.StatusOK, pushResponse{Status: "pushed", Mode: "broadcast"})
}

// PushUser handles GET /sse/push/{userId}/{message}.
func (h *Handlers) PushUser(w http.ResponseWriter, r *http.Request) {
	h.Pusher.SendMessage(r.Context(), urlParam(r, "userId"), urlParam(r, "message"))
	writeJSON(w, http.StatusOK, pushResponse{Status: "pushed", Mode: "user", Recipients: 1})
}

// Push handles POST /api/v1/push.
func (h *Handlers) Push(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[pushRequest](w, r, h.PushConfig.MaxBodyBytes)
	if !ok {
		return
	}

	if len(req.UserIDs) == 0 {
		h.Pusher.Broadcast(r.Context(), req.Message)
		writeJSON(w, http.StatusOK, pushResponse{Status: "pushed", Mode: "broadcast"})
		return
	}
	h.Pusher.BatchSendMessage(r.Context(), req.UserIDs, req.Message)
	writeJSON(w, http.StatusOK, pushResponse{Status: "pushed", Mode: "batch", Recipients: len(req.UserIDs)})
}

type healthStatus struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	NATS        string `json:"nats"`
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := healthStatus{
		Status:      "ok",
		Connections: h.Registry.UserCount(),
		NATS:        "disabled",
	}
	if h.Queue != nil {
		status.NATS = "connected"
		if !h.Queue.IsConnected() {
			status.NATS = "disconnected"
		}
	}
	writeJSON(w, http.StatusOK, status)
}
