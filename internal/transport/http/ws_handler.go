package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler streams a book's leaderboard and accepts check/commit messages.
type WSHandler struct {
	service  LeaderboardService
	rest     *Handler
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service LeaderboardService, logger *zap.Logger) *WSHandler {
	h := NewHandler(service, logger)
	return &WSHandler{
		service: service,
		rest:    h,
		logger:  h.logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and subscribes them to one book.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	bookID := r.URL.Query().Get("bookId")
	if bookID == "" {
		http.Error(w, "missing bookId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context(), bookID)
	if err != nil {
		_, message := statusFor(err)
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: message}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debugw("ws write error", "book_id", bookID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		send <- h.dispatch(r, bookID, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, bookID string, inbound inboundMessage) outboundMessage[any] {
	fail := func(message string) outboundMessage[any] {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
	}

	switch inbound.Type {
	case "check":
		var req checkRequest
		if err := json.Unmarshal(inbound.Payload, &req); err != nil {
			return fail("invalid check payload")
		}
		if err := h.rest.validator.Struct(req); err != nil {
			return fail(validationMessage(err))
		}
		candidate, err := req.entry(bookID)
		if err != nil {
			_, message := statusFor(err)
			return fail(message)
		}
		result, err := h.service.CheckQualification(r.Context(), candidate)
		if err != nil {
			_, message := statusFor(err)
			return fail(message)
		}
		return outboundMessage[any]{Type: "checkResult", Payload: result}
	case "commit":
		var req commitRequest
		if err := json.Unmarshal(inbound.Payload, &req); err != nil {
			return fail("invalid commit payload")
		}
		if err := h.rest.validator.Struct(req); err != nil {
			return fail(validationMessage(err))
		}
		candidate, err := req.entry(bookID)
		if err != nil {
			_, message := statusFor(err)
			return fail(message)
		}
		result, err := h.service.Commit(r.Context(), candidate)
		if err != nil {
			_, message := statusFor(err)
			return fail(message)
		}
		return outboundMessage[any]{Type: "commitResult", Payload: toCommitResponse(result)}
	default:
		return fail("unsupported message type")
	}
}
