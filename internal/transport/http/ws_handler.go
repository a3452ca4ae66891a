package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/broadcast"
	"quiz-room-service/internal/domain"
)

// Subscriber hands out a room's event stream; broadcast.Hub implements it.
type Subscriber interface {
	Subscribe(roomID string) (<-chan broadcast.Event, func())
}

type WSHandler struct {
	service  *app.RoomService
	events   Subscriber
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService, events Subscriber, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		events:  events,
		logger:  logger,
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

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type connectedPayload struct {
	Participant domain.Participant `json:"participant"`
	State       app.RoomState      `json:"state"`
}

// ServeWS upgrades a room connection. The caller joins the room on first
// connect (query `name` sets the display name) or resumes an existing seat,
// then receives every room event and may send ready, answer, finish and,
// as host, start and advance.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	user, err := userID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ctx := r.Context()

	participant, err := h.service.FindParticipant(ctx, roomID, user)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		participant, err = h.service.Join(ctx, roomID, user, r.URL.Query().Get("name"))
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Subscribe before touching presence so the reconnect event is not missed.
	updates, cancel := h.events.Subscribe(roomID)
	defer cancel()

	participant, err = h.service.Connect(ctx, participant.ID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.Leave(ctx, participant.ID)

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", zap.String("participant_id", participant.ID), zap.Error(err))
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}
	fail := func(err error) {
		reply(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}

	state, err := h.service.RoomState(ctx, roomID)
	if err != nil {
		fail(err)
	} else {
		reply(outboundMessage{Type: "connected", Payload: connectedPayload{Participant: participant, State: state}})
	}

	// Room events start flowing only after the connected message.
	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: ev.Name, Payload: ev.Payload}:
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
		switch inbound.Type {
		case "ready":
			p, err := h.service.SetReady(ctx, participant.ID)
			if err != nil {
				fail(err)
				continue
			}
			reply(outboundMessage{Type: "participant", Payload: p})
		case "answer":
			var payload answerRequest
			if len(inbound.Payload) == 0 || json.Unmarshal(inbound.Payload, &payload) != nil {
				fail(domain.Validation("invalid answer payload"))
				continue
			}
			res, err := h.service.SubmitAnswer(ctx, roomID, participant.ID, payload.submission())
			if err != nil {
				fail(err)
				continue
			}
			reply(outboundMessage{Type: "answer_result", Payload: res})
		case "finish":
			p, err := h.service.Finish(ctx, participant.ID)
			if err != nil {
				fail(err)
				continue
			}
			reply(outboundMessage{Type: "participant", Payload: p})
		case "start":
			if _, err := h.service.Start(ctx, roomID, user); err != nil {
				fail(err)
			}
		case "advance":
			if _, err := h.service.Advance(ctx, roomID, user); err != nil {
				fail(err)
			}
		default:
			fail(domain.Validation("unsupported message type"))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
