package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tribe-quiz-service/internal/app"
	"tribe-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
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

type answerPayload struct {
	ScenarioID int          `json:"scenarioId"`
	OptionKey  string       `json:"optionKey"`
	Tribe      domain.Tribe `json:"tribe"`
}

type claimPayload struct {
	UserID string `json:"userId"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type messagePayload struct {
	Message string `json:"message"`
}

func errorMessage(text string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: messagePayload{Message: text}}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	opened, err := h.service.Open(ctx, sessionID, userID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	generated := sessionID == ""
	sessionID = opened.SessionID
	log := h.logger.With(zap.String("session", sessionID))

	events, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	defer h.service.Close(context.Background(), sessionID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				_ = conn.Close() // unblocks the read loop
				return
			}
		}
	}()

	if generated {
		send <- outboundMessage[any]{Type: "session", Payload: sessionPayload{SessionID: sessionID}}
	}

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				for _, msg := range eventMessages(ev) {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					}
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
		if !enqueue(send, writerDone, h.dispatch(ctx, sessionID, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// enqueue hands replies to the writer. It reports false once the writer has
// stopped, so the read loop never blocks on a dead connection.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msgs []outboundMessage[any]) bool {
	for _, msg := range msgs {
		select {
		case send <- msg:
		case <-writerDone:
			return false
		}
	}
	return true
}

// dispatch applies one inbound command. State changes reach the client
// through the session subscription, so only direct replies are returned.
func (h *WSHandler) dispatch(ctx context.Context, sessionID string, inbound inboundMessage) []outboundMessage[any] {
	var err error
	switch inbound.Type {
	case "start":
		_, err = h.service.Start(ctx, sessionID)
	case "skip":
		_, err = h.service.Skip(ctx, sessionID)
	case "reset":
		_, err = h.service.Reset(ctx, sessionID)
	case "answer":
		var payload answerPayload
		if jsonErr := json.Unmarshal(inbound.Payload, &payload); jsonErr != nil {
			return []outboundMessage[any]{errorMessage("invalid answer payload")}
		}
		if payload.OptionKey != "" {
			_, err = h.service.Answer(ctx, sessionID, payload.ScenarioID, payload.OptionKey)
		} else {
			_, err = h.service.RecordTribe(ctx, sessionID, payload.ScenarioID, payload.Tribe)
		}
	case "claim":
		var payload claimPayload
		if jsonErr := json.Unmarshal(inbound.Payload, &payload); jsonErr != nil {
			return []outboundMessage[any]{errorMessage("invalid claim payload")}
		}
		result, claimErr := h.service.Claim(ctx, sessionID, payload.UserID)
		if claimErr != nil {
			return []outboundMessage[any]{errorMessage(claimErr.Error())}
		}
		return []outboundMessage[any]{{Type: "result", Payload: result}}
	default:
		return []outboundMessage[any]{errorMessage("unsupported message type")}
	}
	if err != nil {
		return []outboundMessage[any]{errorMessage(err.Error())}
	}
	return nil
}

func eventMessages(ev domain.Event) []outboundMessage[any] {
	switch ev.Type {
	case domain.EventNotice:
		return []outboundMessage[any]{{Type: "notice", Payload: messagePayload{Message: ev.Notice}}}
	case domain.EventSnapshot:
		msgs := []outboundMessage[any]{
			{Type: "state", Payload: ev.Snapshot.Step},
			{Type: "progress", Payload: ev.Snapshot.Progress},
		}
		if ev.Snapshot.Result != nil {
			msgs = append(msgs, outboundMessage[any]{Type: "result", Payload: *ev.Snapshot.Result})
		}
		return msgs
	}
	return nil
}
