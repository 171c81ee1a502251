package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tribe-quiz-service/internal/app"
	"tribe-quiz-service/internal/catalog"
	"tribe-quiz-service/internal/domain"
	"tribe-quiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.QuizService, *memory.ProfileRepository) {
	t.Helper()
	scenarios := memory.NewScenarioRepository(memory.NewStaticScenarioLoader(catalog.Default()), time.Minute)
	profiles := memory.NewProfileRepository()
	service := app.NewQuizService(memory.NewSessionStore(), scenarios, memory.NewKVStore(), profiles)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service, nil).ServeWS)
	mux.Handle("/scenarios", NewScenariosHandler(service, nil))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service, profiles
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, service, profiles := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws?userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, payload := readNext(conn, t, "session")
	if id, _ := payload["sessionId"].(string); id == "" {
		t.Fatalf("expected generated session id, got %v", payload)
	}
	_, state := readNext(conn, t, "state")
	if state["phase"] != string(domain.PhaseNotStarted) {
		t.Fatalf("expected not_started, got %v", state)
	}
	readNext(conn, t, "progress")

	for id := 1; id <= 5; id++ {
		key := "a"
		if id == 2 {
			key = "c"
		}
		msg := map[string]any{
			"type":    "answer",
			"payload": map[string]any{"scenarioId": id, "optionKey": key},
		}
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write answer: %v", err)
		}
	}

	var result map[string]any
	noticeSeen := false
	for i := 0; i < 40 && (result == nil || !noticeSeen); i++ {
		typ, p := readNext(conn, t, "")
		switch typ {
		case "result":
			result = p
		case "notice":
			noticeSeen = true
		case "error":
			t.Fatalf("unexpected error message %v", p)
		}
	}
	if result == nil || result["tribe"] != string(domain.TribeOwl) {
		t.Fatalf("expected owl result, got %v", result)
	}
	if !noticeSeen {
		t.Fatalf("expected save notice")
	}

	service.Wait()
	if saved, ok := profiles.Get("u1"); !ok || saved.Tribe != domain.TribeOwl {
		t.Fatalf("expected owl saved to profile, got %+v", saved)
	}
}

func TestWebSocketRejectsUnknownOption(t *testing.T) {
	server, _, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[len("http"):]+"/ws?sessionId=s-1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readNext(conn, t, "state")
	readNext(conn, t, "progress")

	msg := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"scenarioId": 1, "optionKey": "z"},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	_, p := readNext(conn, t, "error")
	if p["message"] != domain.ErrOptionNotFound.Error() {
		t.Fatalf("expected option error, got %v", p)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "error")
}

func TestScenariosEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/scenarios")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var set domain.ScenarioSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if set.Version != catalog.DefaultVersion || len(set.Scenarios) != 5 {
		t.Fatalf("unexpected scenario set %+v", set)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func TestEnqueueStopsWhenWriterIsGone(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	send <- errorMessage("backlog")
	writerDone := make(chan struct{})
	close(writerDone)

	done := make(chan bool, 1)
	go func() {
		done <- enqueue(send, writerDone, []outboundMessage[any]{errorMessage("one"), errorMessage("two")})
	}()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected enqueue to report the writer as gone")
		}
	case <-time.After(time.Second):
		t.Fatalf("enqueue blocked on a full buffer with no writer")
	}

	if !enqueue(make(chan outboundMessage[any], 2), make(chan struct{}), []outboundMessage[any]{errorMessage("a")}) {
		t.Fatalf("expected enqueue to succeed with room in the buffer")
	}
}
