package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"wellness-chatbot/internal/core"
	"wellness-chatbot/internal/llm"
	"wellness-chatbot/pkg"
)

type stubLLM struct {
	reply string
	err   error
}

func (s stubLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return s.reply, s.err
}

// slowLLM takes a while to answer and records how many messages each call
// received.
type slowLLM struct {
	delay   time.Duration
	started chan struct{}

	mu    sync.Mutex
	sizes []int
}

func (s *slowLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	s.sizes = append(s.sizes, len(messages))
	n := len(s.sizes)
	s.mu.Unlock()
	s.started <- struct{}{}
	time.Sleep(s.delay)
	return fmt.Sprintf("reply %d", n), nil
}

func newTestServer(t *testing.T, client llm.Client) (*Server, *core.MemoryStore) {
	t.Helper()
	store := core.NewMemoryStore()
	srv, err := NewServer(store, core.NewChatService(client, nil))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, store
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d", rec.Code)
	}
	var resp pkg.CreateSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StartURL != "/sessions/"+resp.SessionID {
		t.Fatalf("unexpected start url: %s", resp.StartURL)
	}
	return resp.SessionID
}

func postForm(srv *Server, id, content string) *httptest.ResponseRecorder {
	form := url.Values{"content": {content}}
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/messages", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestPostMessageReturnsFragment(t *testing.T) {
	srv, store := newTestServer(t, stubLLM{reply: "Let's look at your iron <levels>."})
	id := createSession(t, srv)

	rec := postForm(srv, id, "should I get a blood test?")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{
		`<div class="message user">should I get a blood test?</div>`,
		`Let&#39;s look at your iron &lt;levels&gt;.`,
		`href="https://your-telehealth-platform.com/labs"`,
		`comprehensive lab panel`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("fragment missing %q:\n%s", want, body)
		}
	}

	sess, err := store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sess.Transcript) != 2 {
		t.Fatalf("expected 2 stored entries, got %d", len(sess.Transcript))
	}
}

func TestPostMessageJSON(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{err: errors.New("rate limited")})
	id := createSession(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/messages", strings.NewReader(`{"content":"I have chronic pain"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp pkg.ChatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Reply, "rate limited") {
		t.Fatalf("reply should carry the error, got %q", resp.Reply)
	}
	if resp.Suggestion == nil || resp.Suggestion.Label != "Schedule a consult" {
		t.Fatalf("expected consult suggestion, got %+v", resp.Suggestion)
	}
}

func TestPostMessageRejectsEmptyContent(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{reply: "unused"})
	id := createSession(t, srv)

	if rec := postForm(srv, id, "   "); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{reply: "unused"})

	if rec := postForm(srv, "missing", "hello"); rec.Code != http.StatusNotFound {
		t.Fatalf("post status = %d, want 404", rec.Code)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("page status = %d location = %q, want 303 to /", rec.Code, rec.Header().Get("Location"))
	}
}

func TestUnknownSessionPostsLeaveNoState(t *testing.T) {
	srv, store := newTestServer(t, stubLLM{reply: "unused"})

	for i := 0; i < 1000; i++ {
		if rec := postForm(srv, fmt.Sprintf("bogus-%d", i), "hello"); rec.Code != http.StatusNotFound {
			t.Fatalf("post %d status = %d, want 404", i, rec.Code)
		}
	}
	if n := store.Len(); n != 0 {
		t.Fatalf("unknown session ids left %d sessions behind", n)
	}
}

func TestConcurrentTurnsOnOneSessionRunInOrder(t *testing.T) {
	client := &slowLLM{delay: 50 * time.Millisecond, started: make(chan struct{}, 2)}
	srv, store := newTestServer(t, client)
	id := createSession(t, srv)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	post := func(i int, content string) {
		defer wg.Done()
		codes[i] = postForm(srv, id, content).Code
	}
	wg.Add(2)
	go post(0, "first question")
	<-client.started
	go post(1, "second question")
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Fatalf("post %d status = %d", i, code)
		}
	}
	// persona + question, then persona + first exchange + question
	if len(client.sizes) != 2 || client.sizes[0] != 2 || client.sizes[1] != 4 {
		t.Fatalf("second turn did not see the first exchange: message counts %v", client.sizes)
	}

	sess, err := store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []struct {
		speaker pkg.Speaker
		text    string
	}{
		{pkg.SpeakerUser, "first question"},
		{pkg.SpeakerAssistant, "reply 1"},
		{pkg.SpeakerUser, "second question"},
		{pkg.SpeakerAssistant, "reply 2"},
	}
	if len(sess.Transcript) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), sess.Transcript)
	}
	for i, w := range want {
		e := sess.Transcript[i]
		if e.Speaker != w.speaker || e.Text != w.text {
			t.Fatalf("entry %d = %s %q, want %s %q", i, e.Speaker, e.Text, w.speaker, w.text)
		}
	}
}

func TestChatPageRendersTranscriptWithSuggestions(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{reply: "Magnesium may help."})
	id := createSession(t, srv)
	postForm(srv, id, "which supplement helps sleep?")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`hx-post="/api/sessions/` + id + `/messages"`,
		"which supplement helps sleep?",
		"Magnesium may help.",
		"evidence-based supplements",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestEndSession(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{reply: "bye"})
	id := createSession(t, srv)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec := postForm(srv, id, "hello"); rec.Code != http.StatusNotFound {
		t.Fatalf("post after end status = %d, want 404", rec.Code)
	}
}

func TestEndSessionBeacon(t *testing.T) {
	srv, store := newTestServer(t, stubLLM{reply: "bye"})
	id := createSession(t, srv)

	page := httptest.NewRecorder()
	srv.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
	if want := `navigator.sendBeacon("/api/sessions/` + id + `/end")`; !strings.Contains(page.Body.String(), want) {
		t.Fatalf("page does not end the session on close, missing %q", want)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/end", strings.NewReader("")))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if n := store.Len(); n != 0 {
		t.Fatalf("expected no sessions after end, got %d", n)
	}
}

func TestStartRedirectsToNewSession(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/sessions/") {
		t.Fatalf("unexpected redirect: %s", loc)
	}
}

func TestTranscriptBubbles(t *testing.T) {
	transcript := []pkg.TranscriptEntry{
		{Speaker: pkg.SpeakerUser, Text: "hello"},
		{Speaker: pkg.SpeakerAssistant, Text: "hi!"},
		{Speaker: pkg.SpeakerUser, Text: "my back pain is bad"},
		{Speaker: pkg.SpeakerAssistant, Text: "sorry to hear"},
	}
	bubbles := transcriptBubbles(transcript, core.DefaultRules(""))
	if len(bubbles) != 4 {
		t.Fatalf("expected 4 bubbles, got %d", len(bubbles))
	}
	if bubbles[1].Suggestion != nil {
		t.Fatalf("first reply should have no suggestion, got %+v", bubbles[1].Suggestion)
	}
	if bubbles[3].Suggestion == nil || !strings.HasSuffix(bubbles[3].Suggestion.URL, "/consult") {
		t.Fatalf("expected consult suggestion, got %+v", bubbles[3].Suggestion)
	}
}
