package http

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"

	"wellness-chatbot/internal/core"
	"wellness-chatbot/pkg"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to http.ListenAndServe.
type Server struct {
	Store     core.SessionStore
	Chat      *core.ChatService
	Templates *template.Template
}

// NewServer constructs a Server with the embedded HTML templates.
func NewServer(store core.SessionStore, chat *core.ChatService) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		Store:     store,
		Chat:      chat,
		Templates: tmpl,
	}, nil
}

// ServeHTTP dispatches incoming requests based on the URL path.  Minimal
// routing logic is implemented here to keep dependencies light.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/healthz" && r.Method == http.MethodGet:
		w.Write([]byte("ok"))
	// Browser entry point: start a session and open it
	case path == "/" && r.Method == http.MethodGet:
		s.handleStart(w, r)
	// Create a new session: POST /api/sessions
	case path == "/api/sessions" && r.Method == http.MethodPost:
		s.handleCreateSession(w, r)
	// Post a message: POST /api/sessions/{id}/messages
	case strings.HasPrefix(path, "/api/sessions/") && strings.HasSuffix(path, "/messages") && r.Method == http.MethodPost:
		parts := strings.Split(path, "/")
		if len(parts) != 5 {
			http.NotFound(w, r)
			return
		}
		s.handlePostMessage(w, r, parts[3])
	// End a session from a page being closed: POST /api/sessions/{id}/end
	case strings.HasPrefix(path, "/api/sessions/") && strings.HasSuffix(path, "/end") && r.Method == http.MethodPost:
		parts := strings.Split(path, "/")
		if len(parts) != 5 {
			http.NotFound(w, r)
			return
		}
		s.handleEndSession(w, r, parts[3])
	// End a session: DELETE /api/sessions/{id}
	case strings.HasPrefix(path, "/api/sessions/") && r.Method == http.MethodDelete:
		parts := strings.Split(path, "/")
		if len(parts) != 4 {
			http.NotFound(w, r)
			return
		}
		s.handleEndSession(w, r, parts[3])
	// Chat page: GET /sessions/{id}
	case strings.HasPrefix(path, "/sessions/") && r.Method == http.MethodGet:
		parts := strings.Split(path, "/")
		if len(parts) != 3 {
			http.NotFound(w, r)
			return
		}
		s.handleChatPage(w, r, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Store.Create(r.Context())
	if err != nil {
		log.Println("failed to create session:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/sessions/"+sess.ID, http.StatusSeeOther)
}

// handleCreateSession creates a new anonymous session and returns its ID and
// the URL of the chat page.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Store.Create(r.Context())
	if err != nil {
		log.Println("failed to create session:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, pkg.CreateSessionResponse{
		SessionID: sess.ID,
		StartURL:  "/sessions/" + sess.ID,
	})
}

// handleChatPage renders the chat interface with the existing transcript.
// Ended or expired sessions send the browser back to start a new one.
func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.Store.Load(r.Context(), sessionID)
	if errors.Is(err, core.ErrSessionNotFound) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	data := struct {
		SessionID string
		Bubbles   []bubble
	}{
		SessionID: sess.ID,
		Bubbles:   transcriptBubbles(sess.Transcript, s.Chat.Rules),
	}
	if err := s.Templates.ExecuteTemplate(w, "chat.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handlePostMessage runs one turn inside Store.Update, so a second message to
// the same session waits for the first exchange to be saved.  HTMX callers
// get an HTML fragment with the new messages; JSON callers get a
// pkg.ChatResponse.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()
	content, err := readContent(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(content) == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	var res *core.TurnResult
	err = s.Store.Update(ctx, sessionID, func(sess *pkg.Session) error {
		res = s.Chat.Turn(ctx, sess, content)
		return nil
	})
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, pkg.ChatResponse{Reply: res.Reply(), Suggestion: res.Suggestion})
		return
	}
	bubbles := []bubble{
		{Speaker: res.User.Speaker, Text: res.User.Text},
		{Speaker: res.Assistant.Speaker, Text: res.Assistant.Text, Suggestion: res.Suggestion},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.Templates.ExecuteTemplate(w, "turn.html", bubbles); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.Store.End(r.Context(), sessionID); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrSessionNotFound) {
		http.NotFound(w, r)
		return
	}
	log.Println("session store error:", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// bubble is one rendered chat message.
type bubble struct {
	Speaker    pkg.Speaker
	Text       string
	Suggestion *pkg.Link
}

// transcriptBubbles rebuilds the rendered log.  Suggestions are not stored,
// so each assistant reply gets the link selected from it and the user
// message before it.
func transcriptBubbles(transcript []pkg.TranscriptEntry, rules []core.Rule) []bubble {
	out := make([]bubble, 0, len(transcript))
	lastInput := ""
	for _, e := range transcript {
		b := bubble{Speaker: e.Speaker, Text: e.Text}
		switch e.Speaker {
		case pkg.SpeakerUser:
			lastInput = e.Text
		case pkg.SpeakerAssistant:
			if link, ok := core.Select(rules, lastInput, e.Text); ok {
				b.Suggestion = &link
			}
		}
		out = append(out, b)
	}
	return out
}

func readContent(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req pkg.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.Content, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("content"), nil
}

func wantsJSON(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("failed to encode response:", err)
	}
}
