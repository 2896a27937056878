package core

import (
	"context"
	"errors"
	"log"
	"time"

	"wellness-chatbot/internal/llm"
	"wellness-chatbot/internal/medline"
	"wellness-chatbot/pkg"
)

// ErrLookupDisabled is the absence reason used when no lookup client is set.
var ErrLookupDisabled = errors.New("health lookup disabled")

// ChatService runs conversation turns.  For each user message it fetches a
// MedlinePlus snippet, asks the LLM for a reply using the recent transcript,
// and picks a contextual suggestion link.
type ChatService struct {
	LLM    llm.Client
	Lookup medline.Looker
	Rules  []Rule
	Now    func() time.Time
}

// NewChatService constructs a ChatService with the default suggestion rules.
// A nil lookup disables snippet enrichment.
func NewChatService(client llm.Client, lookup medline.Looker) *ChatService {
	return &ChatService{
		LLM:    client,
		Lookup: lookup,
		Rules:  DefaultRules(""),
	}
}

// TurnResult describes one completed turn.  Lookup and Completion carry the
// outcome of the two outbound calls so callers can see which of them failed.
type TurnResult struct {
	User       pkg.TranscriptEntry
	Assistant  pkg.TranscriptEntry
	Suggestion *pkg.Link
	Lookup     medline.Result
	Completion llm.Completion
}

// Reply is the text shown to the user for this turn.
func (r *TurnResult) Reply() string { return r.Assistant.Text }

// Turn answers input within sess.  The lookup runs before the completion
// request is built.  Both outbound failures degrade: a failed lookup drops
// the snippet and a failed completion becomes an apology that includes the
// error.  The user and assistant entries are appended to sess.Transcript.
func (s *ChatService) Turn(ctx context.Context, sess *pkg.Session, input string) *TurnResult {
	user := NewEntry(pkg.SpeakerUser, input, s.now())

	lookup := medline.Absent(ErrLookupDisabled)
	if s.Lookup != nil {
		lookup = s.Lookup.Lookup(ctx, input)
	}

	msgs := Assemble(sess.Transcript, input, lookup)
	completion := llm.Complete(ctx, s.LLM, msgs)
	reply := completion.Text
	if !completion.OK() {
		reply = ApologyPrefix + completion.Err.Error()
	}

	res := &TurnResult{
		User:       user,
		Assistant:  NewEntry(pkg.SpeakerAssistant, reply, s.now()),
		Lookup:     lookup,
		Completion: completion,
	}
	if link, ok := Select(s.Rules, input, reply); ok {
		res.Suggestion = &link
	}
	sess.Transcript = append(sess.Transcript, res.User, res.Assistant)

	if lookup.Reason != nil && !errors.Is(lookup.Reason, ErrLookupDisabled) {
		log.Printf("session %s: no medline snippet: %v", sess.ID, lookup.Reason)
	}
	if completion.Err != nil {
		log.Printf("session %s: completion failed: %v", sess.ID, completion.Err)
	}
	log.Printf("session %s: turn %s answered (snippet=%t, history=%d)", sess.ID, res.Assistant.ID, lookup.Found, len(msgs)-2)
	return res
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
