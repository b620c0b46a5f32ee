package http

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"unicode/utf8"

	"penny/internal/assistant"
	"penny/internal/core"
	applog "penny/internal/log"
	"penny/internal/session"
)

// maxMessageChars bounds one chat message.
const maxMessageChars = 2000

var (
	errEmptyMessage = errors.New("type a message first")
	errLongMessage  = errors.New("that message is too long, please shorten it")
)

type chatMessage struct {
	FromUser bool
	HTML     template.HTML
}

type chatData struct {
	navData
	Personas    []string
	Persona     string
	Messages    []chatMessage
	Suggestions []string
	Ended       bool
	Fallback    bool
	Error       string
}

// handleChat shows the conversation (GET) or answers one message (POST).
// A posted persona switches the persona before the message is answered.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	st, isNew := s.sessions.Load(r)
	if r.Method == http.MethodGet {
		if isNew {
			s.sessions.Save(w, st)
		}
		s.render(w, r, http.StatusOK, "chat.html", "chat_panel", s.chatView(r.Context(), st))
		return
	}

	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	s.selectPersona(st, formValue(r, "persona"))

	message := formValue(r, "message")
	if message == "" && r.Form.Has("persona") {
		// persona switch only
		s.sessions.Save(w, st)
		s.render(w, r, http.StatusOK, "chat.html", "chat_panel", s.chatView(r.Context(), st))
		return
	}
	if err := validateMessage(message); err != nil {
		data := s.chatView(r.Context(), st)
		data.Error = err.Error()
		s.render(w, r, http.StatusUnprocessableEntity, "chat.html", "chat_panel", data)
		return
	}

	result := s.chatTurn(r.Context(), st, message)
	s.sessions.Save(w, st)

	data := s.chatView(r.Context(), st)
	data.Fallback = result.Err != nil
	b := NewHTMXResponse().TriggerFormReset()
	if st.Ended {
		b.TriggerChatEnded()
	}
	s.respond(w, r, b, "chat.html", "chat_panel", data)
}

// handleChatReset starts a new conversation.
func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	st, _ := s.sessions.Load(r)
	st.ResetChat()
	s.sessions.Save(w, st)
	s.render(w, r, http.StatusOK, "chat.html", "chat_panel", s.chatView(r.Context(), st))
}

type chatAPIResponse struct {
	Response    string   `json:"response"`
	Quit        bool     `json:"quit"`
	Name        string   `json:"name"`
	Suggestions []string `json:"suggestions"`
	Fallback    bool     `json:"fallback"`
}

// handleChatAPI is the JSON flavour of POST /chat for scripts and tests.
// It accepts {"message": "...", "persona": "..."} or the same as a form.
func (s *Server) handleChatAPI(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	vals, err := readBodyValues(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "request body is not valid JSON or form data")
		return
	}

	st, _ := s.sessions.Load(r)
	s.selectPersona(st, sanitizeInput(vals.Get("persona")))
	message := sanitizeInput(vals.Get("message"))
	if err := validateMessage(message); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result := s.chatTurn(r.Context(), st, message)
	s.sessions.Save(w, st)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chatAPIResponse{
		Response:    result.Reply.Response,
		Quit:        result.Reply.Quit,
		Name:        st.Name,
		Suggestions: st.Suggestions,
		Fallback:    result.Err != nil,
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func validateMessage(m string) error {
	switch {
	case m == "":
		return errEmptyMessage
	case utf8.RuneCountInString(m) > maxMessageChars:
		return errLongMessage
	}
	return nil
}

func (s *Server) selectPersona(st *session.State, name string) {
	if name == "" {
		return
	}
	if _, ok := s.assistant.Catalog().Lookup(name); ok {
		st.Persona = name
	}
}

// chatTurn answers one message and records the exchange on st. A finished
// conversation is cleared before the next message so the farewell stays
// visible until then.
func (s *Server) chatTurn(ctx context.Context, st *session.State, message string) assistant.ChatResult {
	if st.Ended {
		st.ResetChat()
	}
	req := assistant.ChatRequest{
		Persona:      st.Persona,
		History:      st.History,
		PreviousName: st.Name,
		Message:      message,
	}
	if st.LoggedIn() {
		req.Budget, req.Goals = s.loadContext(ctx, st.UserID)
	}

	result := s.assistant.Chat(ctx, req)
	st.AppendExchange(message, result.Reply)
	s.chatTurns.Add(1)

	applog.FromContext(ctx).InfoContext(ctx, "Chat turn answered",
		applog.FieldSessionID, st.ID,
		applog.FieldPersona, st.Persona,
		applog.FieldReplyChars, utf8.RuneCountInString(result.Reply.Response),
		"fallback", result.Err != nil,
		"quit", result.Reply.Quit)
	return result
}

// loadContext fetches what the assistant should know about the user. Load
// failures are logged and the turn continues without that part.
func (s *Server) loadContext(ctx context.Context, userID string) (*core.BudgetRecord, []core.GoalRecord) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	var budget *core.BudgetRecord
	rec, ok, err := s.store.GetBudget(ctx, userID)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Budget unavailable for chat context", applog.FieldError, err)
	} else if ok {
		budget = &rec
	}
	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Goals unavailable for chat context", applog.FieldError, err)
		goals = nil
	}
	return budget, goals
}

func (s *Server) chatView(ctx context.Context, st *session.State) chatData {
	data := chatData{
		navData:     s.nav(ctx, st, "Chat", "chat"),
		Persona:     string(s.assistant.Catalog().Resolve(st.Persona).Name),
		Suggestions: st.Suggestions,
		Ended:       st.Ended,
	}
	for _, p := range s.assistant.Catalog().Names() {
		data.Personas = append(data.Personas, string(p))
	}
	for _, m := range st.History {
		msg := chatMessage{FromUser: m.Role == assistant.RoleUser}
		if msg.FromUser {
			msg.HTML = template.HTML("<p>" + template.HTMLEscapeString(m.Content) + "</p>")
		} else {
			msg.HTML = s.markdown.HTML(m.Content)
		}
		data.Messages = append(data.Messages, msg)
	}
	return data
}
