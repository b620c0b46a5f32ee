// Package http serves the Penny web UI: account pages, chat, budget, goals
// and graphs. Pages are server-rendered; forms post through htmx and get a
// partial back.
//
// This file builds htmx responses: HX-Trigger events, redirects and the
// standard error fragments.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Client-side events sent through HX-Trigger. The page scripts listen for
// these names.
const (
	EventBudgetSaved  = "budget:saved"
	EventGoalsChanged = "goals:changed"
	EventChatEnded    = "chat:ended"
	EventFormReset    = "form:reset"
	EventNotify       = "show-notification"
)

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// Notification is the payload of EventNotify. Duration is in milliseconds.
type Notification struct {
	Type     NotificationType `json:"type"`
	Message  string           `json:"message"`
	Duration int              `json:"duration"`
}

type goalRef struct {
	ID string `json:"id"`
}

// HTMXResponseBuilder collects status, headers, events and body, and emits
// them all at once on Write.
type HTMXResponseBuilder struct {
	status int
	header http.Header
	events map[string]any
	body   string
}

// NewHTMXResponse starts a 200 response with no body.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status: http.StatusOK,
		header: http.Header{},
		events: map[string]any{},
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

// Trigger queues a client event. A later call with the same name wins.
func (b *HTMXResponseBuilder) Trigger(name string, detail any) *HTMXResponseBuilder {
	if detail == nil {
		detail = struct{}{}
	}
	b.events[name] = detail
	return b
}

// TriggerBudgetSaved makes the graphs and goal capacity panels reload.
func (b *HTMXResponseBuilder) TriggerBudgetSaved() *HTMXResponseBuilder {
	return b.Trigger(EventBudgetSaved, nil)
}

func (b *HTMXResponseBuilder) TriggerGoalsChanged(goalID string) *HTMXResponseBuilder {
	return b.Trigger(EventGoalsChanged, goalRef{ID: goalID})
}

// TriggerChatEnded fires when the assistant closed the conversation.
func (b *HTMXResponseBuilder) TriggerChatEnded() *HTMXResponseBuilder {
	return b.Trigger(EventChatEnded, nil)
}

func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger(EventFormReset, nil)
}

func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(EventNotify, Notification{Type: kind, Message: message, Duration: durationMs})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// TriggerErrorNotification stays on screen longer than a success toast.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.header.Set(name, value)
	return b
}

// Redirect asks htmx to navigate the whole page to url.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// BodyHTML sets an HTML fragment as the body.
func (b *HTMXResponseBuilder) BodyHTML(fragment string) *HTMXResponseBuilder {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.body = fragment
	return b
}

func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	if len(b.events) > 0 {
		if raw, err := json.Marshal(b.events); err == nil {
			dst.Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if b.body != "" {
		_, _ = w.Write([]byte(b.body))
	}
}

// ErrorResponse renders message, escaped, inside the error fragment.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(status).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// MethodNotAllowedError answers 405 with the Allow header set.
func MethodNotAllowedError(allowed string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowed)
}
