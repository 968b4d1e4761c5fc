package api

import (
	"encoding/json"
	"net/http"
)

// Message is one user-visible flash entry carried on a response envelope.
type Message struct {
	Message string `json:"message"`
	Variant string `json:"variant"`
	Title   string `json:"title"`
}

// Envelope is the uniform response wrapper every endpoint returns.
type Envelope struct {
	OK       bool      `json:"ok"`
	Data     any       `json:"data"`
	Messages []Message `json:"messages"`
}

// Flash variants mirror the front end's alert styles.
const (
	VariantSuccess = "success"
	VariantDanger  = "danger"
	VariantWarning = "warning"
)

var variantTitles = map[string]string{
	VariantSuccess: "Success",
	VariantDanger:  "Error",
	VariantWarning: "Warning",
}

func newMessage(text, variant string) Message {
	title, ok := variantTitles[variant]
	if !ok {
		title = "Message"
	}
	return Message{Message: text, Variant: variant, Title: title}
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	if env.Messages == nil {
		env.Messages = []Message{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func writeFailure(w http.ResponseWriter, status int, text string) {
	writeEnvelope(w, status, Envelope{
		OK:       false,
		Messages: []Message{newMessage(text, VariantDanger)},
	})
}
