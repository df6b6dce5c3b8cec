// Package reqparse implements the C4 request parser: recognizing Chat
// Completion and Responses API request shapes and extracting user content
// from them (spec §4.4).
package reqparse

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/cortexrouter/semantic-proxy/internal/proxyerr"
)

// Shape identifies which accepted request shape a body was parsed as.
type Shape string

const (
	ShapeChatCompletion Shape = "chat_completion"
	ShapeResponses      Shape = "responses"
)

// Parsed is the normalized result of parsing a request body: the shape it
// was recognized as, whether streaming was requested, and the raw decoded
// fields needed for content extraction.
type Parsed struct {
	Shape  Shape
	Model  string
	Stream bool

	// Chat Completion shape only.
	Messages []chatMessage

	// Responses API shape only.
	Input json.RawMessage
}

// contentPart is one element of a Chat Completion array-valued content
// field.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// envelope is used only to sniff which top-level keys are present, to
// decide between Chat Completion and Responses API shapes before doing
// shape-specific decoding.
type envelope struct {
	Model    string          `json:"model"`
	Messages json.RawMessage `json:"messages"`
	Input    json.RawMessage `json:"input"`
	Stream   bool            `json:"stream"`
}

// Parse recognizes body as either a Chat Completion or Responses API
// request. It returns BadRequest for malformed/incomplete payloads in a
// recognized shape, and UnsupportedPayload when neither shape's
// distinguishing key is present.
func Parse(body []byte) (Parsed, error) {
	if !utf8.Valid(body) {
		return Parsed{}, proxyerr.BadRequest("request body is not valid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(body))

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return Parsed{}, proxyerr.BadRequest("request body is not a JSON object: %v", err)
	}

	switch {
	case env.Messages != nil:
		return parseChatCompletion(env)
	case env.Input != nil:
		return parseResponses(env)
	default:
		return Parsed{}, proxyerr.UnsupportedPayload("request body has neither messages nor input")
	}
}

func parseChatCompletion(env envelope) (Parsed, error) {
	if env.Model == "" {
		return Parsed{}, proxyerr.BadRequest("chat completion request missing model")
	}

	var messages []chatMessage
	if err := json.Unmarshal(env.Messages, &messages); err != nil || len(messages) == 0 {
		return Parsed{}, proxyerr.BadRequest("chat completion request missing non-empty messages")
	}

	return Parsed{
		Shape:    ShapeChatCompletion,
		Model:    env.Model,
		Stream:   env.Stream,
		Messages: messages,
	}, nil
}

func parseResponses(env envelope) (Parsed, error) {
	if env.Model == "" {
		return Parsed{}, proxyerr.BadRequest("responses request missing model")
	}

	return Parsed{
		Shape:  ShapeResponses,
		Model:  env.Model,
		Stream: env.Stream,
		Input:  env.Input,
	}, nil
}

// ExtractedContent is the result of content extraction: the text belonging
// to the user turn (the signal pipeline's input) plus every other
// rendered/stringified fragment, preserved in order.
type ExtractedContent struct {
	UserContent    string
	NonUserContent []string
	HasUserContent bool
}

// Extract implements spec §4.4's user-content extraction rules, dispatching
// on p.Shape.
func Extract(p Parsed) (ExtractedContent, error) {
	switch p.Shape {
	case ShapeChatCompletion:
		return extractChatCompletion(p.Messages)
	case ShapeResponses:
		return extractResponses(p.Input)
	default:
		return ExtractedContent{}, proxyerr.UnsupportedPayload("unknown parsed shape")
	}
}

// extractChatCompletion renders every message's content, then takes the
// *last* role=="user" message's rendered text as user_content; everything
// else (in original order) becomes non_user_content.
func extractChatCompletion(messages []chatMessage) (ExtractedContent, error) {
	rendered := make([]string, len(messages))

	for i, m := range messages {
		text, err := renderContent(m.Content)
		if err != nil {
			return ExtractedContent{}, err
		}

		rendered[i] = text
	}

	lastUser := -1

	for i, m := range messages {
		if m.Role == "user" {
			lastUser = i
		}
	}

	out := ExtractedContent{}

	for i, text := range rendered {
		if i == lastUser {
			out.UserContent = text
			out.HasUserContent = true

			continue
		}

		out.NonUserContent = append(out.NonUserContent, text)
	}

	return out, nil
}

// renderContent handles both the string and array forms of a Chat
// Completion message's content field.
func renderContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", proxyerr.BadRequest("message content is neither a string nor an array of parts")
	}

	texts := make([]string, 0, len(parts))

	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}

	return strings.Join(texts, " "), nil
}

// extractResponses handles the Responses API's string-or-array input
// field: a plain string is the entire user_content; an array splits into
// string parts (joined by newline as user_content) and non-string parts
// (stringified into non_user_content).
func extractResponses(input json.RawMessage) (ExtractedContent, error) {
	if len(input) == 0 {
		return ExtractedContent{}, nil
	}

	var asString string
	if err := json.Unmarshal(input, &asString); err == nil {
		return ExtractedContent{UserContent: asString, HasUserContent: asString != ""}, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(input, &parts); err != nil {
		return ExtractedContent{}, proxyerr.BadRequest("input is neither a string nor an array")
	}

	var userParts []string

	var nonUser []string

	for _, part := range parts {
		var s string
		if err := json.Unmarshal(part, &s); err == nil {
			userParts = append(userParts, s)
			continue
		}

		nonUser = append(nonUser, string(part))
	}

	out := ExtractedContent{NonUserContent: nonUser}

	if len(userParts) > 0 {
		out.UserContent = strings.Join(userParts, "\n")
		out.HasUserContent = true
	}

	return out, nil
}
