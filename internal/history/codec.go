// Package history converts between the flat role/content history the widget
// sends and the genai contents a chat session expects.
package history

import (
	"strings"

	"github.com/google/generative-ai-go/genai"

	"scholarchat-backend/internal/models"
)

// genai content roles.
const (
	genaiUser  = "user"
	genaiModel = "model"
)

// Decode turns wire messages into chat contents. Messages with any role other
// than "user" or "model" are dropped. Content is carried verbatim.
func Decode(wire []models.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(wire))
	for _, msg := range wire {
		switch msg.Role {
		case models.RoleUser:
			out = append(out, UserContent(msg.Content))
		case models.RoleModel:
			out = append(out, ModelContent(msg.Content))
		}
	}
	return out
}

// Encode is the inverse of Decode. Function calls, function responses and
// other non-text parts are not part of the wire history; a content with no
// text parts is dropped entirely.
func Encode(contents []*genai.Content) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(contents))
	for _, c := range contents {
		if c == nil {
			continue
		}
		var role models.Role
		switch c.Role {
		case genaiUser:
			role = models.RoleUser
		case genaiModel:
			role = models.RoleModel
		default:
			continue
		}

		text, ok := textOf(c)
		if !ok {
			continue
		}
		out = append(out, models.ChatMessage{Role: role, Content: text})
	}
	return out
}

func UserContent(text string) *genai.Content {
	return &genai.Content{Role: genaiUser, Parts: []genai.Part{genai.Text(text)}}
}

func ModelContent(text string) *genai.Content {
	return &genai.Content{Role: genaiModel, Parts: []genai.Part{genai.Text(text)}}
}

func textOf(c *genai.Content) (string, bool) {
	var b strings.Builder
	found := false
	for _, part := range c.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
			found = true
		}
	}
	return b.String(), found
}
