package domain

import (
	"context"
	"io"
	"time"
)

// File is an attachment chosen by the user. Open is called once per send.
type File struct {
	Name string
	Type string // MIME type
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Attachment is the wire form of a File.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"` // base64, standard encoding
	Size int64  `json:"size"`
}

// SendOptions is the input of a single dispatch.
type SendOptions struct {
	Text        string
	Attachments []File
	Timeout     time.Duration // zero means the dispatcher default
}

// SendResult is the outcome of a single dispatch. Error is nil on success.
type SendResult struct {
	Success   bool
	MessageID string
	Reply     string
	ThreadID  string
	StreamURL string
	Error     *NetworkError
}

// PageContext describes the page hosting the widget.
type PageContext struct {
	PageURL     string            `json:"pageUrl"`
	PagePath    string            `json:"pagePath"`
	PageTitle   string            `json:"pageTitle"`
	QueryParams map[string]string `json:"queryParams"`
	Domain      string            `json:"domain"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry in the conversation shown to the user.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
