package dispatcher

import (
	"fmt"
	"net/url"

	"github.com/vietddude/relaychat/internal/core/domain"
)

// Payload is the JSON body posted to the relay.
type Payload struct {
	Message       string              `json:"message"`
	ChatInput     string              `json:"chatInput"`
	SessionID     string              `json:"sessionId"`
	ThreadID      string              `json:"threadId,omitempty"`
	Context       *domain.PageContext `json:"context,omitempty"`
	CustomContext map[string]any      `json:"customContext,omitempty"`
	Attachments   []domain.Attachment `json:"attachments,omitempty"`
	ExtraInputs   map[string]any      `json:"extraInputs,omitempty"`

	// Auth: either WidgetKey, or WidgetID together with LicenseKey.
	WidgetKey  string `json:"widgetKey,omitempty"`
	WidgetID   string `json:"widgetId,omitempty"`
	LicenseKey string `json:"licenseKey,omitempty"`
}

// Response is the relay's non-streaming reply. Older relays answer with "output"
// instead of "message".
type Response struct {
	Message   string `json:"message"`
	Output    string `json:"output"`
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId"`
	StreamURL string `json:"streamUrl"`
}

// Reply returns the reply text.
func (r Response) Reply() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Output
}

func (d *Dispatcher) buildPayload(
	text, sessionID, threadID string,
	attachments []domain.Attachment,
) Payload {
	p := Payload{
		Message:       text,
		ChatInput:     text,
		SessionID:     sessionID,
		ThreadID:      threadID,
		Context:       d.cfg.Page,
		CustomContext: d.cfg.CustomContext,
		Attachments:   attachments,
		ExtraInputs:   d.cfg.ExtraInputs,
	}
	if d.cfg.WidgetKey != "" {
		p.WidgetKey = d.cfg.WidgetKey
	} else {
		p.WidgetID = d.cfg.WidgetID
		p.LicenseKey = d.cfg.LicenseKey
	}
	return p
}

// NewPageContext describes the hosting page from its URL and title.
func NewPageContext(rawURL, title string) (*domain.PageContext, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	params := make(map[string]string)
	for k, v := range u.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return &domain.PageContext{
		PageURL:     rawURL,
		PagePath:    path,
		PageTitle:   title,
		QueryParams: params,
		Domain:      u.Hostname(),
	}, nil
}
