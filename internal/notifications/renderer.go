package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var (
	renderChannels = []ChannelType{ChannelTypeWebhook, ChannelTypeWebSocket}
	renderMessages = []MessageType{MessageTypeOutage, MessageTypeRecovery, MessageTypeChange}
)

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":       titleCase,
		"statusName":  statusName,
		"statusEmoji": statusEmoji,
		"formatTime":  formatTime,
	}

	r := &Renderer{templates: make(map[string]*template.Template)}

	for _, channel := range renderChannels {
		for _, msg := range renderMessages {
			name := templateName(channel, msg)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}

			r.templates[name] = tmpl
		}
	}

	return r, nil
}

// Render renders a payload for the channel type and returns subject and body.
func (r *Renderer) Render(channelType ChannelType, payload Payload) (subject, body string, err error) {
	name := templateName(channelType, payload.MessageType)
	tmpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("%w: template %s", ErrUnknownFormat, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", name, err)
	}

	return renderSubject(payload), strings.TrimSpace(buf.String()), nil
}

func templateName(channel ChannelType, msg MessageType) string {
	return fmt.Sprintf("%s_%s", channel, msg)
}

func renderSubject(payload Payload) string {
	var prefix string
	switch payload.MessageType {
	case MessageTypeOutage:
		prefix = "Outage"
	case MessageTypeRecovery:
		prefix = "Recovered"
	default:
		prefix = "Status"
	}
	return fmt.Sprintf("[%s] %s is %s", prefix, payload.ServiceLabel(), statusName(payload.Change.To))
}

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

// statusName turns partial_outage into "Partial Outage".
func statusName(status domain.ServiceStatus) string {
	return titleCase(strings.ReplaceAll(status.String(), "_", " "))
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func statusEmoji(status domain.ServiceStatus) string {
	switch status {
	case domain.ServiceStatusOperational:
		return "🟢"
	case domain.ServiceStatusDegraded:
		return "🟡"
	case domain.ServiceStatusPartialOutage:
		return "🟠"
	case domain.ServiceStatusMajorOutage:
		return "🔴"
	default:
		return "⚪"
	}
}
