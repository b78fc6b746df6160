package notification

import (
	"fmt"
	"sort"
	"strings"
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldPassword FieldType = "password"
	FieldNumber   FieldType = "number"
	FieldBool     FieldType = "bool"
	FieldSelect   FieldType = "select"
	FieldURL      FieldType = "url"
	FieldMap      FieldType = "map"
)

// Field is one key of a channel's `settings` table.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Help     string    `json:"help,omitempty"`
	Default  any       `json:"default,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// Schema documents and validates the settings of one notifier type.
type Schema struct {
	Type        NotifierType `json:"type"`
	Description string       `json:"description"`
	Fields      []Field      `json:"fields"`
}

var schemas = map[NotifierType]Schema{
	NotifierTelegram: {
		Type:        NotifierTelegram,
		Description: "Post limiter reports to a Telegram chat through a bot",
		Fields: []Field{
			{Name: "botToken", Label: "Bot token", Type: FieldPassword, Required: true, Help: "Token issued by @BotFather"},
			{Name: "chatId", Label: "Chat ID", Type: FieldText, Required: true},
			{Name: "topicId", Label: "Topic ID", Type: FieldNumber, Help: "Forum topic in a supergroup"},
			{Name: "silent", Label: "Silent", Type: FieldBool},
			{Name: "apiBase", Label: "API base", Type: FieldURL, Help: "Local Bot API server"},
		},
	},
	NotifierWebhook: {
		Type:        NotifierWebhook,
		Description: "POST limiter reports as JSON to an HTTP endpoint",
		Fields: []Field{
			{Name: "url", Label: "URL", Type: FieldURL, Required: true},
			{Name: "method", Label: "Method", Type: FieldSelect, Default: "POST", Options: []string{"POST", "PUT"}},
			{Name: "username", Label: "Username", Type: FieldText},
			{Name: "password", Label: "Password", Type: FieldPassword},
			{Name: "headers", Label: "Headers", Type: FieldMap},
		},
	},
	NotifierMock: {
		Type:        NotifierMock,
		Description: "Log reports and keep them in memory",
		Fields:      []Field{},
	},
}

// SchemaFor returns the schema of a notifier type.
func SchemaFor(t NotifierType) (Schema, bool) {
	s, ok := schemas[t]
	return s, ok
}

// Schemas returns every schema ordered by type.
func Schemas() []Schema {
	out := make([]Schema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Validate reports required fields missing from settings. Keys match
// case-insensitively since viper lowercases them.
func (s Schema) Validate(settings map[string]any) error {
	present := make(map[string]bool, len(settings))
	for k, v := range settings {
		if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
			continue
		}
		if v != nil {
			present[strings.ToLower(k)] = true
		}
	}

	var missing []string
	for _, f := range s.Fields {
		if f.Required && !present[strings.ToLower(f.Name)] {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %s", ErrInvalidSettings, s.Type, strings.Join(missing, ", "))
	}
	return nil
}
