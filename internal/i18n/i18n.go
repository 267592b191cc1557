// Package i18n localizes API error messages.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Translator renders message ids for a locale, falling back to English.
type Translator struct {
	bundle *i18n.Bundle
}

// New loads the embedded message files.
func New() (*Translator, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, file := range []string{"locales/en.json", "locales/fr.json"} {
		if _, err := bundle.LoadMessageFileFS(locales, file); err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return &Translator{bundle: bundle}, nil
}

// Languages lists the tags with a message file.
func (t *Translator) Languages() []language.Tag {
	return t.bundle.LanguageTags()
}

// Message renders id in locale. Unknown ids come back unchanged.
func (t *Translator) Message(locale, id string, data map[string]any) string {
	if t == nil {
		return id
	}
	localizer := i18n.NewLocalizer(t.bundle, locale, language.English.String())
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil || msg == "" {
		return id
	}
	return msg
}
