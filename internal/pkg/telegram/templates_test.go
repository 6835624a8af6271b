package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
)

func TestLocale(t *testing.T) {
	assert.Equal(t, "en", Locale("en"))
	assert.Equal(t, "en", Locale("EN-gb"))
	assert.Equal(t, "es", Locale("es_MX"))
	assert.Equal(t, DefaultLocale, Locale("de"))
	assert.Equal(t, DefaultLocale, Locale(""))
}

func TestRender(t *testing.T) {
	out := Render(messaging.Notification{
		Template: messaging.TemplateReminder,
		Locale:   "en",
		Data:     map[string]string{"plan": "<monthly>", "days_left": "3"},
	})
	assert.Contains(t, out, "<b>&lt;monthly&gt;</b>")
	assert.Contains(t, out, "in 3 day(s), on .")
	assert.NotContains(t, out, "{")

	assert.Contains(t, Render(messaging.Notification{Template: messaging.TemplateRevoked}), "revocada")
	assert.Equal(t, "unknown", Render(messaging.Notification{Template: "unknown"}))
}

func TestCatalogComplete(t *testing.T) {
	for locale, templates := range catalog {
		assert.Len(t, templates, len(catalog[DefaultLocale]), locale)
	}
}
