package telegram

import (
	"html"
	"regexp"
	"strings"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
)

// DefaultLocale is used when the user's language is unknown or unsupported.
const DefaultLocale = "es"

var placeholder = regexp.MustCompile(`\{[a-z_]+\}`)

var catalog = map[string]map[messaging.Template]string{
	"es": {
		messaging.TemplateReminder:          "⏰ Tu membresía <b>{plan}</b> vence en {days_left} día(s), el {expires_at}. Renueva para mantener el acceso.",
		messaging.TemplateGrace:             "⚠️ Tu membresía venció el {expires_at}. Tienes un periodo de gracia antes de perder el acceso. Renueva ahora.",
		messaging.TemplateExpired:           "❌ Tu membresía ha expirado y el acceso a los canales fue retirado. Puedes renovarla en cualquier momento.",
		messaging.TemplateRevoked:           "🚫 Tu membresía fue revocada y ya no tienes acceso a los canales.",
		messaging.TemplateActivated:         "✅ ¡Pago recibido! Tu membresía <b>{plan}</b> está activa hasta el {expires_at}.",
		messaging.TemplatePaymentRejected:   "❗ No pudimos procesar tu pago {payment_id}: {reason}. Contacta con soporte si crees que es un error.",
		messaging.TemplateAdminPaymentAlert: "💳 Pago {payment_id} de {user_id}: {outcome}\nPlan: {plan}\nImporte: {amount} {currency}\n{reason}",
	},
	"en": {
		messaging.TemplateReminder:          "⏰ Your <b>{plan}</b> membership expires in {days_left} day(s), on {expires_at}. Renew to keep access.",
		messaging.TemplateGrace:             "⚠️ Your membership expired on {expires_at}. You are in a grace period before access is removed. Renew now.",
		messaging.TemplateExpired:           "❌ Your membership has expired and channel access was removed. You can renew at any time.",
		messaging.TemplateRevoked:           "🚫 Your membership was revoked and you no longer have channel access.",
		messaging.TemplateActivated:         "✅ Payment received! Your <b>{plan}</b> membership is active until {expires_at}.",
		messaging.TemplatePaymentRejected:   "❗ We could not process your payment {payment_id}: {reason}. Contact support if you think this is a mistake.",
		messaging.TemplateAdminPaymentAlert: "💳 Payment {payment_id} from {user_id}: {outcome}\nPlan: {plan}\nAmount: {amount} {currency}\n{reason}",
	},
}

// Locale normalizes a Telegram language code ("en-US") to a supported locale.
func Locale(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if _, ok := catalog[code]; ok {
		return code
	}
	return DefaultLocale
}

// Render fills the notification's template. Values are HTML-escaped and
// unknown placeholders are left empty.
func Render(n messaging.Notification) string {
	text, ok := catalog[Locale(n.Locale)][n.Template]
	if !ok {
		text, ok = catalog[DefaultLocale][n.Template]
	}
	if !ok {
		return html.EscapeString(string(n.Template))
	}
	pairs := make([]string, 0, len(n.Data)*2)
	for k, v := range n.Data {
		pairs = append(pairs, "{"+k+"}", html.EscapeString(v))
	}
	out := strings.NewReplacer(pairs...).Replace(text)
	return placeholder.ReplaceAllString(out, "")
}
