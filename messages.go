package bindauth

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// badCredentialsKey is the catalog key for the single user-visible
// authentication-failure message. It is deliberately generic: the rendered
// message must not vary with the candidate DN, the number of candidates tried
// or whether the user exists.
const badCredentialsKey = "Bad credentials"

func init() {
	for _, entry := range []struct {
		tag language.Tag
		msg string
	}{
		{language.English, "Bad credentials"},
		{language.German, "Ungültige Anmeldedaten"},
		{language.French, "Identifiants incorrects"},
		{language.Spanish, "Credenciales incorrectas"},
	} {
		if err := message.SetString(entry.tag, badCredentialsKey, entry.msg); err != nil {
			panic(err)
		}
	}
}

// MessageCatalog renders the uniform failure message in a configured
// language. It is consulted once per failed authentication, never
// per-candidate.
type MessageCatalog struct {
	printer *message.Printer
}

// NewMessageCatalog returns a catalog for the given language. Languages
// without a registered translation fall back to English.
func NewMessageCatalog(tag language.Tag) *MessageCatalog {
	return &MessageCatalog{printer: message.NewPrinter(tag)}
}

// BadCredentials returns the localized uniform authentication-failure
// message.
func (c *MessageCatalog) BadCredentials() string {
	return c.printer.Sprintf(badCredentialsKey)
}
