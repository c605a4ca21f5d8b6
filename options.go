package bindauth

import (
	"log/slog"

	"golang.org/x/text/language"
)

// Option represents a functional option for configuring a BindAuthenticator.
type Option func(*BindAuthenticator)

// WithDNPatterns sets the static DN patterns tried before any user search,
// in the given order. Each pattern contains the {username} placeholder and is
// relative to the base DN, e.g. "uid={username},ou=people".
func WithDNPatterns(patterns ...string) Option {
	return func(a *BindAuthenticator) {
		a.patterns = patterns
	}
}

// WithUserSearch configures the search fallback consulted once after every
// DN pattern has been rejected.
func WithUserSearch(search UserSearch) Option {
	return func(a *BindAuthenticator) {
		a.search = search
	}
}

// WithUserAttributes sets the attributes fetched from the authenticated
// entry after a successful bind. Defaults to all user attributes.
func WithUserAttributes(attributes ...string) Option {
	return func(a *BindAuthenticator) {
		if len(attributes) > 0 {
			a.attributes = attributes
		}
	}
}

// WithBindFailureHook overrides the per-candidate rejection hook. The hook is
// diagnostic only; returning normally is its only contract, and the candidate
// sequence proceeds identically whatever it does.
func WithBindFailureHook(hook BindFailureHook) Option {
	return func(a *BindAuthenticator) {
		if hook != nil {
			a.hook = hook
		}
	}
}

// WithLanguage selects the language the uniform failure message is rendered
// in. Defaults to English.
func WithLanguage(tag language.Tag) Option {
	return func(a *BindAuthenticator) {
		a.messages = NewMessageCatalog(tag)
	}
}

// WithLogger sets a custom structured logger. If not provided, slog.Default()
// is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *BindAuthenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}
