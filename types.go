package bindauth

import (
	"fmt"
	"strings"
)

// Credentials is a username/password pair submitted for one authentication
// attempt. The password is never logged; log statements only ever see the
// masked username.
type Credentials struct {
	Username string
	Password string
}

// validate checks the structural shape of the credentials. A failure here is
// a programming error in the caller and is reported as ErrMalformedCredentials,
// never as an authentication failure.
func (c Credentials) validate() error {
	if c.Username == "" {
		return fmt.Errorf("%w: username is empty", ErrMalformedCredentials)
	}
	if strings.ContainsRune(c.Username, 0) || strings.ContainsRune(c.Password, 0) {
		return fmt.Errorf("%w: NUL byte in credentials", ErrMalformedCredentials)
	}
	return nil
}

// DirectoryRecord is the result of a successful bind: the authenticated
// entry's identity and the attribute set fetched for it. The caller owns the
// record after Authenticate returns.
type DirectoryRecord struct {
	// DN is the fully-qualified distinguished name the bind succeeded with.
	DN string
	// RelativeDN is the DN relative to the authenticator's base DN, the form
	// used for the post-bind attribute fetch.
	RelativeDN string
	// Attributes maps attribute names to their values.
	Attributes map[string][]string
}

// GetAttributeValue returns the first value of the named attribute, or the
// empty string if the attribute is absent.
func (r *DirectoryRecord) GetAttributeValue(name string) string {
	values := r.Attributes[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// GetAttributeValues returns all values of the named attribute.
func (r *DirectoryRecord) GetAttributeValues(name string) []string {
	return r.Attributes[name]
}
