package bindauth

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// usernamePlaceholder is the token replaced by the (escaped) username in DN
// patterns and search filters.
const usernamePlaceholder = "{username}"

// qualifyDN prepends the base DN to a relative DN. A DN that already carries
// the base suffix (as search results do) is returned unchanged.
func qualifyDN(relativeDN, baseDN string) string {
	if baseDN == "" {
		return relativeDN
	}
	if relativeDN == "" {
		return baseDN
	}
	if hasBaseSuffix(relativeDN, baseDN) {
		return relativeDN
	}
	return relativeDN + "," + baseDN
}

// relativizeDN strips the base DN suffix from a fully-qualified DN, yielding
// the form used for attribute fetches on a scoped connection. A DN outside
// the base is returned unchanged.
func relativizeDN(dn, baseDN string) string {
	if baseDN == "" || !hasBaseSuffix(dn, baseDN) {
		return dn
	}
	if strings.EqualFold(dn, baseDN) {
		return ""
	}
	return dn[:len(dn)-len(baseDN)-1]
}

// hasBaseSuffix reports whether dn ends in baseDN as a component suffix.
// DN attribute types compare case-insensitively.
func hasBaseSuffix(dn, baseDN string) bool {
	if strings.EqualFold(dn, baseDN) {
		return true
	}
	suffix := "," + strings.ToLower(baseDN)
	return strings.HasSuffix(strings.ToLower(dn), suffix)
}

// expandDNPattern substitutes the username into a DN pattern such as
// "uid={username},ou=people". The username is escaped per RFC 4514 so that
// attacker-controlled input cannot alter the DN's structure.
func expandDNPattern(pattern, username string) string {
	return strings.ReplaceAll(pattern, usernamePlaceholder, ldap.EscapeDN(username))
}

// expandFilter substitutes the username into a search filter template such as
// "(uid={username})", escaping it per RFC 4515.
func expandFilter(template, username string) string {
	return strings.ReplaceAll(template, usernamePlaceholder, ldap.EscapeFilter(username))
}
