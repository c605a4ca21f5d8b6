package bindauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// DirectorySearch locates users by searching the directory with a filter
// template, using a service-credentialed connection. It implements the
// UserSearch fallback consulted after every DN pattern has been rejected.
type DirectorySearch struct {
	connector ServiceConnector
	// searchBase is the subtree to search under, relative to the base DN
	// (empty means the whole base).
	searchBase string
	// filter is the filter template, e.g. "(uid={username})".
	filter     string
	attributes []string
	logger     *slog.Logger
}

var _ UserSearch = (*DirectorySearch)(nil)

// NewDirectorySearch creates a user search over the given connector.
// searchBase is relative to the connector's base DN; filter must contain the
// {username} placeholder.
func NewDirectorySearch(connector ServiceConnector, searchBase, filter string, opts ...SearchOption) *DirectorySearch {
	s := &DirectorySearch{
		connector:  connector,
		searchBase: searchBase,
		filter:     filter,
		attributes: []string{"*"},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchOption configures a DirectorySearch.
type SearchOption func(*DirectorySearch)

// WithSearchAttributes sets the attributes the search reads from the located
// entry.
func WithSearchAttributes(attributes ...string) SearchOption {
	return func(s *DirectorySearch) {
		if len(attributes) > 0 {
			s.attributes = attributes
		}
	}
}

// WithSearchLogger sets a custom structured logger for search diagnostics.
func WithSearchLogger(logger *slog.Logger) SearchOption {
	return func(s *DirectorySearch) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// FindUser locates the directory entry for the username. It fails with
// ErrUserNotFound when no entry matches and with *BindError when the
// directory could not be queried or the username is ambiguous.
func (s *DirectorySearch) FindUser(ctx context.Context, username string) (*LocatedUser, error) {
	start := time.Now()
	server := s.connector.Server()

	conn, err := s.connector.OpenService(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	baseDN := s.connector.BaseDN()
	// Size limit 2: one entry more than wanted, enough to detect ambiguity
	// without pulling the whole subtree.
	r, err := conn.Search(ldap.NewSearchRequest(
		qualifyDN(s.searchBase, baseDN), ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		2, 0, false,
		expandFilter(s.filter, username),
		s.attributes, nil))
	if err != nil {
		return nil, NewBindError("FindUser", server, err)
	}

	switch len(r.Entries) {
	case 0:
		s.logger.Debug("user_search_no_match",
			slog.String("username_masked", maskSensitiveData(username)),
			slog.Duration("duration", time.Since(start)))
		return nil, ErrUserNotFound
	case 1:
	default:
		return nil, NewBindError("FindUser", server,
			fmt.Errorf("ambiguous username: %d entries returned", len(r.Entries)))
	}

	entry := r.Entries[0]
	attributes := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		attributes[attr.Name] = attr.Values
	}

	s.logger.Debug("user_search_resolved",
		slog.String("username_masked", maskSensitiveData(username)),
		slog.String("dn_masked", maskSensitiveData(entry.DN)),
		slog.Duration("duration", time.Since(start)))

	return &LocatedUser{
		DN:         relativizeDN(entry.DN, baseDN),
		Attributes: attributes,
	}, nil
}
