// Package bindauth defines small collaborator interfaces so that the
// authentication core can be exercised against test doubles.
package bindauth

import (
	"context"

	"github.com/go-ldap/ldap/v3"
)

// Conn is a scoped, already-authenticated directory connection. It is created
// for a single bind attempt and released before the attempt returns.
//
// The connection is contextualized by the base DN it was opened under:
// FetchAttributes takes a DN *relative* to that base, not the fully-qualified
// DN the bind was performed with.
type Conn interface {
	// FetchAttributes reads the named attributes of the entry at the given
	// relative DN. Errors are always infrastructure-class: a connection that
	// just authenticated successfully is expected to read its own entry.
	FetchAttributes(ctx context.Context, dn string, attributes []string) (map[string][]string, error)

	// Close releases the connection. It is idempotent and never fails.
	Close() error
}

// ConnectionFactory opens a fresh directory connection authenticated as the
// given principal. Failures are distinguishable by class: *CredentialError
// when the directory declined the DN/password pair, *BindError (or any other
// error) for infrastructure faults.
type ConnectionFactory interface {
	OpenAuthenticated(ctx context.Context, bindDN, password string) (Conn, error)
}

// LocatedUser is the result of resolving a username through a directory
// search: the entry's DN relative to the authenticator's base DN, plus any
// attributes the search already read.
type LocatedUser struct {
	// DN is the located entry's DN, relative to the base DN.
	DN string
	// Attributes holds attributes returned by the search, keyed by name.
	Attributes map[string][]string
}

// UserSearch locates the directory entry for a bare username. It is consulted
// once per authentication attempt, only after every configured DN pattern has
// been rejected.
//
// Implementations fail with ErrUserNotFound when no entry matches, or with an
// infrastructure error when the directory could not be queried.
type UserSearch interface {
	FindUser(ctx context.Context, username string) (*LocatedUser, error)
}

// SearchConn is the subset of a directory connection a user search needs.
// *ldap.Conn satisfies it.
type SearchConn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// ServiceConnector opens connections bound with service credentials (or an
// unauthenticated bind) for lookup purposes, as opposed to the per-user
// binds performed through ConnectionFactory.
type ServiceConnector interface {
	OpenService(ctx context.Context) (SearchConn, error)
	// BaseDN returns the base DN all relative DNs are qualified against.
	BaseDN() string
	// Server returns the directory server URL, for error context.
	Server() string
}
