package bindauth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Config contains the connection configuration for a directory server.
type Config struct {
	// Server is the directory server URL, e.g. "ldaps://ldap.example.com:636".
	Server string
	// BaseDN is the base path prepended to every relative DN before it is
	// used on the wire.
	BaseDN string
	// BindDN and BindPassword are optional service credentials used for user
	// searches. When BindDN is empty, searches use an unauthenticated bind.
	BindDN       string
	BindPassword string

	// DialTimeout bounds connection establishment. Zero means the dialer
	// default.
	DialTimeout time.Duration
	// RequestTimeout bounds individual directory operations on an open
	// connection.
	RequestTimeout time.Duration
	// TLSConfig is applied when dialing ldaps:// or issuing StartTLS through
	// DialOptions.
	TLSConfig *tls.Config
	// DialOptions are passed through to the underlying LDAP dialer.
	DialOptions []ldap.DialOpt

	// Logger receives structured connection diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client opens fresh, per-attempt connections to a directory server. It
// implements both ConnectionFactory (bind as a specific user) and
// ServiceConnector (bind with service credentials for lookups).
//
// A Client holds no connection state of its own; every open call dials anew,
// and the returned connection is owned by the caller.
type Client struct {
	config *Config
	logger *slog.Logger
}

var (
	_ ConnectionFactory = (*Client)(nil)
	_ ServiceConnector  = (*Client)(nil)
)

// NewClient validates the configuration and returns a connection factory for
// the configured server. No connection is opened yet.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("bindauth: config cannot be nil")
	}
	if config.Server == "" {
		return nil, errors.New("bindauth: server URL cannot be empty")
	}
	if config.BaseDN == "" {
		return nil, errors.New("bindauth: base DN cannot be empty")
	}

	logger := slog.Default()
	if config.Logger != nil {
		logger = config.Logger
	}

	return &Client{config: config, logger: logger}, nil
}

// BaseDN returns the configured base DN.
func (c *Client) BaseDN() string {
	return c.config.BaseDN
}

// Server returns the configured server URL.
func (c *Client) Server() string {
	return c.config.Server
}

// OpenAuthenticated dials the directory server and binds as the given DN.
// The returned connection is scoped to the configured base DN: attribute
// fetches take DNs relative to it.
//
// A rejected bind is reported as *CredentialError; dial failures and
// non-credential bind failures are reported as *BindError.
func (c *Client) OpenAuthenticated(ctx context.Context, bindDN, password string) (Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, NewBindError("Dial", c.config.Server, err)
	}

	if err := conn.Bind(bindDN, password); err != nil {
		_ = conn.Close()
		if ldap.IsErrorAnyOf(err, credentialResultCodes...) {
			return nil, &CredentialError{DN: bindDN, Err: err}
		}
		return nil, NewBindError("Bind", c.config.Server, err).WithDN(bindDN)
	}

	return &scopedConn{
		conn:   conn,
		baseDN: c.config.BaseDN,
		server: c.config.Server,
		logger: c.logger,
	}, nil
}

// OpenService dials the directory server and binds with the configured
// service credentials, or performs an unauthenticated bind when no service DN
// is configured. Used by DirectorySearch for user lookups.
func (c *Client) OpenService(ctx context.Context) (SearchConn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, NewBindError("Dial", c.config.Server, err)
	}

	if c.config.BindDN != "" {
		err = conn.Bind(c.config.BindDN, c.config.BindPassword)
	} else {
		err = conn.UnauthenticatedBind("")
	}
	if err != nil {
		_ = conn.Close()
		return nil, NewBindError("ServiceBind", c.config.Server, err).WithDN(c.config.BindDN)
	}

	return conn, nil
}

// dial opens a raw connection to the configured server, honoring the context
// and the configured timeouts.
func (c *Client) dial(ctx context.Context) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	c.logger.Debug("directory_connection_establishing",
		slog.String("server", c.config.Server))

	dialOpts := make([]ldap.DialOpt, 0, len(c.config.DialOptions)+2)
	if c.config.DialTimeout > 0 {
		dialOpts = append(dialOpts, ldap.DialWithDialer(&net.Dialer{Timeout: c.config.DialTimeout}))
	}
	if c.config.TLSConfig != nil {
		dialOpts = append(dialOpts, ldap.DialWithTLSConfig(c.config.TLSConfig))
	}
	dialOpts = append(dialOpts, c.config.DialOptions...)

	conn, err := ldap.DialURL(c.config.Server, dialOpts...)
	if err != nil {
		c.logger.Error("directory_connection_dial_failed",
			slog.String("server", c.config.Server),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to dial directory server: %w", err)
	}

	if c.config.RequestTimeout > 0 {
		conn.SetTimeout(c.config.RequestTimeout)
	}

	c.logger.Debug("directory_connection_established",
		slog.String("server", c.config.Server),
		slog.Duration("duration", time.Since(start)))

	return conn, nil
}

// scopedConn wraps an authenticated *ldap.Conn together with the base DN it
// was opened under. Relative DNs handed to FetchAttributes are qualified
// against that base before hitting the wire.
type scopedConn struct {
	conn   *ldap.Conn
	baseDN string
	server string
	logger *slog.Logger

	closeOnce sync.Once
}

// FetchAttributes reads the named attributes of the entry at the given
// relative DN via a base-object search.
func (s *scopedConn) FetchAttributes(ctx context.Context, dn string, attributes []string) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewBindError("FetchAttributes", s.server, err).WithDN(dn)
	}

	fullDN := qualifyDN(dn, s.baseDN)
	r, err := s.conn.Search(ldap.NewSearchRequest(
		fullDN, ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		attributes, nil))
	if err != nil {
		return nil, NewBindError("FetchAttributes", s.server, err).WithDN(fullDN)
	}
	if len(r.Entries) == 0 {
		return nil, NewBindError("FetchAttributes", s.server, ErrEntryNotReadable).WithDN(fullDN)
	}

	entry := r.Entries[0]
	result := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		result[attr.Name] = attr.Values
	}
	return result, nil
}

// Close releases the underlying connection. Safe to call more than once.
func (s *scopedConn) Close() error {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				s.logger.Debug("directory_connection_close_failed",
					slog.String("server", s.server),
					slog.String("error", err.Error()))
			}
		}
	})
	return nil
}
