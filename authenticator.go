package bindauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"
)

// defaultUserAttributes is the attribute set fetched after a successful bind
// when no explicit set is configured. "*" requests all user attributes.
var defaultUserAttributes = []string{"*"}

// BindFailureHook receives every per-candidate credential rejection for
// diagnostic purposes: the fully-qualified DN the bind was attempted with,
// the submitted username and the underlying cause. It must not influence the
// authentication outcome; rejected candidates are retried regardless of what
// the hook does.
type BindFailureHook func(dn, username string, cause error)

// BindAuthenticator authenticates username/password pairs by binding against
// a directory server as the user.
//
// Candidate DNs are derived from the configured DN patterns, in order; if
// every pattern is rejected and a UserSearch is configured, one additional
// attempt is made with the search-resolved DN. The first successful bind
// short-circuits the sequence.
//
// A BindAuthenticator holds no mutable state across calls; concurrent
// Authenticate calls need no coordination.
type BindAuthenticator struct {
	factory    ConnectionFactory
	baseDN     string
	patterns   []string
	search     UserSearch
	attributes []string
	hook       BindFailureHook
	messages   *MessageCatalog
	logger     *slog.Logger
}

// NewBindAuthenticator creates an authenticator that opens connections
// through the given factory and qualifies candidate DNs against baseDN.
// Without WithDNPatterns or WithUserSearch the authenticator has no way to
// resolve candidates and rejects every attempt; that is a deployment bug,
// reported through the uniform failure rather than a panic.
func NewBindAuthenticator(factory ConnectionFactory, baseDN string, opts ...Option) *BindAuthenticator {
	a := &BindAuthenticator{
		factory:    factory,
		baseDN:     baseDN,
		attributes: defaultUserAttributes,
		messages:   NewMessageCatalog(language.English),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.hook == nil {
		a.hook = a.logBindFailure
	}
	return a
}

// Authenticate verifies the credentials against the directory and returns the
// authenticated entry's record.
//
// It fails with ErrMalformedCredentials for structurally invalid input, with
// *BindError when the directory could not be consulted, and with the uniform
// ErrInvalidCredentials in every other case - no matter which candidate DN
// failed, or whether the user exists at all.
func (a *BindAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*DirectoryRecord, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	maskedUsername := maskSensitiveData(creds.Username)

	a.logger.Debug("authentication_attempt",
		slog.String("username_masked", maskedUsername),
		slog.Int("dn_patterns", len(a.patterns)),
		slog.Bool("user_search_configured", a.search != nil))

	for _, pattern := range a.patterns {
		record, err := a.bindWithDN(ctx, expandDNPattern(pattern, creds.Username), creds)
		if err == nil {
			a.logSuccess(maskedUsername, record, start)
			return record, nil
		}
		if !errors.Is(err, errBindRejected) {
			return nil, err
		}
	}

	if a.search != nil {
		located, err := a.search.FindUser(ctx, creds.Username)
		switch {
		case err == nil:
			record, bindErr := a.bindWithDN(ctx, located.DN, creds)
			if bindErr == nil {
				a.logSuccess(maskedUsername, record, start)
				return record, nil
			}
			if !errors.Is(bindErr, errBindRejected) {
				return nil, bindErr
			}
		case errors.Is(err, ErrUserNotFound):
			// Collapses into the uniform failure below so that an unknown
			// username is indistinguishable from a wrong password.
		default:
			return nil, err
		}
	}

	a.logger.Debug("authentication_failed",
		slog.String("username_masked", maskedUsername),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, a.messages.BadCredentials())
}

// bindWithDN performs one bind attempt: qualify the candidate DN, open an
// authenticated connection, and fetch the user attributes with the relative
// DN against the scoped connection. The connection is released on every exit
// path.
//
// A credential-class rejection is reported as errBindRejected; every other
// failure is fatal for the whole authentication attempt.
func (a *BindAuthenticator) bindWithDN(ctx context.Context, userDN string, creds Credentials) (*DirectoryRecord, error) {
	fullDN := qualifyDN(userDN, a.baseDN)

	a.logger.Debug("bind_attempt",
		slog.String("dn_masked", maskSensitiveData(fullDN)))

	conn, err := a.factory.OpenAuthenticated(ctx, fullDN, creds.Password)
	if conn != nil {
		defer func() { _ = conn.Close() }()
	}
	if err != nil {
		if IsCredentialError(err) {
			a.hook(fullDN, creds.Username, err)
			return nil, errBindRejected
		}
		if IsInfrastructureError(err) {
			return nil, err
		}
		return nil, NewBindError("Bind", "", err).WithDN(fullDN)
	}

	attributes, err := conn.FetchAttributes(ctx, relativizeDN(fullDN, a.baseDN), a.attributes)
	if err != nil {
		// The bind itself succeeded; an unreadable entry means the directory
		// is misbehaving, not that the credentials are wrong.
		return nil, err
	}

	return &DirectoryRecord{
		DN:         fullDN,
		RelativeDN: relativizeDN(fullDN, a.baseDN),
		Attributes: attributes,
	}, nil
}

// logBindFailure is the default BindFailureHook: a debug-level trace of the
// rejected candidate. Rejections are never logged above debug severity.
func (a *BindAuthenticator) logBindFailure(dn, username string, cause error) {
	a.logger.Debug("bind_rejected",
		slog.String("dn_masked", maskSensitiveData(dn)),
		slog.String("username_masked", maskSensitiveData(username)),
		slog.String("error", cause.Error()))
}

func (a *BindAuthenticator) logSuccess(maskedUsername string, record *DirectoryRecord, start time.Time) {
	a.logger.Info("authentication_successful",
		slog.String("username_masked", maskedUsername),
		slog.String("dn_masked", maskSensitiveData(record.DN)),
		slog.Duration("duration", time.Since(start)))
}
