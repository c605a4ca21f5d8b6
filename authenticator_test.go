package bindauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseDN = "dc=example,dc=com"

// mockConn is a Conn test double tracking close calls.
type mockConn struct {
	attributes map[string][]string
	fetchErr   error
	fetchedDNs []string
	closeCalls int
}

func (c *mockConn) FetchAttributes(_ context.Context, dn string, _ []string) (map[string][]string, error) {
	c.fetchedDNs = append(c.fetchedDNs, dn)
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.attributes, nil
}

func (c *mockConn) Close() error {
	c.closeCalls++
	return nil
}

// mockFactory is a ConnectionFactory test double. Binds succeed only for the
// DN/password pairs in passwords; DNs listed in infraErrs fail fatally.
type mockFactory struct {
	passwords  map[string]string
	attributes map[string][]string
	infraErrs  map[string]error
	fetchErr   error

	openedDNs []string
	conns     []*mockConn
}

func (f *mockFactory) OpenAuthenticated(_ context.Context, bindDN, password string) (Conn, error) {
	f.openedDNs = append(f.openedDNs, bindDN)
	if err, ok := f.infraErrs[bindDN]; ok {
		return nil, err
	}
	if want, ok := f.passwords[bindDN]; ok && want == password {
		conn := &mockConn{attributes: f.attributes, fetchErr: f.fetchErr}
		f.conns = append(f.conns, conn)
		return conn, nil
	}
	return nil, &CredentialError{
		DN:  bindDN,
		Err: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials")),
	}
}

// assertAllConnsClosedOnce verifies the scoped-connection contract: every
// opened connection was released exactly once.
func assertAllConnsClosedOnce(t *testing.T, f *mockFactory) {
	t.Helper()
	for i, conn := range f.conns {
		assert.Equal(t, 1, conn.closeCalls, "connection %d close calls", i)
	}
}

// mockSearch is a UserSearch test double.
type mockSearch struct {
	located *LocatedUser
	err     error
	calls   int
}

func (s *mockSearch) FindUser(_ context.Context, _ string) (*LocatedUser, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.located, nil
}

func newTestAuthenticator(factory ConnectionFactory, opts ...Option) *BindAuthenticator {
	opts = append([]Option{WithLogger(slog.Default())}, opts...)
	return NewBindAuthenticator(factory, testBaseDN, opts...)
}

func TestAuthenticateStopsAtFirstSuccessfulPattern(t *testing.T) {
	patterns := []string{
		"uid={username},ou=one",
		"uid={username},ou=two",
		"uid={username},ou=three",
	}

	for k := 1; k <= len(patterns); k++ {
		t.Run(fmt.Sprintf("password valid for candidate %d", k), func(t *testing.T) {
			validDN := fmt.Sprintf("uid=jsmith,ou=%s,%s", []string{"one", "two", "three"}[k-1], testBaseDN)
			factory := &mockFactory{
				passwords:  map[string]string{validDN: "secret"},
				attributes: map[string][]string{"cn": {"John Smith"}},
			}
			auth := newTestAuthenticator(factory, WithDNPatterns(patterns...))

			record, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
			require.NoError(t, err)
			assert.Equal(t, validDN, record.DN)
			assert.Equal(t, "John Smith", record.GetAttributeValue("cn"))
			assert.Len(t, factory.openedDNs, k, "bind attempter must be invoked exactly k times")
			assertAllConnsClosedOnce(t, factory)
		})
	}
}

func TestAuthenticateWorkedExample(t *testing.T) {
	factory := &mockFactory{
		passwords:  map[string]string{"uid=jsmith,ou=admins," + testBaseDN: "secret"},
		attributes: map[string][]string{"cn": {"John Smith"}, "mail": {"jsmith@example.com"}},
	}

	var hookDNs []string
	auth := newTestAuthenticator(factory,
		WithDNPatterns("uid={username},ou=people", "uid={username},ou=admins"),
		WithBindFailureHook(func(dn, username string, cause error) {
			hookDNs = append(hookDNs, dn)
			assert.Equal(t, "jsmith", username)
			assert.Error(t, cause)
		}),
	)

	record, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, "uid=jsmith,ou=admins,dc=example,dc=com", record.DN)
	assert.Equal(t, "uid=jsmith,ou=admins", record.RelativeDN)
	assert.Equal(t, []string{"jsmith@example.com"}, record.GetAttributeValues("mail"))

	require.Equal(t, []string{
		"uid=jsmith,ou=people,dc=example,dc=com",
		"uid=jsmith,ou=admins,dc=example,dc=com",
	}, factory.openedDNs)

	// The hook saw exactly the one rejected candidate.
	assert.Equal(t, []string{"uid=jsmith,ou=people,dc=example,dc=com"}, hookDNs)
	assertAllConnsClosedOnce(t, factory)
}

func TestAuthenticateFetchesWithRelativeDN(t *testing.T) {
	factory := &mockFactory{
		passwords:  map[string]string{"uid=jsmith,ou=people," + testBaseDN: "secret"},
		attributes: map[string][]string{"cn": {"John Smith"}},
	}
	auth := newTestAuthenticator(factory, WithDNPatterns("uid={username},ou=people"))

	_, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
	require.NoError(t, err)

	// Bind uses the fully-qualified DN, the attribute fetch the relative one.
	require.Len(t, factory.conns, 1)
	assert.Equal(t, []string{"uid=jsmith,ou=people"}, factory.conns[0].fetchedDNs)
}

func TestAuthenticateSearchFallback(t *testing.T) {
	t.Run("search resolves a valid identity", func(t *testing.T) {
		factory := &mockFactory{
			passwords:  map[string]string{"uid=jsmith,ou=hidden," + testBaseDN: "secret"},
			attributes: map[string][]string{"uid": {"jsmith"}},
		}
		search := &mockSearch{located: &LocatedUser{DN: "uid=jsmith,ou=hidden"}}
		auth := newTestAuthenticator(factory,
			WithDNPatterns("uid={username},ou=people"),
			WithUserSearch(search),
		)

		record, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "uid=jsmith,ou=hidden,dc=example,dc=com", record.DN)
		assert.Equal(t, 1, search.calls, "exactly one search after static exhaustion")
		assert.Len(t, factory.openedDNs, 2, "one pattern attempt plus one search-resolved attempt")
		assertAllConnsClosedOnce(t, factory)
	})

	t.Run("search-resolved identity also rejects", func(t *testing.T) {
		factory := &mockFactory{passwords: map[string]string{}}
		search := &mockSearch{located: &LocatedUser{DN: "uid=jsmith,ou=hidden"}}
		auth := newTestAuthenticator(factory,
			WithDNPatterns("uid={username},ou=people"),
			WithUserSearch(search),
		)

		_, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, 1, search.calls)
		assert.Len(t, factory.openedDNs, 2)
	})

	t.Run("search user not found collapses into uniform failure", func(t *testing.T) {
		factory := &mockFactory{passwords: map[string]string{}}
		search := &mockSearch{err: ErrUserNotFound}
		auth := newTestAuthenticator(factory, WithUserSearch(search))

		_, err := auth.Authenticate(context.Background(), Credentials{Username: "ghost", Password: "whatever"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.NotErrorIs(t, err, ErrUserNotFound, "search outcome must not leak")
	})

	t.Run("search infrastructure error propagates", func(t *testing.T) {
		factory := &mockFactory{passwords: map[string]string{}}
		search := &mockSearch{err: NewBindError("FindUser", "ldap://test:389", errors.New("connection refused"))}
		auth := newTestAuthenticator(factory, WithUserSearch(search))

		_, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
		assert.True(t, IsInfrastructureError(err))
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("no search without configured collaborator", func(t *testing.T) {
		factory := &mockFactory{passwords: map[string]string{}}
		auth := newTestAuthenticator(factory, WithDNPatterns("uid={username},ou=people"))

		_, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Len(t, factory.openedDNs, 1)
	})
}

func TestAuthenticateNoCandidateSources(t *testing.T) {
	factory := &mockFactory{}
	auth := newTestAuthenticator(factory)

	_, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, factory.openedDNs, "no attempts without patterns or search")
}

func TestAuthenticateInfrastructureErrorAborts(t *testing.T) {
	fatal := NewBindError("Dial", "ldap://test:389", errors.New("connection refused"))
	factory := &mockFactory{
		passwords: map[string]string{"uid=jsmith,ou=three," + testBaseDN: "secret"},
		infraErrs: map[string]error{"uid=jsmith,ou=two," + testBaseDN: fatal},
	}
	search := &mockSearch{located: &LocatedUser{DN: "uid=jsmith,ou=hidden"}}
	auth := newTestAuthenticator(factory,
		WithDNPatterns("uid={username},ou=one", "uid={username},ou=two", "uid={username},ou=three"),
		WithUserSearch(search),
	)

	_, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
	require.Error(t, err)
	assert.True(t, IsInfrastructureError(err))
	assert.Len(t, factory.openedDNs, 2, "no candidate after the fatal one may be attempted")
	assert.Zero(t, search.calls, "no fallback search after a fatal error")
}

func TestAuthenticateReleasesConnectionOnFetchFailure(t *testing.T) {
	factory := &mockFactory{
		passwords: map[string]string{"uid=jsmith,ou=people," + testBaseDN: "secret"},
		fetchErr:  NewBindError("FetchAttributes", "ldap://test:389", ErrEntryNotReadable),
	}
	auth := newTestAuthenticator(factory, WithDNPatterns("uid={username},ou=people"))

	_, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
	require.Error(t, err)
	assert.True(t, IsInfrastructureError(err), "post-bind fetch failure is fatal, not a rejection")
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assertAllConnsClosedOnce(t, factory)
}

func TestAuthenticateUniformFailure(t *testing.T) {
	// One directory where jsmith exists (with a different password) and one
	// where nobody exists at all. The caller must not be able to tell the
	// two failures apart.
	existing := &mockFactory{passwords: map[string]string{"uid=jsmith,ou=people," + testBaseDN: "right"}}
	empty := &mockFactory{passwords: map[string]string{}}

	var errs []error
	for _, tc := range []struct {
		factory  *mockFactory
		username string
	}{
		{existing, "jsmith"},
		{empty, "nosuchuser"},
	} {
		auth := newTestAuthenticator(tc.factory, WithDNPatterns("uid={username},ou=people"))
		_, err := auth.Authenticate(context.Background(), Credentials{Username: tc.username, Password: "wrong"})
		require.Error(t, err)
		errs = append(errs, err)
	}

	assert.ErrorIs(t, errs[0], ErrInvalidCredentials)
	assert.ErrorIs(t, errs[1], ErrInvalidCredentials)
	assert.Equal(t, errs[0].Error(), errs[1].Error(), "failure messages must be identical")
}

func TestAuthenticateMalformedCredentials(t *testing.T) {
	factory := &mockFactory{}
	auth := newTestAuthenticator(factory, WithDNPatterns("uid={username},ou=people"))

	tests := []struct {
		name  string
		creds Credentials
	}{
		{"empty username", Credentials{Username: "", Password: "secret"}},
		{"NUL in username", Credentials{Username: "j\x00smith", Password: "secret"}},
		{"NUL in password", Credentials{Username: "jsmith", Password: "se\x00cret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(context.Background(), tt.creds)
			assert.ErrorIs(t, err, ErrMalformedCredentials)
			assert.NotErrorIs(t, err, ErrInvalidCredentials, "contract violations are not authentication failures")
		})
	}
	assert.Empty(t, factory.openedDNs, "malformed input must not reach the directory")
}

func TestAuthenticateEscapesUsernameInPatterns(t *testing.T) {
	factory := &mockFactory{passwords: map[string]string{}}
	auth := newTestAuthenticator(factory, WithDNPatterns("uid={username},ou=people"))

	_, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith,ou=admins", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.Len(t, factory.openedDNs, 1)
	assert.Equal(t, `uid=jsmith\,ou=admins,ou=people,dc=example,dc=com`, factory.openedDNs[0],
		"username must not be able to restructure the candidate DN")
}

func TestDefaultBindFailureHookDoesNotAlterOutcome(t *testing.T) {
	factory := &mockFactory{
		passwords:  map[string]string{"uid=jsmith,ou=admins," + testBaseDN: "secret"},
		attributes: map[string][]string{"cn": {"John Smith"}},
	}
	// No hook override: the default debug-trace hook must let the loop
	// proceed to the accepting candidate.
	auth := newTestAuthenticator(factory, WithDNPatterns("uid={username},ou=people", "uid={username},ou=admins"))

	record, err := auth.Authenticate(context.Background(), Credentials{Username: "jsmith", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "uid=jsmith,ou=admins,dc=example,dc=com", record.DN)
}
