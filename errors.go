package bindauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Sentinel errors returned by this package.
var (
	// ErrInvalidCredentials is the only authentication-failure error callers
	// ever see. Its message carries no detail about which candidate DN was
	// tried or whether the user exists at all.
	ErrInvalidCredentials = errors.New("bindauth: invalid credentials")

	// ErrMalformedCredentials indicates structurally invalid input (empty
	// username, NUL bytes). This is a contract violation by the caller, not
	// an authentication failure.
	ErrMalformedCredentials = errors.New("bindauth: malformed credentials")

	// ErrUserNotFound is returned by UserSearch implementations when no
	// directory entry matches the username.
	ErrUserNotFound = errors.New("bindauth: user not found")

	// ErrEntryNotReadable indicates that a bind succeeded but the entry's
	// attributes could not be read afterwards. A freshly-authenticated
	// identity must be able to read its own entry, so this is an
	// infrastructure fault, not a credential problem.
	ErrEntryNotReadable = errors.New("bindauth: entry not readable after bind")
)

// errBindRejected is the internal per-candidate outcome for a directory that
// declined the DN/password pair. It is absorbed by the candidate loop and
// never escapes Authenticate.
var errBindRejected = errors.New("bindauth: bind rejected")

// CredentialError marks a connection-factory failure as credential-class: the
// directory declined the principal/credential pair, or the entry does not
// support a simple bind. The candidate loop recovers from it by advancing to
// the next DN.
type CredentialError struct {
	// DN is the fully-qualified DN the bind was attempted with.
	DN string
	// Err is the underlying directory error.
	Err error
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	return fmt.Sprintf("bindauth: bind rejected for DN %q: %v", e.DN, e.Err)
}

// Unwrap implements error unwrapping.
func (e *CredentialError) Unwrap() error {
	return e.Err
}

// BindError is the unified infrastructure-error representation: connection,
// network, protocol or configuration failures distinct from credential
// rejection. It wraps the underlying error with operation context.
type BindError struct {
	// Op is the operation name (e.g. "Bind", "FetchAttributes", "FindUser")
	Op string
	// DN is the distinguished name involved, if any
	DN string
	// Server is the directory server URL
	Server string
	// Code is the LDAP result code, or -1 when not applicable
	Code int
	// Err is the underlying error
	Err error
	// Timestamp indicates when the error occurred
	Timestamp time.Time
}

// Error implements the error interface.
func (e *BindError) Error() string {
	if e.DN != "" {
		return fmt.Sprintf("bindauth: %s failed for DN %q on server %q: %v", e.Op, e.DN, e.Server, e.Err)
	}
	return fmt.Sprintf("bindauth: %s failed on server %q: %v", e.Op, e.Server, e.Err)
}

// Unwrap implements error unwrapping.
func (e *BindError) Unwrap() error {
	return e.Err
}

// NewBindError creates an infrastructure error with operation context. The
// LDAP result code is extracted from the underlying error when present.
func NewBindError(op, server string, err error) *BindError {
	return &BindError{
		Op:        op,
		Server:    server,
		Code:      ldapResultCode(err),
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithDN attaches a distinguished name to the error context.
func (e *BindError) WithDN(dn string) *BindError {
	e.DN = dn
	return e
}

// credentialResultCodes are the LDAP result codes that classify a failed bind
// as "this DN/password pair was declined" rather than "the directory is
// broken": invalidCredentials, inappropriateAuthentication and
// unwillingToPerform. Everything else is infrastructure.
var credentialResultCodes = []uint16{
	ldap.LDAPResultInvalidCredentials,
	ldap.LDAPResultInappropriateAuthentication,
	ldap.LDAPResultUnwillingToPerform,
}

// IsCredentialError reports whether err is a credential-class bind failure,
// either marked as *CredentialError by a connection factory or carrying one
// of the credential-class LDAP result codes.
func IsCredentialError(err error) bool {
	var credErr *CredentialError
	if errors.As(err, &credErr) {
		return true
	}
	return ldap.IsErrorAnyOf(err, credentialResultCodes...)
}

// IsInvalidCredentialsError reports whether err is the uniform
// authentication-failure error returned by Authenticate.
func IsInvalidCredentialsError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsInfrastructureError reports whether err is a fatal directory-access
// failure rather than an authentication or input problem.
func IsInfrastructureError(err error) bool {
	var bindErr *BindError
	return errors.As(err, &bindErr)
}

// ldapResultCode extracts the LDAP result code from an error.
// Returns -1 if no result code is available.
func ldapResultCode(err error) int {
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return int(ldapErr.ResultCode)
	}
	return -1
}
