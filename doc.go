// Package bindauth verifies username/password pairs by binding against a
// directory server as the user, instead of comparing password hashes locally.
//
// A BindAuthenticator resolves a bare username into one or more candidate
// distinguished names - first from configured DN patterns, then, if none of
// them bind successfully, from an optional directory search - and attempts an
// authenticated connection per candidate. The first successful bind wins and
// yields the user's directory attributes.
//
// # Basic Usage
//
//	client, err := bindauth.NewClient(&bindauth.Config{
//		Server: "ldaps://ldap.example.com:636",
//		BaseDN: "dc=example,dc=com",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	auth := bindauth.NewBindAuthenticator(client, client.BaseDN(),
//		bindauth.WithDNPatterns("uid={username},ou=people"))
//
//	record, err := auth.Authenticate(ctx, bindauth.Credentials{
//		Username: "jsmith",
//		Password: password,
//	})
//	if err != nil {
//		log.Printf("Authentication failed: %v", err)
//		return
//	}
//	fmt.Printf("Authenticated: %s\n", record.DN)
//
// # Error Handling
//
// Callers see exactly one authentication-failure error, ErrInvalidCredentials,
// regardless of which candidate failed or why; a nonexistent user and a wrong
// password are indistinguishable. Infrastructure problems (unreachable server,
// protocol errors) surface as *BindError and abort the attempt immediately.
// Structurally invalid input is reported as ErrMalformedCredentials, which is
// a caller bug rather than an authentication failure.
package bindauth
