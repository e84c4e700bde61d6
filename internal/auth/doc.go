// Package auth holds the login state machine and the route guards.
//
// # Context
//
// [Context] moves between two states:
//
//	Unauthenticated --Login ok--> Authenticated(user) --Logout | Expire--> Unauthenticated
//
// A failed login leaves the state alone and reports the server's message in [Result].
// Signup never authenticates; the new subscriber logs in separately.
//
// The credential stored on login depends on what the backend returned: a token becomes a
// bearer credential, session cookies become a cookie credential, and a bare user body becomes
// a local marker that is never sent.
//
// # Guards
//
// [Authorize] is a pure function of the viewer and the path. Every surface applies it:
// the web server from middleware, the TUI before switching screens and the CLI through
// [Context.Require].
package auth
