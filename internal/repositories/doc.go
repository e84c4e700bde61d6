// Package repositories implements SQLite persistence for the front end's own state.
//
// The library data itself lives in the backend; the only thing stored locally is the login.
//
//   - [SessionRepository] : implements session.Store on the sessions table, keyed by CLI
//     profile or browser session id, with the cached user kept as JSON
//
// Expired rows are ignored by session.Manager on read and removed in bulk by
// [SessionRepository.PurgeExpired], which the web server runs periodically.
package repositories
