// Package server provides HTTP routing, middleware and lifecycle for the browser front end.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns ("GET /wallet") and an
// optional not-found handler.
//
// # Middleware
//
//   - [Logging] : one log line per request with status and duration
//   - [Recover] : turns handler panics into a 500
//   - [Sessions] : issues each browser a random session key in a cookie
//   - [Guard] : applies [auth.Authorize] to every request and redirects refused ones
//
// # Session Keys
//
// The cookie carries only a uuid. The credential and cached user live in the session store
// under that key, so the browser never sees the backend token.
//
// # Lifecycle
//
// [Server.Run] serves until its context is cancelled and then shuts down gracefully. When a
// [Purger] is configured it also sweeps expired sessions on a timer ([PurgeLoop]).
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
