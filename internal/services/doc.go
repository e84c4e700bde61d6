// Package services implements the typed client for the library management backend.
//
// # Request Wrapper
//
// [Client.Request] is the single place requests are built. It:
//   - prefixes the configured base URL and encodes JSON bodies and query parameters
//   - attaches the session headers from [Credentials] unless the call is anonymous
//   - tags every request with an X-Request-ID for log correlation
//   - waits on an optional token-bucket limiter shared by every scoped copy of the client
//
// Responses are parsed by Content-Type: JSON bodies are decoded into [APIResponse.JSONData],
// anything else stays raw text. [APIResponse.Number] reads amounts from either form.
//
// # Error Handling
//
//   - transport and read failures wrap [shared.ErrServiceUnavailable]
//   - a 401 on a credentialed request clears the session, runs the [UnauthorizedFunc] hook
//     and returns an [APIError] that unwraps to [shared.ErrUnauthorized]
//   - every other non-2xx is an [APIError] carrying the server's "message", or
//     "HTTP error! status: N" when it sent none
//   - bodies that do not match the expected shape wrap [shared.ErrAPIRequest]
//
// # Endpoints
//
// The [Library] interface lists every backend operation; [Client] binds each one to its path.
// Collections decode null as an empty slice, and paginated listings are normalized with
// [models.Page.Normalize] so the page count always follows from the element count.
package services
