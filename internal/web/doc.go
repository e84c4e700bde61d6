// Package web is the server-rendered browser front end.
//
// # Architecture
//
// Every page is an html/template rendered inside templates/layout.html. Forms post back to
// the page they belong to and finish with a redirect plus a one-shot flash message, so a
// refresh never repeats an action.
//
// # Per-Browser State
//
// [server.Sessions] gives each browser a random key. For every request the app binds a
// session.Manager to that key, scopes the shared services.Client to it with WithCredentials
// and builds an auth.Context. A 401 from the backend clears the stored session through the
// client and sends the browser to /login.
//
// # Routes
//
//	GET  /login                     login form
//	POST /login                     authenticate
//	GET  /signup                    registration form
//	POST /signup                    register a subscriber (no auto-login)
//	POST /logout                    forget the session
//	GET  /                          catalog with genre filter and pager
//	POST /                          borrow or return (subscribers)
//	GET  /admin/books               book table with deletion locks
//	POST /admin/books               add, update, delete, set copies
//	GET  /admin/subscribers         subscriber list and add form
//	POST /admin/subscribers         register a subscriber
//	GET  /admin/remove-subscribers  subscriber list with delete buttons
//	POST /admin/remove-subscribers  delete a subscriber
//	GET  /admin/fines               fine collection report
//	GET  /wallet                    balance and fines paid
//	POST /wallet                    add money
//	GET  /borrow-history            history, active loans, unpaid fines
//	POST /borrow-history            pay a fine
//
// Route access is decided by auth.Authorize through [server.Guard]; unknown paths go home.
package web
