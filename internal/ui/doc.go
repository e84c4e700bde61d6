// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI shows the same screens as the browser front end, one [Screen] per route in
// auth.Routes:
//  1. [LoginScreen] and [SignupScreen] : forms, the only screens open without a session
//  2. [CatalogScreen] : paged books with a genre filter; subscribers borrow (b) and return (r)
//  3. [AdminBooksScreen] : add (a), edit (e), set copies (c) and delete (d) with deletion locks
//  4. [SubscribersScreen] and [RemoveSubscribersScreen] : register and delete subscribers
//  5. [FinesScreen] : fines collected, unpaid fines and overdue loans
//  6. [WalletScreen] and [HistoryScreen] : top up (a) and pay fines (p)
//
// Navigation goes through auth.Authorize, so a screen the current role may not see resolves to
// the login screen or the catalog exactly as it does on the web. Tab opens a menu built from
// auth.Navigation.
//
// Each screen visit owns a tasks.Resource. A newer load supersedes the previous one and leaving
// the screen closes the resource, so a slow response never lands on the wrong screen. Messages
// carry the visit they belong to through the [Msg] union.
//
// A 401 from the backend clears the stored session through the client and returns to the login
// screen with a notice.
package ui
