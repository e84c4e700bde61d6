package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/shelf/internal/auth"
	"github.com/desertthunder/shelf/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
//
// visit tags the screen visit that asked for the message; results for an earlier visit are
// dropped.
type Msg struct {
	kind  MsgKind
	visit int
	data  any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgCatalogLoaded MsgKind = iota
	MsgAdminBooksLoaded
	MsgUsersLoaded
	MsgFinesLoaded
	MsgWalletLoaded
	MsgHistoryLoaded
	MsgLoadFailed
	MsgActionDone
	MsgLoginDone
	MsgSignupDone
)

type actionResult struct {
	ok     string
	prefix string
	err    error
}

type authResult struct {
	res auth.Result
	err error
}

// loadedMsg is the constructor for the Msg*Loaded kinds
func loadedMsg(kind MsgKind, visit int, data any) Msg {
	return Msg{kind: kind, visit: visit, data: data}
}

// loadFailedMsg is the constructor for [MsgLoadFailed]
func loadFailedMsg(visit int, err error) Msg {
	return Msg{kind: MsgLoadFailed, visit: visit, data: err}
}

// actionDoneMsg is the constructor for [MsgActionDone]. ok is shown on success; prefix is
// put in front of the error message on failure.
func actionDoneMsg(visit int, ok, prefix string, err error) Msg {
	return Msg{kind: MsgActionDone, visit: visit, data: actionResult{ok: ok, prefix: prefix, err: err}}
}

// loginDoneMsg is the constructor for [MsgLoginDone]
func loginDoneMsg(visit int, res auth.Result, err error) Msg {
	return Msg{kind: MsgLoginDone, visit: visit, data: authResult{res, err}}
}

// signupDoneMsg is the constructor for [MsgSignupDone]
func signupDoneMsg(visit int, res auth.Result, err error) Msg {
	return Msg{kind: MsgSignupDone, visit: visit, data: authResult{res, err}}
}

// deliver adapts a screen loader to a [tasks.LoadFunc] that produces the screen's message.
func deliver[T any](kind MsgKind, visit int, load func(ctx context.Context) (T, error)) tasks.LoadFunc[tea.Msg] {
	return func(ctx context.Context) (tea.Msg, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return loadedMsg(kind, visit, v), nil
	}
}
