// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, csv, markdown or txt",
		Value:   "json",
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output directory (default: shelf_export_{epoch})",
	}
}

func bookFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Usage: "Book title"},
		&cli.StringFlag{Name: "author", Usage: "Book author"},
		&cli.StringFlag{Name: "year", Usage: "Year of publication"},
		&cli.StringFlag{Name: "genre", Usage: "Book genre"},
		&cli.StringFlag{Name: "copies", Usage: "Total number of copies"},
	}
}

// setupCommand writes the configuration file and prepares the session database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml and initialize the session database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
		Commands: []*cli.Command{
			{
				Name:  "rollback",
				Usage: "Roll back the most recent database migration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Log in, sign up and inspect the stored session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in and store the session for later commands",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account username"},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password (prompted when omitted)"},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "signup",
				Usage: "Create a subscriber account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Full name"},
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account username"},
					&cli.StringFlag{Name: "email", Usage: "Email address"},
				},
				Action: r.AuthSignup,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored session",
				Action: r.AuthLogout,
			},
			{
				Name:   "whoami",
				Usage:  "Show the logged-in user",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AuthWhoami,
			},
			{
				Name:  "sessions",
				Usage: "List stored sessions",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "purge", Usage: "Delete expired sessions first"},
				},
				Action: r.AuthSessions,
			},
		},
	}
}

// booksCommand handles catalog browsing
func booksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "books",
		Aliases: []string{"catalog"},
		Usage:   "Browse the catalog",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List one page of books",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "genre", Aliases: []string{"g"}, Usage: "Genre filter", Value: "all"},
					&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Usage: "Page number, starting at 1", Value: 1},
					&cli.IntFlag{Name: "size", Usage: "Books per page (default: catalog.page_size)"},
					jsonFlag(),
				},
				Action: r.BooksList,
			},
			{
				Name:      "show",
				Usage:     "Show one book",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.BooksShow,
			},
			{
				Name:   "genres",
				Usage:  "List genres",
				Action: r.BooksGenres,
			},
		},
	}
}

func borrowCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "borrow",
		Usage:     "Borrow a book",
		Arguments: []cli.Argument{&cli.StringArg{Name: "book-id"}},
		Action:    r.Borrow,
	}
}

func returnCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "return",
		Usage:     "Return a borrowed book",
		Arguments: []cli.Argument{&cli.StringArg{Name: "book-id"}},
		Action:    r.Return,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "history",
		Usage:  "Show your borrow history, active loans and unpaid fines",
		Flags:  []cli.Flag{jsonFlag()},
		Action: r.History,
	}
}

func walletCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "wallet",
		Usage:  "Show your wallet balance",
		Flags:  []cli.Flag{jsonFlag()},
		Action: r.Wallet,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add money to your wallet",
				Arguments: []cli.Argument{&cli.StringArg{Name: "amount"}},
				Action:    r.WalletAdd,
			},
		},
	}
}

func finesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "fines",
		Usage: "Your unpaid fines",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List unpaid fines",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.FinesList,
			},
			{
				Name:      "pay",
				Usage:     "Pay a fine from your wallet",
				Arguments: []cli.Argument{&cli.StringArg{Name: "record-id"}},
				Action:    r.FinesPay,
			},
		},
	}
}

func accountCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Manage your account",
		Commands: []*cli.Command{
			{
				Name:  "update",
				Usage: "Change your name, email or password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "New name"},
					&cli.StringFlag{Name: "email", Usage: "New email address"},
					&cli.BoolFlag{Name: "password", Usage: "Prompt for a new password"},
				},
				Action: r.AccountUpdate,
			},
		},
	}
}

// adminCommand groups the admin-only screens
func adminCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Manage books, subscribers and fines (admins only)",
		Commands: []*cli.Command{
			{
				Name:  "books",
				Usage: "Manage the catalog",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List books with their deletion locks",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Usage: "Page number, starting at 1", Value: 1},
							jsonFlag(),
						},
						Action: r.AdminBooksList,
					},
					{
						Name:   "add",
						Usage:  "Add a book",
						Flags:  bookFlags(),
						Action: r.AdminBooksAdd,
					},
					{
						Name:      "update",
						Usage:     "Edit a book; omitted flags keep their current value",
						Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
						Flags:     bookFlags(),
						Action:    r.AdminBooksUpdate,
					},
					{
						Name:      "delete",
						Usage:     "Delete a book with no active borrows or unpaid fines",
						Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation"},
						},
						Action: r.AdminBooksDelete,
					},
					{
						Name:  "copies",
						Usage: "Set the total number of copies",
						Arguments: []cli.Argument{
							&cli.StringArg{Name: "id"},
							&cli.StringArg{Name: "copies"},
						},
						Action: r.AdminBooksCopies,
					},
				},
			},
			{
				Name:  "subscribers",
				Usage: "Manage subscribers",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List subscribers",
						Flags:  []cli.Flag{jsonFlag()},
						Action: r.AdminSubscribersList,
					},
					{
						Name:  "add",
						Usage: "Register a subscriber",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "Full name"},
							&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account username"},
							&cli.StringFlag{Name: "email", Usage: "Email address"},
						},
						Action: r.AdminSubscribersAdd,
					},
					{
						Name:      "remove",
						Usage:     "Delete a subscriber",
						Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation"},
						},
						Action: r.AdminSubscribersRemove,
					},
				},
			},
			{
				Name:   "fines",
				Usage:  "Fine collections: totals, unpaid fines and active borrows",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AdminFines,
			},
			{
				Name:  "users",
				Usage: "List every account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Usage: "Only ADMIN or SUBSCRIBER accounts"},
					jsonFlag(),
				},
				Action: r.AdminUsers,
			},
		},
	}
}

// exportCommand writes catalog and fine reports to disk
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the catalog or the fine report",
		Commands: []*cli.Command{
			{
				Name:  "catalog",
				Usage: "Export every book, fetching pages concurrently",
				Flags: []cli.Flag{
					formatFlag(),
					outputFlag(),
					&cli.StringFlag{Name: "genre", Aliases: []string{"g"}, Usage: "Only books in this genre"},
					&cli.IntFlag{Name: "page-size", Usage: "Books per request", Value: 50},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent page fetchers", Value: 4},
					&cli.FloatFlag{Name: "rate", Usage: "Page requests per second", Value: 5},
				},
				Action: r.ExportCatalog,
			},
			{
				Name:   "fines",
				Usage:  "Export the fine report (admins only)",
				Flags:  []cli.Flag{formatFlag(), outputFlag()},
				Action: r.ExportFines,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive terminal UI",
		Action:  r.TUI,
	}
}

// serveCommand starts the browser front end
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the browser front end",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Listen host (default: server.host)"},
			&cli.IntFlag{Name: "port", Usage: "Listen port (default: server.port)"},
			&cli.BoolFlag{Name: "open", Usage: "Open the front end in a browser"},
		},
		Action: r.Serve,
	}
}

// apiCommand handles direct backend calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the library backend with the stored session",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the response body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}
