// Package models defines the domain entities the library backend exchanges with the front end.
//
// Backend entities, decoded leniently:
//   - [User] : account with [Role], wallet balance and fines paid
//   - [Book] : catalog entry; [Book.Available] resolves the several availability fields
//   - [BorrowRecord] : a loan, with [BorrowRecord.Status] and fine helpers
//   - [Page] : a paginated listing; [Page.Normalize] enforces totalPages = ceil(totalElements / size)
//
// Amounts are [Money] and accept numbers, numeric strings and null. Timestamps are [Date]
// and accept bare dates, zone-less datetimes and RFC 3339.
//
// Client-side state:
//   - [Credential] : opaque proof of login (bearer token, cookie or local marker)
//   - [Session] : a stored credential plus cached [User] and an expiry set at write time
//
// Request bodies ([LoginRequest], [Registration], [UserUpdate], [WalletTopUp], [BookInput],
// [CopiesUpdate]) carry `validate` tags checked by shared.Validate before anything is sent.
package models
