// package models defines the data model for the library front end
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Role is the permission class of a [User].
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSubscriber Role = "SUBSCRIBER"
)

// ParseRole normalizes s to a known [Role].
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleSubscriber:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// User is a library account as returned by the backend.
type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	WalletBalance  Money  `json:"walletBalance"`
	TotalFinesPaid Money  `json:"totalFinesPaid"`
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

func (u *User) IsAdmin() bool      { return u != nil && u.Role == RoleAdmin }
func (u *User) IsSubscriber() bool { return u != nil && u.Role == RoleSubscriber }

// Money is an amount in rupees.
//
// It decodes from JSON numbers, numeric strings and null (as zero), since the
// backend is not consistent about which it sends.
type Money float64

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParseMoney(s)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	*m = Money(f)
	return nil
}

// ParseMoney reads a plain-text amount. Empty input is zero.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "₹"))
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return Money(f), nil
}

// NonNegative clamps negative amounts to zero for display.
func (m Money) NonNegative() Money {
	if m < 0 || math.IsNaN(float64(m)) {
		return 0
	}
	return m
}

// String renders the amount as rupees, dropping the paise when they are zero: ₹300, ₹12.50.
func (m Money) String() string {
	f := float64(m)
	if f == math.Trunc(f) {
		return fmt.Sprintf("₹%.0f", f)
	}
	return fmt.Sprintf("₹%.2f", f)
}

// CredentialKind says how a [Credential] is presented to the backend.
type CredentialKind string

const (
	// CredentialBearer is sent as "Authorization: Bearer <value>".
	CredentialBearer CredentialKind = "bearer"
	// CredentialCookie is sent back as a Cookie header.
	CredentialCookie CredentialKind = "cookie"
	// CredentialLocal marks a login the backend issued no credential for. Never sent.
	CredentialLocal CredentialKind = "local"
)

// Credential is the opaque proof of login. Nothing is ever decoded from Value.
type Credential struct {
	Kind  CredentialKind `json:"kind"`
	Value string         `json:"value"`
}

func (c *Credential) IsZero() bool { return c == nil || c.Value == "" }

// Session is a stored login: the credential plus the cached user it authenticated.
type Session struct {
	Key        string
	Credential *Credential
	User       *User
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the session's validity window has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}
