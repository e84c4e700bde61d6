package models

// LoginRequest is the body of POST /api/users/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Registration is the body of POST /api/users/register.
type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     Role   `json:"role" validate:"required,oneof=ADMIN SUBSCRIBER"`
}

// UserUpdate is the body of PUT /api/users/:id. Empty fields are omitted.
type UserUpdate struct {
	Name     string `json:"name,omitempty" validate:"omitempty,max=100"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password,omitempty" validate:"omitempty,min=6"`
}

// WalletTopUp is the body of POST /api/users/:id/wallet/add.
type WalletTopUp struct {
	Amount Money `json:"amount" validate:"gt=0"`
}

// CopiesUpdate is the body of PUT /api/books/:id/copies.
type CopiesUpdate struct {
	Copies int `json:"copies" validate:"gte=0"`
}
