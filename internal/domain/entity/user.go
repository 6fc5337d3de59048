package entity

import "time"

// AdminUser is an operator account for the control panel. The password
// hash never leaves the server.
type AdminUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewAdminUser validates the required fields.
func NewAdminUser(id, email, passwordHash string) (*AdminUser, error) {
	if id == "" {
		return nil, ErrInvalidUserID
	}
	if email == "" {
		return nil, ErrInvalidUserEmail
	}
	now := time.Now().UTC()
	return &AdminUser{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
