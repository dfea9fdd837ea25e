package model

import "time"

// Credential is the sign-in record of one user. Its ID is the user ID used as the
// owner key of every care collection.
type Credential struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash,omitempty"`
	Provider     string    `json:"provider" bson:"provider"`
	Subject      string    `json:"-" bson:"subject,omitempty"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// ProviderPassword marks credentials created by SignUp.
const ProviderPassword = "password"

// ResetCode is a one-time password reset code.
type ResetCode struct {
	Code      string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Expired reports whether the code is no longer usable at now.
func (r ResetCode) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
