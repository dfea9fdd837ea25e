package model

import "time"

// Session is what a successful sign-in hands back to the caller.
type Session struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
