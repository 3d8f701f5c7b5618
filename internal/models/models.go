package models

import "time"

type User struct {
	ID             int64
	Email          string
	Name           string
	College        string
	Branch         string
	Year           string
	Token          string
	IsVerified     bool
	TokenCreatedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EmailJob is the message published to the mail queue for every
// verification email. The mail_sender worker consumes these.
type EmailJob struct {
	Email      string `json:"to"`
	Name       string `json:"name"`
	Token      string `json:"token"`
	ExpiryDays int    `json:"expiry_days"`
}
