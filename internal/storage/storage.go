package storage

import "errors"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrTokenTaken   = errors.New("token already in use")
)
