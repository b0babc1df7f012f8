package usecase

import "errors"

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrAlreadyExists      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordTooLong    = errors.New("password is too long")
)
