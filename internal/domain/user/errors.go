package user

import "errors"

var (
	ErrNotFound     = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already used")
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenExpired  = errors.New("refresh token expired")
)
