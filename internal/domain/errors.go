package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNotParticipant  = errors.New("not a conversation participant")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBlacklisted     = errors.New("openid is blacklisted")
	ErrSelfMessage     = errors.New("cannot message yourself")
)
