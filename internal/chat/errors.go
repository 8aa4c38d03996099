package chat

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyMessage      = errors.New("empty message")
	ErrMessageNotFound   = errors.New("message not found")
	ErrRecipientNotFound = errors.New("recipient not found")
)
