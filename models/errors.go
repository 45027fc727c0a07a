package models

import "errors"

// Common errors
var (
	ErrEmptyMessage    = errors.New("message must carry text or a payload reference")
	ErrSendInFlight    = errors.New("a send is already in flight for this composer")
	ErrNotConnected    = errors.New("push connection is not established")
	ErrInvalidPayload  = errors.New("message carries more than one payload reference")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrPollNotFound    = errors.New("poll not found")
	ErrPollClosed      = errors.New("poll is no longer active")
	ErrNotSender       = errors.New("only the sender can modify a message")
	ErrNotCreator      = errors.New("only the poll creator can perform this action")
	ErrInvalidVote     = errors.New("invalid option selection for this poll")
)
