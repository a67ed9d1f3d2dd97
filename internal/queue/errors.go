package queue

import "errors"

var (
	ErrInvalidTicket    = errors.New("ticket number must be positive")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrNoCallableTicket = errors.New("next ticket is cancelled and the one after it cannot be called")
	ErrQueueMoved       = errors.New("queue changed while calling, try again")
	ErrQueueClosed      = errors.New("queue is closed outside clinic hours")
	ErrConfirmRequired  = errors.New("reset must be confirmed")
)
