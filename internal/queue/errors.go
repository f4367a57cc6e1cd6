package queue

import "errors"

var ErrQueueClosed = errors.New("event queue closed")
