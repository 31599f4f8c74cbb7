package database

import (
	"context"
	"time"
)

const (
	DefaultDBTimeout = 10 * time.Second
	ShortDBTimeout   = 5 * time.Second // connection ping
)

// NewContext bounds a single database call by DefaultDBTimeout.
func NewContext() (context.Context, context.CancelFunc) {
	return NewContextWithTimeout(DefaultDBTimeout)
}

func NewContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// timeoutOr falls back to DefaultDBTimeout for unset config values.
func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultDBTimeout
	}
	return d
}
