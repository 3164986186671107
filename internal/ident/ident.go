// Package ident generates the compact ids used for bots and positions.
package ident

import (
	"sync/atomic"
	"time"

	"github.com/jxskiss/base62"
)

var seq uint64

// NewPositionID returns a short, sortable-enough position id. Uniqueness
// within one process is guaranteed by the sequence component; the
// timestamp keeps ids from colliding across restarts.
func NewPositionID() string {
	n := atomic.AddUint64(&seq, 1)
	v := uint64(time.Now().UnixMilli())<<16 | (n & 0xffff)
	return string(base62.FormatUint(v))
}

// NewBotID returns an id for a bot instance.
func NewBotID() string {
	return "bot-" + string(base62.FormatUint(uint64(time.Now().UnixNano())))
}
