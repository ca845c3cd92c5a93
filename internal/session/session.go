// Package session carries the id of the current analyze cycle and the
// connection being mangled through contexts, and counts the packets seen on
// each TCP connection.
package session

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"
)

type (
	cycleIDCtxKey struct{}
	flowCtxKey    struct{}
)

// WithCycleID tags ctx with a fresh cycle id unless it already has one.
func WithCycleID(ctx context.Context) context.Context {
	if _, ok := CycleIDFrom(ctx); ok {
		return ctx
	}

	return context.WithValue(ctx, cycleIDCtxKey{}, newCycleID())
}

func CycleIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(cycleIDCtxKey{}).(string)
	return id, ok
}

func WithFlow(ctx context.Context, k Key) context.Context {
	return context.WithValue(ctx, flowCtxKey{}, k)
}

func FlowFrom(ctx context.Context) (Key, bool) {
	k, ok := ctx.Value(flowCtxKey{}).(Key)
	return k, ok
}

// newCycleID returns 16 lowercase hex characters.
func newCycleID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], rand.Uint64())
	return hex.EncodeToString(b[:])
}
