package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	walletbridge "github.com/x402wallet/walletbridge"
)

// WithTimeout runs op under a deadline. On timeout the call fails with
// ErrTimeout but the operation itself keeps running; its late result is
// discarded. Cancellation is client-side only — a wallet prompt already on
// screen cannot be withdrawn.
func WithTimeout(ctx context.Context, d time.Duration, op func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := op(opCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", walletbridge.ErrTimeout, d)
	}
}
