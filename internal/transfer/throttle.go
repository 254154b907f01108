package transfer

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Throttle limits the byte rate of transfer streams. A nil Throttle does not limit.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a throttle for bytesPerSecond, or nil when it is not positive
func NewThrottle(bytesPerSecond int64) *Throttle {
	if bytesPerSecond <= 0 {
		return nil
	}
	limit := int(bytesPerSecond)
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(limit), limit)}
}

// Reader wraps r so reads wait for the limiter. ctx aborts the wait.
func (t *Throttle) Reader(ctx context.Context, r io.Reader) io.Reader {
	if t == nil {
		return &ctxReader{ctx: ctx, r: r}
	}
	return &throttledReader{ctx: ctx, r: r, limiter: t.limiter}
}

type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	if err := tr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := tr.r.Read(p)
	if n > 0 {
		if waitErr := tr.waitN(n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (tr *throttledReader) waitN(n int) error {
	remaining := n
	for remaining > 0 {
		burst := tr.limiter.Burst()
		if burst <= 0 {
			burst = 1
		}
		step := remaining
		if step > burst {
			step = burst
		}
		if err := tr.limiter.WaitN(tr.ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	return nil
}

// ctxReader stops a copy when its context is cancelled
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// copyStream copies src to dst through the throttle
func copyStream(ctx context.Context, t *Throttle, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, t.Reader(ctx, src))
}
