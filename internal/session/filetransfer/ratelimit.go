package filetransfer

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// rateLimitedWriter wraps an io.Writer with rate limiting using a token
// bucket algorithm, limiting write throughput to bytesPerSecond.
type rateLimitedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// newRateLimitedWriter returns w unchanged if bytesPerSecond <= 0;
// otherwise every Write blocks until the token bucket has enough budget.
// Burst is one chunk (64 KiB) so a single chunk-sized write never stalls
// waiting on its own burst allowance.
func newRateLimitedWriter(ctx context.Context, w io.Writer, bytesPerSecond int64) io.Writer {
	if bytesPerSecond <= 0 {
		return w
	}
	const burst = 64 * 1024
	return &rateLimitedWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		ctx:     ctx,
	}
}

func (w *rateLimitedWriter) Write(p []byte) (int, error) {
	select {
	case <-w.ctx.Done():
		return 0, w.ctx.Err()
	default:
	}
	if err := w.limiter.WaitN(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}
