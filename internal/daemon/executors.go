package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"thermopool/internal/pool"
)

// builtinExecutors returns the task kinds poold ships with. They exist for
// smoke-testing a deployment and for scheduled keepalive work; real
// deployments embed the pool and register their own.
func builtinExecutors() map[string]pool.Executor {
	return map[string]pool.Executor{
		"echo":  echoTask,
		"sleep": sleepTask,
		"hash":  hashTask,
	}
}

func echoTask(_ context.Context, t pool.Task) (any, error) {
	return string(t.Payload), nil
}

// sleepTask blocks for the duration in the payload (default 1s), honoring
// cancellation and the task deadline.
func sleepTask(ctx context.Context, t pool.Task) (any, error) {
	d := time.Second
	if s := strings.TrimSpace(string(t.Payload)); s != "" {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("sleep: bad duration %q: %w", s, err)
		}
		d = parsed
	}
	select {
	case <-time.After(d):
		return d.String(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hashTask burns CPU: it repeatedly hashes the payload and returns the final
// digest. The iteration count makes it a useful synthetic load generator.
func hashTask(ctx context.Context, t pool.Task) (any, error) {
	const iterations = 100_000

	sum := sha256.Sum256(t.Payload)
	for i := 1; i < iterations; i++ {
		if i%10_000 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		sum = sha256.Sum256(sum[:])
	}
	return hex.EncodeToString(sum[:]), nil
}
