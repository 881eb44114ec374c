package util

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"
)

// ContextWithCancelOnSignal returns a context cancelled when one of signals is received, or
// when the returned cancel function is called.
// If the process is still running gracePeriod after a signal, it panics.
func ContextWithCancelOnSignal(
	ctx context.Context,
	gracePeriod time.Duration,
	signals ...os.Signal,
) (context.Context, context.CancelFunc) {

	ctx, cancel := context.WithCancel(ctx)
	caught := make(chan os.Signal, len(signals))
	signal.Notify(caught, signals...)

	go func() {
		defer signal.Stop(caught)
		select {
		case sig := <-caught:
			fmt.Fprintf(os.Stderr, "\nReceived %s, will exit in at most %s\n", sig, gracePeriod)
			cancel()
		case <-ctx.Done():
			return
		}
		time.Sleep(gracePeriod)
		panic(fmt.Errorf("main routine still running %s after signal, shutting down via panic",
			gracePeriod))
	}()

	return ctx, cancel
}
