// Package bg runs the telegram client loop in the background, so that the
// rest of the program can make calls against it synchronously.
package bg

import (
	"context"
	"errors"
)

// Client abstracts the telegram client.
type Client interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
}

// StopFunc closes the Client and waits until Run returns.
type StopFunc func() error

// Connect blocks until the client is connected, calling Run internally in
// background.  The returned StopFunc terminates the session.
func Connect(ctx context.Context, client Client) (StopFunc, error) {
	ctx, cancel := context.WithCancel(ctx)

	initDone := make(chan struct{})
	errC := make(chan error, 1)
	go func() {
		defer close(errC)
		errC <- client.Run(ctx, func(ctx context.Context) error {
			close(initDone)
			<-ctx.Done()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		})
	}()

	select {
	case <-ctx.Done(): // cancelled before init completed
		cancel()
		return func() error { return nil }, ctx.Err()
	case err := <-errC: // startup failure
		cancel()
		return func() error { return nil }, err
	case <-initDone:
	}

	return func() error {
		cancel()
		return <-errC
	}, nil
}
