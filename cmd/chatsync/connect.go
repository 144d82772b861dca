package main

import "context"

type dialer interface {
	Connect(ctx context.Context) error
}

type identity interface {
	LoggedIn() bool
	Login(ctx context.Context, username, avatar string) error
	Resume(ctx context.Context, avatar string) error
}

// connector returns the /connect action. Only the first successful run logs
// in; later runs just revive the channel and leave the resync to the
// reconnect handler.
func connector(link dialer, id identity, username, avatar string, resume bool) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := link.Connect(ctx); err != nil {
			return err
		}
		if id.LoggedIn() {
			return nil
		}
		if resume {
			return id.Resume(ctx, avatar)
		}
		return id.Login(ctx, username, avatar)
	}
}
