package client

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/events"
)

const resubscribeDelay = 2 * time.Second

// SubscribeEvents streams daemon events until ctx is done. The connection is
// re-established when the daemon goes away. The returned channel is closed
// when ctx is done.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 16)
	dialer := &websocket.Dialer{
		NetDialContext:   dialUnix(c.socketPath),
		HandshakeTimeout: 5 * time.Second,
	}

	go func() {
		defer close(out)
		for {
			err := c.streamEvents(ctx, dialer, out)
			if ctx.Err() != nil {
				return
			}
			logrus.WithError(err).Debug("event stream ended, resubscribing")

			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}
		}
	}()

	return out
}

func (c *Client) streamEvents(ctx context.Context, dialer *websocket.Dialer, out chan<- events.Event) error {
	conn, _, err := dialer.DialContext(ctx, "ws://unix/ws", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
