package consumer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterDispatchesByTopic(t *testing.T) {
	router := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var seen []string
	router.Register("transaction.events", HandlerFunc(func(_ context.Context, msg *Message) error {
		seen = append(seen, string(msg.Key))
		return nil
	}))

	ctx := context.Background()
	assert.NoError(t, router.Handle(ctx, &Message{Topic: "transaction.events", Key: []byte("user-1")}))
	assert.NoError(t, router.Handle(ctx, &Message{Topic: "unknown", Key: []byte("user-2")}))

	assert.Equal(t, []string{"user-1"}, seen)
	assert.ElementsMatch(t, []string{"transaction.events"}, router.Topics())
}
