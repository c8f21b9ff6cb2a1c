package consumer

import (
	"context"
	"log/slog"
)

// Router dispatches messages to topic-specific handlers.
type Router struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{handlers: make(map[string]Handler), logger: logger}
}

// Register adds a handler for a topic.
func (r *Router) Register(topic string, handler Handler) {
	r.handlers[topic] = handler
}

// Topics lists the registered topics.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	return topics
}

// Handle routes the message; unknown topics are skipped.
func (r *Router) Handle(ctx context.Context, msg *Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil
	}
	return handler.Handle(ctx, msg)
}
