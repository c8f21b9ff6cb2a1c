package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identrisk/internal/events"
)

func TestPublisherKeepsOrderPerAggregate(t *testing.T) {
	p := NewPublisher()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, p.Publish(ctx, events.New(events.TypeDocumentAccepted, events.AggregateVerification, "v1", now, nil)))
	require.NoError(t, p.Publish(ctx, events.New(events.TypeFraudScored, events.AggregateFraudScore, "t1", now, nil)))
	require.NoError(t, p.Publish(ctx, events.New(events.TypeVerificationCompleted, events.AggregateVerification, "v1", now.Add(time.Second), nil)))

	assert.Len(t, p.Events(), 3)
	v1 := p.ForAggregate("v1")
	require.Len(t, v1, 2)
	assert.Equal(t, events.TypeDocumentAccepted, v1[0].Type)
	assert.Equal(t, events.TypeVerificationCompleted, v1[1].Type)
	assert.Empty(t, p.ForAggregate("missing"))
}
