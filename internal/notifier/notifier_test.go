package notifier_test

import (
	"context"
	"errors"
	"testing"

	"storybook-server/internal/domain"
	"storybook-server/internal/notifier"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_PublishRunsHandlersInOrder(t *testing.T) {
	reg := notifier.New(zap.NewNop())
	var calls []string

	reg.Subscribe(domain.EventGenerationSubmitted, func(ctx context.Context, e domain.Event) error {
		calls = append(calls, "first")
		return nil
	})
	reg.Subscribe(domain.EventGenerationSubmitted, func(ctx context.Context, e domain.Event) error {
		calls = append(calls, "second")
		return nil
	})
	reg.Subscribe(domain.EventGenerationFailed, func(ctx context.Context, e domain.Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := reg.Publish(context.Background(), domain.GenerationSubmitted{GenerationID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRegistry_HandlerErrorPropagates(t *testing.T) {
	reg := notifier.New(zap.NewNop())
	boom := errors.New("boom")
	secondCalled := false

	reg.Subscribe(domain.EventGenerationFailed, func(ctx context.Context, e domain.Event) error { return boom })
	reg.Subscribe(domain.EventGenerationFailed, func(ctx context.Context, e domain.Event) error {
		secondCalled = true
		return nil
	})

	err := reg.Publish(context.Background(), domain.GenerationFailed{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, secondCalled)
}

func TestRegistry_Unsubscribe(t *testing.T) {
	reg := notifier.New(zap.NewNop())
	called := 0
	id := reg.Subscribe(domain.EventGenerationCompleted, func(ctx context.Context, e domain.Event) error {
		called++
		return nil
	})

	assert.True(t, reg.Unsubscribe(id))
	assert.False(t, reg.Unsubscribe(id))
	assert.Equal(t, 0, reg.HandlerCount(domain.EventGenerationCompleted))

	require.NoError(t, reg.Publish(context.Background(), domain.GenerationCompleted{}))
	assert.Zero(t, called)
}

func TestRegistry_PublishManyPreservesOrder(t *testing.T) {
	reg := notifier.New(zap.NewNop())
	var names []string
	record := func(ctx context.Context, e domain.Event) error {
		names = append(names, e.EventName())
		return nil
	}
	reg.Subscribe(domain.EventGenerationSubmitted, record)
	reg.Subscribe(domain.EventGenerationCompleted, record)
	reg.Subscribe(domain.EventEntitlementChanged, record)

	err := reg.PublishMany(context.Background(),
		domain.EntitlementChanged{},
		domain.GenerationSubmitted{},
		domain.GenerationCompleted{},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		domain.EventEntitlementChanged,
		domain.EventGenerationSubmitted,
		domain.EventGenerationCompleted,
	}, names)
}

func TestRegistry_Clear(t *testing.T) {
	reg := notifier.New(zap.NewNop())
	reg.Subscribe(domain.EventGenerationSubmitted, func(ctx context.Context, e domain.Event) error { return nil })
	reg.Clear()
	assert.Equal(t, 0, reg.HandlerCount(domain.EventGenerationSubmitted))
}
