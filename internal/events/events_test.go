package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Subscribe(ThemeSwitched, func(context.Context, Event) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(ThemeSwitched, func(context.Context, Event) error {
		order = append(order, "second")
		return nil
	})
	d.Subscribe(StockChanged, func(context.Context, Event) error {
		order = append(order, "other")
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), Event{Kind: ThemeSwitched}))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 2, d.Subscribers(ThemeSwitched))
}

func TestDispatchJoinsErrors(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	called := false
	d.Subscribe(CacheCleared, func(context.Context, Event) error { return boom })
	d.Subscribe(CacheCleared, func(context.Context, Event) error {
		called = true
		return nil
	})

	err := d.Dispatch(context.Background(), Event{Kind: CacheCleared})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, called, "later handlers still run")
}

func TestParseKindAndChoice(t *testing.T) {
	kind, err := ParseKind(" Content.Published ")
	require.NoError(t, err)
	assert.Equal(t, ContentPublished, kind)

	_, err = ParseKind("content.exploded")
	assert.Error(t, err)

	choice, err := ParseClearChoice("1")
	require.NoError(t, err)
	assert.Equal(t, ClearAll, choice)

	choice, err = ParseClearChoice("specific")
	require.NoError(t, err)
	assert.Equal(t, ClearSpecific, choice)

	_, err = ParseClearChoice("sometimes")
	assert.Error(t, err)
}

func TestContentPublishable(t *testing.T) {
	assert.True(t, Content{Status: "publish"}.Publishable())
	assert.True(t, Content{Status: "future"}.Publishable())
	assert.False(t, Content{Status: "draft"}.Publishable())
	assert.False(t, Content{Status: "trash"}.Publishable())
}

func TestKindsAreSortedAndParseable(t *testing.T) {
	kinds := Kinds()
	require.Len(t, kinds, len(knownKinds))
	for i, kind := range kinds {
		if i > 0 {
			assert.Less(t, string(kinds[i-1]), string(kind))
		}
		parsed, err := ParseKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}
}
