package services

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed(t *testing.T, max int) (*RunFeed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRunFeed(client, max), mr
}

func TestRunFeedPublishAndRecent(t *testing.T) {
	feed, mr := newTestFeed(t, 2)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	first := sampleRun("AAPL", base)
	second := sampleRun("MSFT", base.Add(time.Minute))
	third := sampleRun("TSLA", base.Add(2*time.Minute))
	require.NoError(t, feed.Publish(ctx, first))
	require.NoError(t, feed.Publish(ctx, second))
	require.NoError(t, feed.Publish(ctx, third))

	recent, err := feed.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "TSLA", recent[0].Ticker)
	assert.Equal(t, third.RunID.String(), recent[0].RunID)
	assert.Equal(t, "MSFT", recent[1].Ticker)
	assert.True(t, recent[0].EndedAt.Equal(third.EndedAt))

	items, err := mr.List(RecentRunsKey)
	require.NoError(t, err)
	assert.Len(t, items, 2, "list is trimmed to the feed size")
}

func TestRunFeedPublishNotifiesSubscribers(t *testing.T) {
	feed, _ := newTestFeed(t, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sub := feed.Redis.Subscribe(ctx, RunCompletedChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	run := sampleRun("AMZN", time.Now().UTC())
	require.NoError(t, feed.Publish(ctx, run))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"ticker":"AMZN"`)
}

func TestRunFeedDisabled(t *testing.T) {
	var feed *RunFeed
	assert.False(t, feed.Enabled())
	assert.NoError(t, feed.Publish(context.Background(), sampleRun("AAPL", time.Now())))

	recent, err := NewRunFeed(nil, 0).Recent(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, recent)
}

func TestRunFeedListen(t *testing.T) {
	feed, _ := newTestFeed(t, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ready := make(chan struct{})
	got := make(chan RunDigest, 1)
	done := make(chan error, 1)
	go func() {
		done <- feed.Listen(ctx, ready, func(d RunDigest) { got <- d })
	}()
	<-ready

	run := sampleRun("TSLA", time.Now().UTC())
	require.NoError(t, feed.Publish(ctx, run))

	select {
	case d := <-got:
		assert.Equal(t, "TSLA", d.Ticker)
		assert.Equal(t, run.RunID.String(), d.RunID)
	case <-ctx.Done():
		t.Fatal("no digest received")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunFeedListenDisabled(t *testing.T) {
	err := NewRunFeed(nil, 5).Listen(context.Background(), nil, func(RunDigest) {})
	assert.ErrorIs(t, err, ErrFeedDisabled)
}
