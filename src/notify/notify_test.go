package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	target string
	text   string
}

type fakeChannel struct {
	name string
	fail map[string]error

	mu   sync.Mutex
	sent []sent
}

func (f *fakeChannel) Name() string                     { return f.name }
func (f *fakeChannel) Format(msg render.Message) string { return msg.Plain() }

func (f *fakeChannel) Deliver(_ context.Context, target string, _ render.Message, text string) error {
	if err := f.fail[target]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{target: target, text: text})
	return nil
}

func (f *fakeChannel) targets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.target)
	}
	return out
}

func message(id int64) render.Message {
	return render.Message{
		Kind:     render.KindNewProposal,
		VoteID:   id,
		VoteType: gov.VoteTypeOwnership,
		Headline: "🗞️ New Proposal for Ownership",
		Body:     fmt.Sprintf("Add gauge %d", id),
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestParseDestinations(t *testing.T) {
	dests, err := ParseDestinations("telegram:-1001, discord:42 ; telegram:-1001 stdout:")
	require.NoError(t, err)
	assert.Equal(t, []Destination{
		{Kind: "telegram", Target: "-1001"},
		{Kind: "discord", Target: "42"},
		{Kind: "stdout"},
	}, dests)

	_, err = ParseDestinations("telegram")
	assert.Error(t, err)
	_, err = ParseDestinations("discord:")
	assert.Error(t, err)

	empty, err := ParseDestinations("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDispatcherDeliversToEveryDestination(t *testing.T) {
	tg := &fakeChannel{name: "telegram"}
	dc := &fakeChannel{name: "discord"}
	d, err := NewDispatcher(
		[]Destination{{"telegram", "a"}, {"telegram", "b"}, {"discord", "c"}},
		[]Channel{tg, dc}, NewMemoryCache(DefaultSendTTL),
	)
	require.NoError(t, err)
	defer d.Close()

	res := d.Emit(context.Background(), message(1))
	assert.Equal(t, Result{Delivered: 3}, res)
	assert.ElementsMatch(t, []string{"a", "b"}, tg.targets())
	assert.Equal(t, []string{"c"}, dc.targets())
}

func TestDispatcherWithSingleWorkerStillReachesEveryDestination(t *testing.T) {
	tg := &fakeChannel{name: "telegram"}
	d, err := NewDispatcher(
		[]Destination{{"telegram", "a"}, {"telegram", "b"}, {"telegram", "c"}},
		[]Channel{tg}, NewMemoryCache(DefaultSendTTL), WithConcurrency(1),
	)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, Result{Delivered: 3}, d.Emit(context.Background(), message(3)))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, tg.targets())
}

func TestDispatcherSuppressesIdenticalSendsWithinTTL(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	tg := &fakeChannel{name: "telegram"}
	d, err := NewDispatcher([]Destination{{"telegram", "a"}}, []Channel{tg},
		NewMemoryCache(30*time.Second).WithClock(c.now))
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	assert.Equal(t, Result{Delivered: 1}, d.Emit(ctx, message(1)))

	c.advance(10 * time.Second)
	assert.Equal(t, Result{Suppressed: 1}, d.Emit(ctx, message(1)))
	assert.Equal(t, Result{Delivered: 1}, d.Emit(ctx, message(2)), "different text is not a duplicate")

	c.advance(21 * time.Second)
	assert.Equal(t, Result{Delivered: 1}, d.Emit(ctx, message(1)), "entry expired after the window")
	assert.Len(t, tg.targets(), 3)
}

func TestDispatcherIsolatesFailingDestination(t *testing.T) {
	tg := &fakeChannel{name: "telegram", fail: map[string]error{"bad": errors.New("chat not found")}}
	cache := NewMemoryCache(DefaultSendTTL)
	d, err := NewDispatcher([]Destination{{"telegram", "bad"}, {"telegram", "good"}}, []Channel{tg}, cache)
	require.NoError(t, err)
	defer d.Close()

	res := d.Emit(context.Background(), message(7))
	assert.Equal(t, Result{Delivered: 1, Failed: 1}, res)
	assert.Equal(t, []string{"good"}, tg.targets())

	// The failed reservation was released, so a retry goes out once the destination recovers.
	delete(tg.fail, "bad")
	res = d.Emit(context.Background(), message(7))
	assert.Equal(t, Result{Delivered: 1, Suppressed: 1}, res)
	assert.ElementsMatch(t, []string{"good", "bad"}, tg.targets())
}

func TestNewDispatcherRejectsUnknownKind(t *testing.T) {
	_, err := NewDispatcher([]Destination{{"slack", "x"}}, []Channel{&fakeChannel{name: "telegram"}}, nil)
	assert.Error(t, err)
}

func TestSendKeyDependsOnDestinationAndText(t *testing.T) {
	a := Destination{"telegram", "1"}
	b := Destination{"telegram", "2"}
	assert.Equal(t, SendKey(a, "x"), SendKey(a, "x"))
	assert.NotEqual(t, SendKey(a, "x"), SendKey(b, "x"))
	assert.NotEqual(t, SendKey(a, "x"), SendKey(a, "y"))
}

func TestMemoryCacheSweepsExpiredEntries(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	cache := NewMemoryCache(time.Second).WithClock(c.now)
	ctx := context.Background()

	ok, err := cache.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = cache.Reserve(ctx, "k2")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())

	c.advance(time.Second)
	assert.Equal(t, 0, cache.Len())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCache(t *testing.T) {
	mr, rdb := newRedis(t)
	cache := NewRedisCache(rdb, 30*time.Second, "")
	ctx := context.Background()

	ok, err := cache.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(31 * time.Second)
	ok, err = cache.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.Release(ctx, "k"))
	assert.False(t, mr.Exists("dao-monitor:sent:k"))
}

func TestStreamChannelAppendsEntry(t *testing.T) {
	_, rdb := newRedis(t)
	ch := NewStreamChannel(rdb, 0)
	d, err := NewDispatcher([]Destination{{"redis", "dao.announcements"}}, []Channel{ch}, nil)
	require.NoError(t, err)
	defer d.Close()

	res := d.Emit(context.Background(), message(11))
	require.Equal(t, Result{Delivered: 1}, res)

	entries, err := rdb.XRange(context.Background(), "dao.announcements", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "11", entries[0].Values["vote_id"])
	assert.Equal(t, "new_proposal", entries[0].Values["kind"])
	assert.Contains(t, entries[0].Values["text"], "Add gauge")
}

func TestWriterChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewWriterChannel(&buf)
	require.NoError(t, ch.Deliver(context.Background(), "", message(1), ch.Format(message(1))))
	assert.Contains(t, buf.String(), "🗞️ New Proposal for Ownership\n\nAdd gauge")
}
