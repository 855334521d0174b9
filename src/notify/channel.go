package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/dao-monitor/src/render"
)

// Channel delivers formatted messages for one destination kind.
type Channel interface {
	// Name is the destination kind served, e.g. "telegram".
	Name() string
	// Format renders the message in the markup the channel supports. The
	// result is also what send dedup compares.
	Format(msg render.Message) string
	Deliver(ctx context.Context, target string, msg render.Message, text string) error
}

// StreamChannel appends announcements to a redis stream for downstream
// consumers. The destination target is the stream name.
type StreamChannel struct {
	rdb    *redis.Client
	maxLen int64
}

// NewStreamChannel returns a channel that XADDs to rdb, trimming streams to
// roughly maxLen entries when maxLen is positive.
func NewStreamChannel(rdb *redis.Client, maxLen int64) *StreamChannel {
	return &StreamChannel{rdb: rdb, maxLen: maxLen}
}

func (s *StreamChannel) Name() string { return "redis" }

func (s *StreamChannel) Format(msg render.Message) string { return msg.Plain() }

func (s *StreamChannel) Deliver(ctx context.Context, stream string, msg render.Message, text string) error {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"kind":      string(msg.Kind),
			"vote_id":   msg.VoteID,
			"vote_type": string(msg.VoteType),
			"headline":  msg.Headline,
			"text":      text,
			"html":      msg.HTML(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

// WriterChannel prints plain text to a writer, stdout by default.
type WriterChannel struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterChannel writes to w, or os.Stdout when w is nil.
func NewWriterChannel(w io.Writer) *WriterChannel {
	if w == nil {
		w = os.Stdout
	}
	return &WriterChannel{w: w}
}

func (c *WriterChannel) Name() string { return "stdout" }

func (c *WriterChannel) Format(msg render.Message) string { return msg.Plain() }

func (c *WriterChannel) Deliver(_ context.Context, _ string, _ render.Message, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rule := strings.Repeat("-", 40)
	_, err := fmt.Fprintf(c.w, "%s\n%s\n", rule, text)
	return err
}
