// Package feed mirrors the public side of a live session into redis: the latest
// position under a key and every multicast event on a pub/sub channel.
// It is write-only from the coordinator's point of view and never restores state.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-liveboard/internal/obslog"
	"github.com/park285/cheese-liveboard/pkg/livedto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultChannel = "liveboard:events"
	queueSize      = 256
	opTimeout      = 3 * time.Second
)

// Event is the published form of a multicast envelope.
type Event struct {
	Seq       int64                `json:"seq"`
	SessionID string               `json:"session_id"`
	Type      livedto.Kind         `json:"type"`
	FEN       string               `json:"fen,omitempty"`
	Move      *livedto.MoveRequest `json:"move,omitempty"`
	At        time.Time            `json:"at"`
}

type Feed struct {
	rdb       *redis.Client
	channel   string
	sessionID string

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Open connects to redisURL (redis:// or rediss://) and starts the publisher.
func Open(ctx context.Context, redisURL, channel, sessionID string) (*Feed, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for feed")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, channel, sessionID), nil
}

func New(rdb *redis.Client, channel, sessionID string) *Feed {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	f := &Feed{
		rdb:       rdb,
		channel:   channel,
		sessionID: sessionID,
		events:    make(chan Event, queueSize),
		done:      make(chan struct{}),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

func (f *Feed) keyPosition() string { return "liveboard:" + f.sessionID + ":position" }
func (f *Feed) keySeq() string      { return "liveboard:" + f.sessionID + ":seq" }

// Unicast traffic is private to one connection and is not mirrored.
func (f *Feed) Unicast(string, livedto.Envelope) {}

// Multicast queues env for publishing. It never blocks; when redis falls behind
// events are dropped and logged.
func (f *Feed) Multicast(env livedto.Envelope) {
	ev := Event{SessionID: f.sessionID, Type: env.Type, FEN: env.FEN, Move: env.Move, At: time.Now().UTC()}
	select {
	case <-f.done:
		return
	default:
	}
	select {
	case f.events <- ev:
	default:
		obslog.L().Warn("feed_dropped", zap.String("type", string(env.Type)))
	}
}

func (f *Feed) run() {
	defer f.wg.Done()
	for {
		select {
		case ev := <-f.events:
			f.publish(ev)
		case <-f.done:
			// flush what is already queued
			for {
				select {
				case ev := <-f.events:
					f.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (f *Feed) publish(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	seq, err := f.rdb.Incr(ctx, f.keySeq()).Result()
	if err != nil {
		obslog.L().Error("feed_publish_error", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	ev.Seq = seq
	raw, err := json.Marshal(ev)
	if err != nil {
		obslog.L().Error("feed_encode_error", zap.Error(err))
		return
	}
	_, err = f.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if ev.FEN != "" {
			p.Set(ctx, f.keyPosition(), ev.FEN, 0)
		}
		p.Publish(ctx, f.channel, raw)
		return nil
	})
	if err != nil {
		obslog.L().Error("feed_publish_error", zap.String("type", string(ev.Type)), zap.Int64("seq", seq), zap.Error(err))
	}
}

// Latest returns the last mirrored position, or "" when none was published yet.
func (f *Feed) Latest(ctx context.Context) (string, error) {
	fen, err := f.rdb.Get(ctx, f.keyPosition()).Result()
	if err == redis.Nil {
		return "", nil
	}
	return fen, err
}

// Subscribe delivers published events to fn until ctx is done.
func (f *Feed) Subscribe(ctx context.Context, fn func(Event)) error {
	return Subscribe(ctx, f.rdb, f.channel, fn)
}

// Subscribe listens on channel with its own client; used by watchers that do not publish.
func Subscribe(ctx context.Context, rdb *redis.Client, channel string, fn func(Event)) error {
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				obslog.L().Warn("feed_bad_event", zap.Error(err))
				continue
			}
			fn(ev)
		}
	}
}

// Close flushes queued events and closes the redis client.
func (f *Feed) Close() error {
	if f == nil {
		return nil
	}
	f.stopOnce.Do(func() { close(f.done) })
	f.wg.Wait()
	return f.rdb.Close()
}
