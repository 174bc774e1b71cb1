package ambient

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-ambient/pkg/mqtt"
	"github.com/saaga0h/jeeves-ambient/pkg/postgres"
	"github.com/saaga0h/jeeves-ambient/pkg/redis"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeMessage implements mqtt.Message
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func jsonMessage(topic string, v interface{}) fakeMessage {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return fakeMessage{topic: topic, payload: payload}
}

type publishedMessage struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeMQTT implements mqtt.Client in memory
type fakeMQTT struct {
	mu           sync.Mutex
	connected    bool
	disconnected bool
	subs         map[string]mqtt.MessageHandler
	published    []publishedMessage
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeMQTT) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = handler
	return nil
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{topic: topic, retained: retained, payload: payload})
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) handler(topic string) (mqtt.MessageHandler, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.subs[topic]
	return h, ok
}

// contextMessages decodes everything published for a location
func (f *fakeMQTT) contextMessages(location string) []ContextMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ContextMessage
	for _, p := range f.published {
		if p.topic != mqtt.AmbientContextTopic(location) {
			continue
		}
		var msg ContextMessage
		if err := json.Unmarshal(p.payload, &msg); err != nil {
			panic(err)
		}
		out = append(out, msg)
	}
	return out
}

func (f *fakeMQTT) lastContext(location string) (ContextMessage, bool) {
	msgs := f.contextMessages(location)
	if len(msgs) == 0 {
		return ContextMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

// fakeRedis implements redis.Client in memory
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration
	closed  bool
	failing bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		ttls:    make(map[string]time.Duration),
	}
}

var errFakeRedis = errors.New("fake redis failure")

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errFakeRedis
	}
	f.strings[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", errFakeRedis
	}
	v, ok := f.strings[key]
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, redis.ErrNotFound)
	}
	return v, nil
}

func (f *fakeRedis) HSetAll(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errFakeRedis
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = fmt.Sprint(v)
	}
	if ttl > 0 {
		f.ttls[key] = ttl
	}
	return nil
}

func (f *fakeRedis) hashField(key, field string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.hashes[key][field]
	return v, ok
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRedis) stringValue(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	return v, ok
}

type historyRecord struct {
	location   string
	value      Value
	overridden bool
}

// fakeHistory implements HistoryRecorder
type fakeHistory struct {
	mu      sync.Mutex
	records []historyRecord
}

func (f *fakeHistory) Record(ctx context.Context, location string, v Value, overridden bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, historyRecord{location: location, value: v, overridden: overridden})
	return nil
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeResult implements sql.Result
type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type execCall struct {
	query string
	args  []interface{}
}

// fakePostgres implements postgres.Client
type fakePostgres struct {
	mu       sync.Mutex
	calls    []execCall
	err      error
	affected int64
}

func (f *fakePostgres) Connect(ctx context.Context) error { return nil }
func (f *fakePostgres) Disconnect() error                 { return nil }

func (f *fakePostgres) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult(f.affected), nil
}

func (f *fakePostgres) HealthCheck(ctx context.Context) (*postgres.HealthStatus, error) {
	return &postgres.HealthStatus{Connected: true}, nil
}

func (f *fakePostgres) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var (
	_ mqtt.Client     = (*fakeMQTT)(nil)
	_ redis.Client    = (*fakeRedis)(nil)
	_ postgres.Client = (*fakePostgres)(nil)
)
