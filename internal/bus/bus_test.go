package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ultracontext/internal/compress"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := New(Config{Embedded: true, Port: -1}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe(SubjectAll)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	type ping struct {
		Name string `json:"name"`
	}
	require.NoError(t, b.Publish("uc.ingest.file", ping{Name: "sess-1"}))

	select {
	case msg := <-sub.C:
		assert.Equal(t, "uc.ingest.file", msg.Subject)
		var got ping
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "sess-1", got.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestCompressionDonePublishes(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe(SubjectCompressDone)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	b.CompressionDone(context.Background(), compress.Event{
		Operation:   "compress",
		MessagesIn:  10,
		MessagesOut: 4,
	})

	select {
	case msg := <-sub.C:
		var ev compress.Event
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, "compress", ev.Operation)
		assert.Equal(t, 10, ev.MessagesIn)
		assert.Equal(t, 4, ev.MessagesOut)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for compression event")
	}
}

func TestPublishRejectsUnmarshalable(t *testing.T) {
	b := newTestBus(t)
	err := b.Publish("uc.test", make(chan int))
	assert.ErrorContains(t, err, "marshal")
}

func TestClientURLReachable(t *testing.T) {
	b := newTestBus(t)
	url := b.ClientURL()
	assert.Contains(t, url, "nats://")

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	assert.True(t, nc.IsConnected())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, "127.0.0.1", cfg.host())
	assert.Equal(t, defaultPort, cfg.port())
	assert.Equal(t, nats.DefaultURL, cfg.url())
}
