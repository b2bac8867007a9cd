package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watzon/cubeglobe-bot/bot/config"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type publish struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient embeds the interface so only the methods used are implemented.
type fakeClient struct {
	mqtt.Client
	published    []publish
	token        *fakeToken
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, publish{topic, qos, retained, payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestNew_DisabledIsNop(t *testing.T) {
	n, err := New(config.MQTTConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, n)
	assert.NoError(t, n.Notify(context.Background(), Event{ID: 1}))
	n.Close()
}

func TestMQTTNotifier_Notify(t *testing.T) {
	client := &fakeClient{token: newToken(nil, true)}
	n := newMQTTNotifier(client, "bots/cubeglobe", zap.NewNop())

	posted := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	err := n.Notify(context.Background(), Event{
		ID:       12,
		Seed:     99,
		StatusID: "101",
		URL:      "https://social.example/@bot/101",
		PostedAt: posted,
	})
	require.NoError(t, err)

	require.Len(t, client.published, 1)
	p := client.published[0]
	assert.Equal(t, "bots/cubeglobe", p.topic)
	assert.Equal(t, byte(1), p.qos)
	assert.False(t, p.retained)

	var ev Event
	require.NoError(t, json.Unmarshal(p.payload, &ev))
	assert.Equal(t, uint32(12), ev.ID)
	assert.Equal(t, int64(99), ev.Seed)
	assert.Equal(t, "101", ev.StatusID)
	assert.True(t, posted.Equal(ev.PostedAt))

	n.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTNotifier_PublishError(t *testing.T) {
	client := &fakeClient{token: newToken(errors.New("not connected"), true)}
	n := newMQTTNotifier(client, "bots/cubeglobe", zap.NewNop())

	err := n.Notify(context.Background(), Event{ID: 1})
	assert.ErrorContains(t, err, "not connected")
}

func TestMQTTNotifier_ContextCancelled(t *testing.T) {
	client := &fakeClient{token: newToken(nil, false)}
	n := newMQTTNotifier(client, "bots/cubeglobe", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, Event{ID: 1}), context.Canceled)
}
