package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	sent         []published
	err          error
	pending      bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.pending {
		return &fakeToken{done: make(chan struct{})}
	}
	return newToken(c.err)
}

func (c *fakeClient) Disconnect(uint)   { c.disconnected = true }
func (c *fakeClient) IsConnected() bool { return !c.disconnected }

func TestPublishJSON(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "cyberguard/hotspots/", 1, nil)

	err := p.PublishJSON(context.Background(), "mumbai|maharashtra", map[string]int{"count": 12})
	require.NoError(t, err)
	require.Len(t, fc.sent, 1)
	assert.Equal(t, "cyberguard/hotspots/mumbai|maharashtra", fc.sent[0].topic)
	assert.Equal(t, byte(1), fc.sent[0].qos)

	var body map[string]int
	require.NoError(t, json.Unmarshal(fc.sent[0].payload, &body))
	assert.Equal(t, 12, body["count"])
}

func TestPublishJSONBrokerError(t *testing.T) {
	fc := &fakeClient{err: errors.New("not authorized")}
	p := newPublisher(fc, "alerts", 0, nil)

	err := p.PublishJSON(context.Background(), "x", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}

func TestPublishJSONRespectsContext(t *testing.T) {
	fc := &fakeClient{pending: true}
	p := newPublisher(fc, "alerts", 5, nil)
	assert.Equal(t, byte(1), p.qos)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, p.PublishJSON(ctx, "x", struct{}{}))
}

func TestCloseDisconnects(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "", 1, nil)
	assert.Equal(t, "x", p.Topic("/x/"))
	assert.True(t, p.Connected())
	p.Close()
	assert.False(t, p.Connected())
}
