package sink

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeToken is an already-completed token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.isDone() }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

// fakeClient implements the parts of mqtt.Client the sink uses.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	connectToken *fakeToken
	open         bool
	published    []published
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectToken == nil {
		c.open = true
		return newToken(nil, true)
	}
	if c.connectToken.err == nil {
		c.open = true
	}
	return c.connectToken
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, retained, payload})
	// Never completes: Put must not wait on it.
	return newToken(nil, false)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.open = false
}

func TestMQTT_PutPublishesDecimalString(t *testing.T) {
	client := &fakeClient{}
	s := NewMQTTWithClient(MQTTOptions{TopicPrefix: "icarus/ups/"}, client)
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Put("input_voltage", 118))
	require.NoError(t, s.Put("rampdown", 1))

	require.Len(t, client.published, 2)
	assert.Equal(t, published{"icarus/ups/input_voltage", 0, false, "118"}, client.published[0])
	assert.Equal(t, published{"icarus/ups/rampdown", 0, false, "1"}, client.published[1])
}

func TestMQTT_Topic(t *testing.T) {
	assert.Equal(t, "ups/link", NewMQTTWithClient(MQTTOptions{TopicPrefix: "ups"}, nil).Topic("link"))
	assert.Equal(t, "link", NewMQTTWithClient(MQTTOptions{}, nil).Topic("link"))
}

func TestMQTT_PutBeforeConnect(t *testing.T) {
	client := &fakeClient{}
	s := NewMQTTWithClient(MQTTOptions{}, client)

	err := s.Put("link", 1)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSink))
	assert.Empty(t, client.published)
}

func TestMQTT_PutAfterConnectionDrops(t *testing.T) {
	client := &fakeClient{}
	s := NewMQTTWithClient(MQTTOptions{}, client)
	require.NoError(t, s.Connect(context.Background()))

	client.mu.Lock()
	client.open = false
	client.mu.Unlock()

	assert.Error(t, s.Put("link", 1))
}

func TestMQTT_ConnectError(t *testing.T) {
	boom := stderrors.New("not authorized")
	client := &fakeClient{connectToken: newToken(boom, true)}
	s := NewMQTTWithClient(MQTTOptions{Broker: "tcp://broker:1883"}, client)

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSink))
	assert.ErrorIs(t, err, boom)
}

func TestMQTT_ConnectTimeout(t *testing.T) {
	client := &fakeClient{connectToken: newToken(nil, false)}
	s := NewMQTTWithClient(MQTTOptions{Broker: "tcp://broker:1883", ConnectTimeout: 30 * time.Millisecond}, client)

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Timed out")
}

func TestMQTT_Close(t *testing.T) {
	client := &fakeClient{}
	s := NewMQTTWithClient(MQTTOptions{}, client)
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, client.disconnected)
	assert.Error(t, s.Put("link", 1))
}

func TestMQTT_FactoryUsedOnConnect(t *testing.T) {
	client := &fakeClient{}
	s := NewMQTT(MQTTOptions{Broker: "tcp://example:1883"})
	s.clientFactory = func(MQTTOptions) mqtt.Client { return client }

	require.NoError(t, s.Connect(context.Background()))
	assert.Same(t, client, s.client)
}

func TestCreateMQTTClient(t *testing.T) {
	c := createMQTTClient(MQTTOptions{Broker: "tcp://localhost:1883", ClientID: "upsmon-test", Username: "u", Password: "p"})
	require.NotNil(t, c)

	r := c.OptionsReader()
	assert.Equal(t, "upsmon-test", r.ClientID())
	assert.Equal(t, "u", r.Username())
	assert.False(t, c.IsConnected())
}

func TestLogSink(t *testing.T) {
	log := logger.NewBufferLogger()
	s := NewLog(log)

	require.NoError(t, s.Put("battery_soc", 97))
	require.NoError(t, s.Close())
	assert.True(t, log.Contains("info", "put battery_soc = 97"))

	assert.NotPanics(t, func() { _ = NewLog(nil).Put("x", 1) })
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	_, ok := m.Last("link")
	assert.False(t, ok)

	_ = m.Put("link", 1)
	_ = m.Put("link", 0)
	_ = m.Put("alarm_counter", 2)

	assert.Equal(t, []int{1, 0}, m.Values("link"))
	last, ok := m.Last("link")
	assert.True(t, ok)
	assert.Equal(t, 0, last)
	assert.Equal(t, []string{"alarm_counter", "link"}, m.Channels())

	assert.False(t, m.Closed())
	_ = m.Close()
	assert.True(t, m.Closed())
}

func TestFlagFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := NewFlagFile(fs, "/run/upsstatus.afd")

	require.NoError(t, f.Reset())
	data, err := afero.ReadFile(fs, "/run/upsstatus.afd")
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(data))
	raised, err := f.Raised()
	require.NoError(t, err)
	assert.False(t, raised)

	require.NoError(t, f.Signal())
	data, _ = afero.ReadFile(fs, "/run/upsstatus.afd")
	assert.Equal(t, "1\n", string(data))
	raised, _ = f.Raised()
	assert.True(t, raised)
	assert.Equal(t, "/run/upsstatus.afd", f.Path())
}

func TestFlagFile_WriteError(t *testing.T) {
	f := NewFlagFile(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/upsstatus.afd")
	err := f.Signal()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSink))
}

func TestNoopRampDown(t *testing.T) {
	var r RampDown = NoopRampDown{}
	assert.NoError(t, r.Reset())
	assert.NoError(t, r.Signal())
}
