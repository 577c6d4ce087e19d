package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redhat-partner-ecosystem/scootershare/eventbus"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/geofence"
	"github.com/redhat-partner-ecosystem/scootershare/internal"
)

var enterITU = geofence.Event{
	Transition: geofence.Transition{
		Zone:      "ITU",
		Direction: geofence.Enter,
		Timestamp: time.UnixMilli(1683137969000),
	},
	State:      geofence.State{InsideAny: true},
	Coordinate: geo.Coordinate{Lat: 55.659359, Lon: 12.591005},
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []*kafka.Message
	err  error
}

func (p *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type publishCall struct {
	exchange string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  []string
	published []publishCall
	declErr   error
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declErr != nil {
		return c.declErr
	}
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishCall{exchange: exchange, msg: msg})
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func TestToWire(t *testing.T) {
	wire := ToWire(enterITU)
	assert.Equal(t, internal.GeofenceEvent{
		Zone:      "ITU",
		Direction: "ENTER",
		InsideAny: true,
		Timestamp: 1683137969000,
		Lat:       55.659359,
		Long:      12.591005,
	}, wire)
}

func TestKafkaSink(t *testing.T) {
	p := &fakeProducer{}
	sink := NewKafkaSink(p, "geofence")

	wire := ToWire(enterITU)
	require.NoError(t, sink.Send(context.TODO(), &wire))
	require.Len(t, p.msgs, 1)

	msg := p.msgs[0]
	assert.Equal(t, "geofence", *msg.TopicPartition.Topic)
	assert.Equal(t, kafka.PartitionAny, msg.TopicPartition.Partition)
	assert.Equal(t, []byte("ITU"), msg.Key)

	var got internal.GeofenceEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, wire, got)

	p.err = errors.New("queue full")
	assert.Error(t, sink.Send(context.TODO(), &wire))

	ctx, cancel := context.WithCancel(context.TODO())
	cancel()
	assert.ErrorIs(t, sink.Send(ctx, &wire), context.Canceled)
}

func TestRabbitSink(t *testing.T) {
	ch := &fakeChannel{}
	sink, err := NewRabbitSink(ch)
	require.NoError(t, err)
	assert.Equal(t, []string{"scooter.events:fanout"}, ch.declared)

	wire := ToWire(enterITU)
	require.NoError(t, sink.Send(context.TODO(), &wire))
	require.Len(t, ch.published, 1)
	assert.Equal(t, ExchangeName, ch.published[0].exchange)
	assert.Equal(t, "application/json", ch.published[0].msg.ContentType)
	assert.Equal(t, int64(1683137969000), ch.published[0].msg.Timestamp.UnixMilli())

	_, err = NewRabbitSink(&fakeChannel{declErr: errors.New("access refused")})
	assert.Error(t, err)
}

func TestAttachForwardsBusEvents(t *testing.T) {
	bus := eventbus.New[geofence.Event]()
	defer bus.Close()

	ch := &fakeChannel{}
	sink, err := NewRabbitSink(ch)
	require.NoError(t, err)

	sub := Attach(bus, sink)
	defer sub.Unsubscribe()

	exit := enterITU
	exit.Direction = geofence.Exit
	exit.State.InsideAny = false

	assert.Equal(t, 1, bus.Publish(enterITU))
	assert.Equal(t, 1, bus.Publish(exit))

	assert.Eventually(t, func() bool { return ch.count() == 2 }, time.Second, 5*time.Millisecond)

	var first, second internal.GeofenceEvent
	require.NoError(t, json.Unmarshal(ch.published[0].msg.Body, &first))
	require.NoError(t, json.Unmarshal(ch.published[1].msg.Body, &second))
	assert.Equal(t, "ENTER", first.Direction)
	assert.Equal(t, "EXIT", second.Direction)
	assert.False(t, second.InsideAny)
}

func TestAttachSurvivesSinkErrors(t *testing.T) {
	bus := eventbus.New[geofence.Event]()
	defer bus.Close()

	p := &fakeProducer{err: errors.New("broker down")}
	sub := Attach(bus, NewKafkaSink(p, "geofence"))

	bus.Publish(enterITU)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, sub.Active())

	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()

	bus.Publish(enterITU)
	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.msgs) == 1
	}, time.Second, 5*time.Millisecond)
}
