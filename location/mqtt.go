package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/internal"
)

const (
	// LocationTopic is where a device pushes its fixes, %s is the device id
	LocationTopic = "scooter/%s/location"

	// AnyDevice subscribes to the fixes of every device
	AnyDevice = "+"
)

// MQTTProvider receives fixes a device publishes on LocationTopic
type MQTTProvider struct {
	client mqtt.Client
	topic  string

	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	onFix    func(geo.Fix)
	onError  func(error)
}

func NewMQTTProvider(client mqtt.Client, device string) *MQTTProvider {
	if device == "" {
		device = AnyDevice
	}
	return &MQTTProvider{
		client: client,
		topic:  fmt.Sprintf(LocationTopic, device),
	}
}

func (p *MQTTProvider) Topic() string {
	return p.topic
}

// CheckPermission connects the client if needed. A broker that refuses the
// credentials denies permission, any other connect failure is ErrUnavailable.
func (p *MQTTProvider) CheckPermission(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	if !waitToken(ctx, token) {
		return fmt.Errorf("%w: mqtt connect: %w", ErrUnavailable, ctx.Err())
	}
	if err := token.Error(); err != nil {
		if refused(err) {
			return fmt.Errorf("%w: mqtt connect: %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: mqtt connect: %w", ErrUnavailable, err)
	}
	return nil
}

// refused reports whether the broker rejected the client rather than being out of reach
func refused(err error) bool {
	return errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised) ||
		errors.Is(err, packets.ErrorRefusedIDRejected)
}

func (p *MQTTProvider) Subscribe(ctx context.Context, interval time.Duration, onFix func(geo.Fix), onError func(error)) error {
	p.mu.Lock()
	p.interval = interval
	p.last = time.Time{}
	p.onFix = onFix
	p.onError = onError
	p.mu.Unlock()

	token := p.client.Subscribe(p.topic, internal.AtLeastOnce, p.handleMessage)
	if !waitToken(ctx, token) {
		return fmt.Errorf("mqtt subscribe '%s': %w", p.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe '%s': %w", p.topic, err)
	}

	log.Debug().Str("topic", p.topic).Msg("subscribed")
	return nil
}

func (p *MQTTProvider) Unsubscribe() error {
	p.mu.Lock()
	p.onFix = nil
	p.onError = nil
	p.mu.Unlock()

	if !p.client.IsConnected() {
		return nil
	}

	token := p.client.Unsubscribe(p.topic)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt unsubscribe '%s': timeout", p.topic)
	}
	return token.Error()
}

func (p *MQTTProvider) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	p.mu.Lock()
	onFix, onError := p.onFix, p.onError
	p.mu.Unlock()

	if onFix == nil {
		return
	}

	var raw internal.Coordinates
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		if onError != nil {
			onError(fmt.Errorf("invalid location message on '%s': %w", msg.Topic(), err))
		}
		return
	}

	fix, err := toFix(&raw)
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}

	// the device may publish faster than requested
	p.mu.Lock()
	if !p.last.IsZero() && fix.Timestamp.Sub(p.last) < p.interval {
		p.mu.Unlock()
		log.Trace().Str("topic", msg.Topic()).Msg("fix dropped, interval")
		return
	}
	p.last = fix.Timestamp
	p.mu.Unlock()

	onFix(fix)
}

func toFix(raw *internal.Coordinates) (geo.Fix, error) {
	c, err := geo.NewCoordinate(raw.Lat, raw.Long)
	if err != nil {
		return geo.Fix{}, err
	}

	ts := time.Now()
	if raw.EventTime > 0 {
		ts = time.Unix(raw.EventTime, 0)
	}
	return geo.Fix{Coordinate: c, Real: true, Timestamp: ts}, nil
}

func waitToken(ctx context.Context, token mqtt.Token) bool {
	select {
	case <-token.Done():
		return true
	case <-ctx.Done():
		return false
	}
}
