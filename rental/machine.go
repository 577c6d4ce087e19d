package rental

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/billing"
	"github.com/redhat-partner-ecosystem/scootershare/eventbus"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/internal"
	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

const (
	actionStart = "start"
	actionEnd   = "end"

	noReason = "no reason given"
)

type (
	// Machine is the rental lifecycle IDLE -> SELECTED -> RENTING -> RETURNING -> IDLE.
	// All transitions are serialized on the machine, there is at most one session.
	Machine struct {
		gate      Gate
		writer    VehicleWriter
		timer     *billing.Timer
		bus       *eventbus.Bus[Event]
		selection SelectionStore
		now       func() time.Time

		mu         sync.Mutex
		state      State
		selected   vehicle.Vehicle
		session    *Session
		endPending bool
		// returning is set while CompleteReturn talks to the stores outside of mu
		returning bool
		audit     []AuditEntry
		stopTimer context.CancelFunc
	}

	Option func(*Machine)
)

func WithBus(bus *eventbus.Bus[Event]) Option {
	return func(m *Machine) {
		m.bus = bus
	}
}

func WithSelectionStore(s SelectionStore) Option {
	return func(m *Machine) {
		m.selection = s
	}
}

// WithClock replaces time.Now for the machine and its billing timer
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
		m.timer = billing.NewTimer(now)
	}
}

func NewMachine(gate Gate, writer VehicleWriter, opts ...Option) *Machine {
	m := &Machine{
		gate:   gate,
		writer: writer,
		timer:  billing.NewTimer(nil),
		now:    time.Now,
		state:  Idle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Select chooses the vehicle to rent. A different vehicle may be chosen while SELECTED.
func (m *Machine) Select(v vehicle.Vehicle) error {
	if v.Empty() {
		return fmt.Errorf("rental.Select: %w", ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle && m.state != Selected {
		return m.invalid("select")
	}

	m.state = Selected
	m.selected = v
	if m.selection != nil {
		m.selection.Store(v)
	}

	log.Info().Str("vehicle", v.ID).Str("name", v.Name).Msg("vehicle selected")
	m.publish(VehicleSelected, nil)
	return nil
}

// StartRent starts a session if the renter is inside a zone right now
func (m *Machine) StartRent() (Session, error) {
	return m.startRent(false, "")
}

// OverrideStartRent starts a session regardless of the geofence state and records why
func (m *Machine) OverrideStartRent(reason string) (Session, error) {
	return m.startRent(true, reason)
}

func (m *Machine) startRent(override bool, reason string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Selected {
		return Session{}, m.invalid("start rent")
	}

	insideAny := m.insideAny()
	if !insideAny && !override {
		log.Info().Str("vehicle", m.selected.ID).Msg("start rent rejected, outside of all zones")
		return Session{}, fmt.Errorf("rental.StartRent: %w", ErrGeofence)
	}

	m.session = &Session{
		ID:         internal.XID(),
		Vehicle:    m.selected,
		StartTime:  m.now(),
		Running:    true,
		Overridden: override,
	}
	if override {
		m.recordOverride(actionStart, reason, insideAny)
	}

	m.timer.Start()
	ctx, cancel := context.WithCancel(context.Background())
	m.stopTimer = cancel
	go m.timer.Run(ctx)

	m.state = Renting
	m.endPending = false

	log.Info().Str("session", m.session.ID).Str("vehicle", m.selected.ID).Bool("override", override).Msg("rent started")
	m.publish(RentStarted, nil)

	return m.sessionLocked(), nil
}

// RequestEndRent asks to end the session if the renter is inside a zone right now.
// The end has to be confirmed with ConfirmEndRent.
func (m *Machine) RequestEndRent() error {
	return m.requestEnd(false, "")
}

// OverrideRequestEndRent asks to end the session regardless of the geofence state
func (m *Machine) OverrideRequestEndRent(reason string) error {
	return m.requestEnd(true, reason)
}

func (m *Machine) requestEnd(override bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Renting {
		return m.invalid("end rent")
	}

	insideAny := m.insideAny()
	if !insideAny && !override {
		log.Info().Str("session", m.session.ID).Msg("end rent rejected, outside of all zones")
		return fmt.Errorf("rental.RequestEndRent: %w", ErrGeofence)
	}
	if override {
		m.session.Overridden = true
		m.recordOverride(actionEnd, reason, insideAny)
	}

	m.endPending = true
	m.publish(EndRequested, nil)
	return nil
}

// ConfirmEndRent commits a requested end, the vehicle has to be returned next
func (m *Machine) ConfirmEndRent() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Renting || !m.endPending {
		return m.invalid("confirm end rent")
	}

	m.endPending = false
	m.state = Returning

	log.Info().Str("session", m.session.ID).Msg("end rent confirmed")
	m.publish(EndConfirmed, nil)
	return nil
}

// DeclineEndRent drops a requested end, the session keeps running
func (m *Machine) DeclineEndRent() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Renting || !m.endPending {
		return m.invalid("decline end rent")
	}

	m.endPending = false
	m.publish(EndDeclined, nil)
	return nil
}

// CompleteReturn parks the vehicle at c. The photo is optional and uploaded on
// a best effort basis. If the vehicle record cannot be written the machine
// stays RETURNING and the error wraps ErrRemoteWrite, the call can be retried.
func (m *Machine) CompleteReturn(ctx context.Context, label string, c geo.Coordinate, photo io.Reader) (Receipt, error) {
	if err := c.Validate(); err != nil {
		return Receipt{}, fmt.Errorf("rental.CompleteReturn: %w", err)
	}

	m.mu.Lock()
	if m.state != Returning || m.returning {
		err := m.invalid("complete return")
		m.mu.Unlock()
		return Receipt{}, err
	}
	m.returning = true
	sess := *m.session
	m.mu.Unlock()

	label = strings.TrimSpace(label)
	if label == "" {
		label = c.String()
	}

	uploaded := false
	if photo != nil {
		if err := m.writer.UploadPhoto(ctx, sess.Vehicle.Name, photo); err != nil {
			log.Warn().Err(err).Str("session", sess.ID).Str("vehicle", sess.Vehicle.ID).Msg("photo upload failed")
		} else {
			uploaded = true
		}
	}

	_, err := m.writer.UpdateLocation(ctx, sess.Vehicle.ID, label, c)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.returning = false

	if err != nil {
		internal.RemoteWriteFailures.Inc()
		log.Error().Err(err).Str("session", sess.ID).Str("vehicle", sess.Vehicle.ID).Msg("vehicle update failed")
		return Receipt{}, fmt.Errorf("rental.CompleteReturn: %w: %w", ErrRemoteWrite, err)
	}

	m.timer.Stop()
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}

	receipt := Receipt{
		SessionID:     sess.ID,
		VehicleID:     sess.Vehicle.ID,
		VehicleName:   sess.Vehicle.Name,
		StartTime:     sess.StartTime,
		EndTime:       m.now(),
		Elapsed:       m.timer.Elapsed(),
		Price:         m.timer.Price(),
		Location:      label,
		Coordinate:    c,
		PhotoUploaded: uploaded,
		Overridden:    m.session.Overridden,
	}
	m.state = Idle
	m.session = nil
	m.selected = vehicle.Vehicle{}
	if m.selection != nil {
		m.selection.Store(vehicle.Vehicle{})
	}
	internal.RentalsCompleted.Inc()

	log.Info().Str("session", receipt.SessionID).Str("vehicle", receipt.VehicleID).Int("price", receipt.Price).Str("elapsed", receipt.Elapsed.String()).Msg("rental completed")
	m.publish(ReturnCompleted, &receipt)

	return receipt, nil
}

// Cancel steps back: RETURNING -> RENTING, SELECTED -> IDLE
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state == Returning && !m.returning:
		m.state = Renting
		m.endPending = false
	case m.state == Selected:
		m.state = Idle
		m.selected = vehicle.Vehicle{}
		if m.selection != nil {
			m.selection.Store(vehicle.Vehicle{})
		}
	default:
		return m.invalid("cancel")
	}

	m.publish(RentCanceled, nil)
	return nil
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EndPending reports whether an end request waits for confirmation
func (m *Machine) EndPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endPending
}

// Selected returns the chosen vehicle
func (m *Machine) Selected() (vehicle.Vehicle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected, !m.selected.Empty()
}

// Session returns the current session with an up to date price
func (m *Machine) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return Session{}, false
	}
	m.timer.Tick()
	return m.sessionLocked(), true
}

// Audit returns a copy of the recorded overrides
func (m *Machine) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// Timer exposes the billing clock, e.g. to snapshot it
func (m *Machine) Timer() *billing.Timer {
	return m.timer
}

// Close stops the billing goroutine
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
}

func (m *Machine) insideAny() bool {
	if m.gate == nil {
		return false
	}
	return m.gate.Load().InsideAny
}

func (m *Machine) recordOverride(action, reason string, insideAny bool) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = noReason
	}

	entry := AuditEntry{
		Action:    action,
		Reason:    reason,
		VehicleID: m.selected.ID,
		InsideAny: insideAny,
		Timestamp: m.now(),
	}
	if m.session != nil {
		entry.SessionID = m.session.ID
	}
	m.audit = append(m.audit, entry)

	internal.RentOverrides.WithLabelValues(action).Inc()
	log.Warn().Str("action", action).Str("reason", reason).Str("vehicle", entry.VehicleID).Str("session", entry.SessionID).Bool("insideAny", insideAny).Msg("geofence override")
}

// sessionLocked returns a copy of the session with timer values. Callers hold m.mu.
func (m *Machine) sessionLocked() Session {
	s := *m.session
	s.Running = m.timer.Running()
	s.Elapsed = m.timer.Elapsed()
	s.Price = m.timer.Price()
	return s
}

// publish sends an event for the current state. Callers hold m.mu.
func (m *Machine) publish(t EventType, receipt *Receipt) {
	if m.bus == nil {
		return
	}

	evt := Event{
		Type:      t,
		State:     m.state,
		Receipt:   receipt,
		Timestamp: m.now(),
	}
	if m.session != nil {
		s := m.sessionLocked()
		evt.Session = &s
	}
	m.bus.Publish(evt)
}

// invalid builds the error for an operation the current state does not allow. Callers hold m.mu.
func (m *Machine) invalid(op string) error {
	return fmt.Errorf("rental: %s in state %s: %w", op, m.state, ErrInvalidTransition)
}
