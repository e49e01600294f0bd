package netsim

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/gbn-sim/gbn"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"
)

// entities lists both ends of the simulated link.
var entities = [2]gbn.Entity{gbn.EntityA, gbn.EntityB}

// epoch is the simulated time every run starts at.
var epoch = time.Unix(0, 0)

type eventKind uint8

const (
	// appArrival is a payload submitted by the application of a host.
	appArrival eventKind = iota

	// frameArrival is a frame coming off the link at a host.
	frameArrival

	// timerExpired is the expiry of the retransmission timer of a host.
	timerExpired
)

// event is something that happens to one host at a point in simulated time.
type event struct {
	at time.Time

	// id orders events scheduled for the same time by the order they were
	// scheduled in.
	id uint64

	kind eventKind

	entity gbn.Entity

	frame []byte

	// generation is the timer generation a timerExpired event belongs
	// to.
	generation uint64
}

// Less orders events by time and then by scheduling order.
//
// NOTE: this is part of the queue.PriorityQueueItem interface.
func (e *event) Less(other queue.PriorityQueueItem) bool {
	o := other.(*event)
	if e.at.Equal(o.at) {
		return e.id < o.id
	}

	return e.at.Before(o.at)
}

// timerSlot is the retransmission timer of one host. Every start and stop
// bumps the generation so that expiries scheduled before are ignored.
type timerSlot struct {
	running    bool
	generation uint64
}

// Option configures a Simulator.
type Option func(s *Simulator)

// WithMetrics makes the simulator count what happens on the link in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Simulator) {
		s.metrics = m
	}
}

// WithLogger sets the logger of the simulator.
func WithLogger(logger btclog.Logger) Option {
	return func(s *Simulator) {
		s.log = logger
	}
}

// Simulator connects two hosts through a simulated link and drives them from a
// queue of timed events. Simulated time is kept by a test clock that jumps from
// one event to the next, so a run takes as long as it takes to process its
// events.
//
// A Simulator is not safe for concurrent use. Separate simulators may run in
// parallel.
type Simulator struct {
	cfg *Config

	clock *clock.TestClock

	rng *rand.Rand

	events queue.PriorityQueue

	nextID uint64

	hosts [2]*gbn.Host

	timers [2]timerSlot

	// submitted holds the payloads each host's application submitted, in
	// order.
	submitted [2][][]byte

	// delivered holds the payloads each host delivered to its
	// application, in order.
	delivered [2][][]byte

	// elapsed is the simulated time processed so far, in nanoseconds. It
	// may be read while a paced run is in progress.
	elapsed atomic.Int64

	metrics *Metrics

	log btclog.Logger
}

var _ gbn.Network = (*Simulator)(nil)

// New creates a simulator for the given configuration, with both hosts
// attached and the first application arrivals scheduled.
func New(cfg *Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Simulator{
		cfg:   cfg,
		clock: clock.NewTestClock(epoch),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = log.WithPrefix(fmt.Sprintf("Sim(seed=%d):", cfg.Seed))
	}

	if s.metrics == nil {
		// Unregistered counters keep the code paths the same.
		s.metrics, _ = NewMetrics(nil)
	}

	hostOpts := []gbn.Option{gbn.WithClock(s.clock)}
	if cfg.AdaptiveTimeout {
		hostOpts = append(hostOpts, gbn.WithTimeoutOptions(
			gbn.WithDynamicResendTimeout(),
		))
	}

	for _, e := range entities {
		h, err := gbn.NewHost(
			e, s, cfg.WindowSize, cfg.TimerInterval, hostOpts...,
		)
		if err != nil {
			return nil, fmt.Errorf("unable to create host %v: %w", e,
				err)
		}
		s.hosts[e] = h

		if e == gbn.EntityB && cfg.OneWay {
			continue
		}

		if cfg.Messages > 0 {
			s.scheduleArrival(e)
		}
	}

	return s, nil
}

// Host returns the host of the given entity.
func (s *Simulator) Host(e gbn.Entity) *gbn.Host {
	return s.hosts[e]
}

// Elapsed returns the simulated time processed so far.
func (s *Simulator) Elapsed() time.Duration {
	return time.Duration(s.elapsed.Load())
}

// Run processes events until none are left, the maximum simulated time is
// reached or the context is cancelled.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	deadline := epoch.Add(s.cfg.MaxTime)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !s.processNext(deadline) {
			break
		}
	}

	return s.report(), nil
}

// done returns true once nothing is left to simulate.
func (s *Simulator) done() bool {
	return s.events.Empty() || s.Elapsed() >= s.cfg.MaxTime
}

// processNext processes the next event if it is due no later than horizon. It
// returns false if there was no such event.
func (s *Simulator) processNext(horizon time.Time) bool {
	if s.events.Empty() {
		return false
	}

	next := s.events.Top().(*event)
	if next.at.After(horizon) {
		return false
	}
	s.events.Pop()

	s.advanceTo(next.at)

	switch next.kind {
	case appArrival:
		s.submit(next.entity)

	case frameArrival:
		s.hosts[next.entity].ReceiveFromNetworkLayer(next.frame)

	case timerExpired:
		s.expire(next.entity, next.generation)
	}

	return true
}

// advanceTo moves simulated time forward to t.
func (s *Simulator) advanceTo(t time.Time) {
	if t.Before(s.clock.Now()) {
		return
	}

	s.clock.SetTime(t)
	s.elapsed.Store(int64(t.Sub(epoch)))
}

// schedule adds an event due after the given delay.
func (s *Simulator) schedule(delay time.Duration, ev *event) {
	ev.at = s.clock.Now().Add(delay)
	ev.id = s.nextID
	s.nextID++

	s.events.Push(ev)
}

// exponential draws a duration from an exponential distribution with the
// given mean.
func (s *Simulator) exponential(mean time.Duration) time.Duration {
	return time.Duration(s.rng.ExpFloat64() * float64(mean))
}

func (s *Simulator) scheduleArrival(e gbn.Entity) {
	s.schedule(s.exponential(s.cfg.MeanArrival), &event{
		kind:   appArrival,
		entity: e,
	})
}

// submit hands the next payload of an entity to its host and schedules the
// one after it.
func (s *Simulator) submit(e gbn.Entity) {
	idx := len(s.submitted[e])
	payload := makePayload(idx, s.cfg.PayloadSize)
	s.submitted[e] = append(s.submitted[e], payload)

	s.log.Tracef("Host %v submits payload %d", e, idx)

	// The host owns what it is given, so it gets its own copy.
	s.hosts[e].ReceiveFromApplicationLayer(append([]byte(nil), payload...))

	if len(s.submitted[e]) < s.cfg.Messages {
		s.scheduleArrival(e)
	}
}

// makePayload builds payload number idx: the index in big endian followed by
// a letter that cycles through the alphabet.
func makePayload(idx, size int) []byte {
	payload := make([]byte, size)
	binary.BigEndian.PutUint32(payload, uint32(idx))

	for i := minPayloadSize; i < size; i++ {
		payload[i] = byte('a' + idx%26)
	}

	return payload
}

// PassToNetworkLayer puts a frame on the link towards the peer of the sending
// entity. The frame may be lost, corrupted or held back.
//
// NOTE: this is part of the gbn.Network interface.
func (s *Simulator) PassToNetworkLayer(e gbn.Entity, frame []byte,
	isACK bool) {

	kind := gbn.DATA
	if isACK {
		kind = gbn.ACK
	}

	entity := e.String()
	s.metrics.framesSent.WithLabelValues(entity, kind.String()).Inc()

	if s.rng.Float64() < s.cfg.Loss {
		s.log.Tracef("Losing %v frame from %v", kind, e)
		s.metrics.framesLost.WithLabelValues(entity).Inc()

		return
	}

	// The host keeps the bytes it sent for retransmission, so the link
	// works on a copy.
	onLink := append([]byte(nil), frame...)

	if s.rng.Float64() < s.cfg.Corrupt {
		bit := s.rng.Intn(len(onLink) * 8)
		onLink[bit/8] ^= 1 << (bit % 8)

		s.log.Tracef("Corrupting %v frame from %v at bit %d", kind, e,
			bit)
		s.metrics.framesCorrupted.WithLabelValues(entity).Inc()
	}

	delay := s.exponential(s.cfg.MeanDelay)
	if s.rng.Float64() < s.cfg.Reorder {
		delay += s.cfg.ReorderDelay
		s.metrics.framesReordered.WithLabelValues(entity).Inc()
	}

	s.schedule(delay, &event{
		kind:   frameArrival,
		entity: e.Peer(),
		frame:  onLink,
	})
}

// PassToApplicationLayer records a payload delivered by a host.
//
// NOTE: this is part of the gbn.Network interface.
func (s *Simulator) PassToApplicationLayer(e gbn.Entity, payload []byte) {
	s.delivered[e] = append(s.delivered[e], append([]byte(nil), payload...))
	s.metrics.delivered.WithLabelValues(e.String()).Inc()
}

// StartTimer starts the retransmission timer of a host. A timer that is
// already running is replaced.
//
// NOTE: this is part of the gbn.Network interface.
func (s *Simulator) StartTimer(e gbn.Entity, interval time.Duration) {
	slot := &s.timers[e]
	if slot.running {
		s.log.Warnf("Host %v started its timer while it was running, "+
			"replacing it", e)
	}

	slot.running = true
	slot.generation++

	s.metrics.timerEvents.WithLabelValues(e.String(), timerStart).Inc()

	s.schedule(interval, &event{
		kind:       timerExpired,
		entity:     e,
		generation: slot.generation,
	})
}

// StopTimer stops the retransmission timer of a host.
//
// NOTE: this is part of the gbn.Network interface.
func (s *Simulator) StopTimer(e gbn.Entity) {
	slot := &s.timers[e]
	if !slot.running {
		s.log.Warnf("Host %v stopped its timer while it wasn't "+
			"running", e)

		return
	}

	slot.running = false
	slot.generation++

	s.metrics.timerEvents.WithLabelValues(e.String(), timerStop).Inc()
}

// expire fires the timer of a host unless it was stopped or restarted since
// the expiry was scheduled.
func (s *Simulator) expire(e gbn.Entity, generation uint64) {
	slot := &s.timers[e]
	if !slot.running || slot.generation != generation {
		return
	}

	slot.running = false
	s.metrics.timerEvents.WithLabelValues(e.String(), timerExpiry).Inc()

	s.hosts[e].TimerInterrupt()
}

// report summarises the run so far.
func (s *Simulator) report() *Report {
	r := &Report{
		Seed:      s.cfg.Seed,
		Duration:  s.Elapsed(),
		Completed: s.events.Empty(),
	}

	for _, e := range entities {
		r.Entities[e] = EntityReport{
			Entity:    e,
			Submitted: len(s.submitted[e]),
			Delivered: len(s.delivered[e]),
			Stats:     s.hosts[e].Stats(),
		}
		r.submitted[e] = s.submitted[e]
		r.delivered[e] = s.delivered[e]
	}

	return r
}
