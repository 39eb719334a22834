package world

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rtsgarrison.dev/internal/persistence/snapshot"
	"rtsgarrison.dev/internal/sim/catalogs"
	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	log      zerolog.Logger
	metrics  contain.Metrics
	timer    TickTimer

	tick  atomic.Uint64
	stats atomic.Pointer[WorldMetrics]

	objects    map[ids.ObjectID]*object.Object
	order      []ids.ObjectID
	containers map[ids.ObjectID]*contain.Container
	players    []Player
	relations  map[[2]ids.PlayerID]object.Relationship

	nextObject   ids.ObjectID
	nextDrawable ids.DrawableID
	rng          splitmix

	registered map[ids.ObjectID]bool
	hidden     map[ids.ObjectID]bool
	garrisoned map[ids.ObjectID]bool
	doors      map[ids.ObjectID]map[int]bool
	effects    map[ids.DrawableID]*muzzle

	svc *contain.Services

	// Collected during one step.
	events []ContainEvent
	sounds []SoundCue

	inbox     chan Command
	obsJoin   chan ObserverJoinRequest
	obsLeave  chan string
	obsSub    chan ObserverSubscribeRequest
	stop      chan struct{}
	stopOnce  sync.Once
	observers map[string]*observerClient

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	eventLogger  EventLogger
	snapshotSink chan<- snapshot.SnapshotV1
}

type Option func(*World)

func WithLogger(l zerolog.Logger) Option   { return func(w *World) { w.log = l } }
func WithMetrics(m contain.Metrics) Option { return func(w *World) { w.metrics = m } }
func WithTickTimer(t TickTimer) Option     { return func(w *World) { w.timer = t } }

func New(cfg WorldConfig, cats *catalogs.Catalogs, opts ...Option) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world: tick rate must be positive")
	}
	if cfg.BoundaryR <= 0 {
		cfg.BoundaryR = 4096
	}
	if cfg.CommandQueue <= 0 {
		cfg.CommandQueue = 1024
	}
	if cfg.ObserverQueue <= 0 {
		cfg.ObserverQueue = 64
	}
	w := &World{
		cfg:        cfg,
		catalogs:   cats,
		log:        zerolog.Nop(),
		objects:    map[ids.ObjectID]*object.Object{},
		containers: map[ids.ObjectID]*contain.Container{},
		relations:  map[[2]ids.PlayerID]object.Relationship{},
		rng:        newSplitmix(cfg.Seed),
		registered: map[ids.ObjectID]bool{},
		hidden:     map[ids.ObjectID]bool{},
		garrisoned: map[ids.ObjectID]bool{},
		doors:      map[ids.ObjectID]map[int]bool{},
		effects:    map[ids.DrawableID]*muzzle{},
		inbox:      make(chan Command, cfg.CommandQueue),
		obsJoin:    make(chan ObserverJoinRequest, 64),
		obsLeave:   make(chan string, 64),
		obsSub:     make(chan ObserverSubscribeRequest, 64),
		stop:       make(chan struct{}),
		observers:  map[string]*observerClient{},
	}
	for _, o := range opts {
		o(w)
	}
	w.svc = &contain.Services{
		Objects:    w,
		Nav:        (*flatNav)(w),
		Render:     (*boneRenderer)(w),
		Effects:    (*effectHost)(w),
		Audio:      w,
		Rand:       &w.rng,
		Frame:      w.frame,
		Log:        w.log.With().Str("component", "contain").Logger(),
		Metrics:    w.metrics,
		Events:     w,
		Strict:     cfg.StrictInvariants,
		TickRateHz: cfg.TickRateHz,
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetEventLogger(l EventLogger)                  { w.eventLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Config() WorldConfig                          { return w.cfg }
func (w *World) Catalogs() *catalogs.Catalogs                 { return w.catalogs }
func (w *World) Inbox() chan<- Command                        { return w.inbox }
func (w *World) CurrentTick() uint64                          { return w.tick.Load() }
func (w *World) frame() uint32                                { return uint32(w.tick.Load()) }
func (w *World) Players() []Player                            { return append([]Player(nil), w.players...) }
func (w *World) Container(id ids.ObjectID) *contain.Container { return w.containers[id] }

// Object implements contain.Registry. Dead-but-not-yet-removed objects still resolve.
func (w *World) Object(id ids.ObjectID) *object.Object { return w.objects[id] }

func (w *World) Relationship(from, to ids.PlayerID) object.Relationship {
	if from == ids.NoPlayer || to == ids.NoPlayer {
		return object.Neutral
	}
	if from == to {
		return object.Allies
	}
	if r, ok := w.relations[[2]ids.PlayerID{from, to}]; ok {
		return r
	}
	return object.Enemies
}

func (w *World) SetRelationship(from, to ids.PlayerID, r object.Relationship) {
	w.relations[[2]ids.PlayerID{from, to}] = r
}

func (w *World) AddPlayer(p Player) { w.players = append(w.players, p) }

// Emit implements contain.EventSink.
func (w *World) Emit(e contain.Event) { w.events = append(w.events, e) }

// PostEvent implements contain.Audio.
func (w *World) PostEvent(event string, source ids.ObjectID) {
	w.sounds = append(w.sounds, SoundCue{Event: event, Source: source})
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []Command

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.obsJoin:
			w.handleObserverJoin(req)
		case req := <-w.obsSub:
			w.handleObserverSubscribe(req)
		case id := <-w.obsLeave:
			w.handleObserverLeave(id)
		case cmd := <-w.inbox:
			pending = append(pending, cmd)
		case <-ticker.C:
			w.step(pending)
			pending = pending[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(cmds []Command) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.step(cmds)
	return tick, digest
}

func (w *World) step(cmds []Command) string {
	start := time.Now()
	nowTick := w.tick.Load()
	w.events = w.events[:0]
	w.sounds = w.sounds[:0]

	recorded := make([]CommandRecord, 0, len(cmds))
	for _, c := range cmds {
		rec := CommandRecord{Cmd: c}
		if err := w.apply(c); err != nil {
			rec.Err = commandCode(err)
			w.log.Debug().Err(err).Str("kind", string(c.Kind)).Uint32("subject", uint32(c.Subject)).Msg("command failed")
		}
		recorded = append(recorded, rec)
	}

	w.systemMovement()
	w.systemWeapons(uint32(nowTick))
	w.systemDeaths()
	w.systemContainers()

	digest := w.stateDigest(nowTick)
	events := append([]ContainEvent(nil), w.events...)

	if w.tickLogger != nil {
		entry := TickLogEntry{Tick: nowTick, Digest: digest, Commands: recorded, Events: events, Containers: len(w.containers)}
		for _, c := range w.containers {
			entry.Occupants += c.Count()
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Warn().Err(err).Uint64("tick", nowTick).Msg("tick log write failed")
		}
	}
	if w.eventLogger != nil && len(events) > 0 {
		if err := w.eventLogger.WriteEvents(nowTick, events); err != nil {
			w.log.Warn().Err(err).Uint64("tick", nowTick).Msg("event log write failed")
		}
	}

	w.broadcastObservers(nowTick, digest, events)

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && nowTick != 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			w.log.Warn().Uint64("tick", nowTick).Msg("snapshot sink full; dropping snapshot")
		}
	}

	elapsed := time.Since(start)
	w.publishStats(nowTick, elapsed)
	w.tick.Add(1)
	if w.timer != nil {
		w.timer.TickDuration(elapsed)
	}
	return digest
}

// WorldMetrics is a copy of loop-owned counters, safe to read from any goroutine.
type WorldMetrics struct {
	Tick       uint64  `json:"tick"`
	Objects    int     `json:"objects"`
	Containers int     `json:"containers"`
	Occupants  int     `json:"occupants"`
	Observers  int     `json:"observers"`
	InboxDepth int     `json:"inbox_depth"`
	StepMS     float64 `json:"step_ms"`
}

func (w *World) publishStats(nowTick uint64, elapsed time.Duration) {
	m := &WorldMetrics{
		Tick:       nowTick,
		Objects:    len(w.objects),
		Containers: len(w.containers),
		Observers:  len(w.observers),
		InboxDepth: len(w.inbox),
		StepMS:     float64(elapsed.Microseconds()) / 1000,
	}
	for _, c := range w.containers {
		m.Occupants += c.Count()
	}
	w.stats.Store(m)
}

// Metrics returns the counters published by the last step.
func (w *World) Metrics() WorldMetrics {
	if m := w.stats.Load(); m != nil {
		return *m
	}
	return WorldMetrics{InboxDepth: len(w.inbox)}
}

func (w *World) sortedContainerIDs() []ids.ObjectID {
	out := make([]ids.ObjectID, 0, len(w.containers))
	for id := range w.containers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func marshalOrNil(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
