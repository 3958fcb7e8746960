package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"codeduel/internal/grace"
	"codeduel/internal/room"
	"codeduel/pkg/interfaces"
	"codeduel/pkg/types"
)

// ProblemSelector picks a problem for a match. Implementations must always
// return a problem.
type ProblemSelector interface {
	Select(ctx context.Context, topic, difficulty string) types.Problem
}

// Hub owns every room. Boundary events, problem assignments, grace expiries
// and read queries all arrive as messages on one goroutine, so room state
// is never touched concurrently.
type Hub struct {
	inbound     chan *inboundEvent
	assignments chan *problemAssignment
	expiries    chan graceExpiry
	queries     chan *roomQuery
	shutdown    chan struct{}
	done        chan struct{}

	rooms    *room.Registry
	bus      interfaces.Broadcaster
	selector ProblemSelector
	grace    *grace.Scheduler
	results  interfaces.ResultStore
	logger   zerolog.Logger
	now      func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	async   sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

type inboundEvent struct {
	connectionID string
	event        *types.ClientEvent
	disconnect   bool
	done         chan struct{}
}

type problemAssignment struct {
	room    *room.Room
	problem *types.Problem
}

type graceExpiry struct {
	key   grace.Key
	token uint64
}

type roomQuery struct {
	roomID string
	reply  chan []*types.RoomSnapshot
}

// NewHub wires the hub's collaborators. results may be nil, in which case
// match outcomes are only broadcast.
func NewHub(rooms *room.Registry, bus interfaces.Broadcaster, selector ProblemSelector, scheduler *grace.Scheduler, results interfaces.ResultStore, logger zerolog.Logger) *Hub {
	return &Hub{
		inbound:     make(chan *inboundEvent, 256),
		assignments: make(chan *problemAssignment, 64),
		expiries:    make(chan graceExpiry, 64),
		queries:     make(chan *roomQuery, 16),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		rooms:       rooms,
		bus:         bus,
		selector:    selector,
		grace:       scheduler,
		results:     results,
		logger:      logger.With().Str("component", "hub").Logger(),
		now:         time.Now,
	}
}

// Start launches the event loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.done:
		return ErrHubNotRunning
	default:
	}

	h.running = true
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.logger.Info().Dur("grace_period", h.grace.Period()).Msg("starting room hub")
	go h.run()

	return nil
}

// Stop ends the event loop, cancels pending grace timers and waits for
// in-flight problem selections and result writes.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	h.mu.Unlock()

	h.logger.Info().Msg("stopping room hub")

	<-h.done
	h.cancel()
	h.grace.Stop()
	h.async.Wait()

	return nil
}

// Dispatch hands a validated client event to the loop and waits until it
// has been applied.
func (h *Hub) Dispatch(ctx context.Context, connectionID string, event *types.ClientEvent) error {
	if event == nil {
		return ErrNilEvent
	}
	return h.submit(ctx, &inboundEvent{
		connectionID: connectionID,
		event:        event,
		done:         make(chan struct{}),
	})
}

// Disconnect reports that a connection's transport has closed.
func (h *Hub) Disconnect(ctx context.Context, connectionID string) error {
	return h.submit(ctx, &inboundEvent{
		connectionID: connectionID,
		disconnect:   true,
		done:         make(chan struct{}),
	})
}

func (h *Hub) submit(ctx context.Context, in *inboundEvent) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.inbound <- in:
	case <-h.done:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-in.done:
		return nil
	case <-h.done:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rooms returns snapshots of every live room.
func (h *Hub) Rooms(ctx context.Context) ([]*types.RoomSnapshot, error) {
	return h.query(ctx, "")
}

// Room returns the snapshot of one room.
func (h *Hub) Room(ctx context.Context, roomID string) (*types.RoomSnapshot, error) {
	snaps, err := h.query(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, interfaces.ErrRoomNotFound
	}
	return snaps[0], nil
}

// PendingGrace returns how many participants are currently inside a grace period.
func (h *Hub) PendingGrace() int {
	return h.grace.Len()
}

func (h *Hub) query(ctx context.Context, roomID string) ([]*types.RoomSnapshot, error) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return nil, ErrHubNotRunning
	}

	q := &roomQuery{roomID: roomID, reply: make(chan []*types.RoomSnapshot, 1)}
	select {
	case h.queries <- q:
	case <-h.done:
		return nil, ErrHubNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case snaps := <-q.reply:
		return snaps, nil
	case <-h.done:
		return nil, ErrHubNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer h.logger.Info().Msg("room hub stopped")

	for {
		select {
		case in := <-h.inbound:
			if in.disconnect {
				h.handleDisconnect(in.connectionID)
			} else {
				h.handleEvent(in.connectionID, in.event)
			}
			close(in.done)

		case a := <-h.assignments:
			h.handleAssignment(a)

		case e := <-h.expiries:
			h.handleExpiry(e)

		case q := <-h.queries:
			h.handleQuery(q)

		case <-h.shutdown:
			return

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) handleQuery(q *roomQuery) {
	if q.roomID == "" {
		q.reply <- h.rooms.Snapshots()
		return
	}
	if r, ok := h.rooms.Get(q.roomID); ok {
		q.reply <- []*types.RoomSnapshot{h.rooms.Snapshot(r, false)}
		return
	}
	q.reply <- nil
}

// onGraceExpired runs on a timer goroutine and only forwards the expiry.
func (h *Hub) onGraceExpired(key grace.Key, token uint64) {
	select {
	case h.expiries <- graceExpiry{key: key, token: token}:
	case <-h.done:
	}
}
