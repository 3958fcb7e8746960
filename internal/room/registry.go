package room

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"codeduel/pkg/types"
)

// Room is the live state of one match. It is owned by whoever owns the
// Registry and must not be shared across goroutines.
type Room struct {
	ID           string
	Participants []*types.Participant
	Problem      *types.Problem
	Status       types.RoomStatus
	Topic        string
	Difficulty   types.Difficulty
	Messages     []types.ChatMessage
	Winner       string
	CreatedAt    time.Time
	StartedAt    time.Time
}

// Participant returns the participant bound to connectionID.
func (r *Room) Participant(connectionID string) (*types.Participant, bool) {
	return lo.Find(r.Participants, func(p *types.Participant) bool {
		return p.ConnectionID == connectionID
	})
}

// Full reports whether the room has reached match capacity.
func (r *Room) Full() bool {
	return len(r.Participants) >= types.MatchRoomCapacity
}

// Resolution is the outcome of matching a username against a room's participants.
type Resolution struct {
	Participant *types.Participant
	Found       bool
}

// Membership pairs a room with a participant found by connection scan.
type Membership struct {
	Room        *Room
	Participant *types.Participant
}

// Registry maps room IDs to rooms. It performs no locking: a single event
// loop owns it and serializes every call.
type Registry struct {
	rooms map[string]*Room
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
}

// GetOrCreate returns the room for roomID, creating it in the waiting state
// if absent. Topic and difficulty are fixed by the creating call and ignored
// afterwards. The second return value reports whether the room was created.
func (reg *Registry) GetOrCreate(roomID, topic string, difficulty types.Difficulty) (*Room, bool) {
	if r, ok := reg.rooms[roomID]; ok {
		return r, false
	}
	r := &Room{
		ID:         roomID,
		Status:     types.RoomWaiting,
		Topic:      topic,
		Difficulty: difficulty,
		CreatedAt:  reg.now(),
	}
	reg.rooms[roomID] = r
	return r, true
}

// Get returns the room for roomID.
func (reg *Registry) Get(roomID string) (*Room, bool) {
	r, ok := reg.rooms[roomID]
	return r, ok
}

// AddParticipant appends a participant with a zero score in the joined state.
func (reg *Registry) AddParticipant(r *Room, username, connectionID string) *types.Participant {
	p := &types.Participant{
		ConnectionID: connectionID,
		Username:     username,
		State:        types.StateJoined,
	}
	r.Participants = append(r.Participants, p)
	return p
}

// RemoveParticipant removes the participant bound to connectionID.
// It reports false when no such participant exists.
func (reg *Registry) RemoveParticipant(r *Room, connectionID string) (*types.Participant, bool) {
	_, idx, ok := lo.FindIndexOf(r.Participants, func(p *types.Participant) bool {
		return p.ConnectionID == connectionID
	})
	if !ok {
		return nil, false
	}
	removed := r.Participants[idx]
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	return removed, true
}

// SetProblem assigns the room's problem.
func (reg *Registry) SetProblem(r *Room, problem *types.Problem) {
	r.Problem = problem
}

// SetStatus moves the room to status. Entering active stamps StartedAt.
func (reg *Registry) SetStatus(r *Room, status types.RoomStatus) {
	if status == types.RoomActive && r.StartedAt.IsZero() {
		r.StartedAt = reg.now()
	}
	r.Status = status
}

// DeleteIfEmpty deletes the room when it has no participants left.
func (reg *Registry) DeleteIfEmpty(r *Room) bool {
	if len(r.Participants) > 0 {
		return false
	}
	if current, ok := reg.rooms[r.ID]; ok && current == r {
		delete(reg.rooms, r.ID)
	}
	return true
}

// ResolveIdentity looks a participant up by username.
func (reg *Registry) ResolveIdentity(r *Room, username string) Resolution {
	p, ok := lo.Find(r.Participants, func(p *types.Participant) bool {
		return p.Username == username
	})
	return Resolution{Participant: p, Found: ok}
}

// Rebind moves a participant onto a new connection and marks it connected.
func (reg *Registry) Rebind(p *types.Participant, connectionID string) {
	p.ConnectionID = connectionID
	p.Disconnected = false
}

// FindByConnection scans every room for participants bound to connectionID.
func (reg *Registry) FindByConnection(connectionID string) []Membership {
	var found []Membership
	for _, r := range reg.rooms {
		if p, ok := r.Participant(connectionID); ok {
			found = append(found, Membership{Room: r, Participant: p})
		}
	}
	return found
}

// AppendMessage adds a chat message to the room's log.
func (reg *Registry) AppendMessage(r *Room, msg types.ChatMessage) {
	r.Messages = append(r.Messages, msg)
}

// Len returns the number of live rooms.
func (reg *Registry) Len() int {
	return len(reg.rooms)
}

// Snapshot copies the room into its broadcastable form. Chat history is
// included only when withHistory is set.
func (reg *Registry) Snapshot(r *Room, withHistory bool) *types.RoomSnapshot {
	snap := &types.RoomSnapshot{
		ID:         r.ID,
		Status:     r.Status,
		Topic:      r.Topic,
		Difficulty: r.Difficulty,
		Participants: lo.Map(r.Participants, func(p *types.Participant, _ int) types.Participant {
			return *p
		}),
		Winner:    r.Winner,
		CreatedAt: r.CreatedAt,
	}
	if r.Problem != nil {
		problem := *r.Problem
		snap.Problem = &problem
	}
	if withHistory {
		snap.Messages = append([]types.ChatMessage(nil), r.Messages...)
	}
	return snap
}

// Snapshots returns every live room, oldest first.
func (reg *Registry) Snapshots() []*types.RoomSnapshot {
	rooms := lo.Values(reg.rooms)
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return lo.Map(rooms, func(r *Room, _ int) *types.RoomSnapshot {
		return reg.Snapshot(r, false)
	})
}
