package hub

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeduel/internal/grace"
	"codeduel/internal/room"
	"codeduel/pkg/types"
)

const recordTimeout = 5 * time.Second

func (h *Hub) handleEvent(connectionID string, event *types.ClientEvent) {
	switch event.Type {
	case types.EventJoin:
		h.admit(connectionID, event.RoomID, strings.TrimSpace(event.Username), event.Topic, types.ParseDifficulty(event.Difficulty))
	case types.EventSubmitUpdate:
		h.handleSubmitUpdate(connectionID, event)
	case types.EventLeaveRoom:
		if r, ok := h.rooms.Get(event.RoomID); ok {
			h.removeParticipant(r, connectionID, types.ReasonOpponentLeft)
		}
	case types.EventRejoinRoom:
		h.handleRejoin(connectionID, event)
	case types.EventChatMessage:
		h.handleChat(connectionID, event)
	case types.EventVoiceSignal:
		h.handleVoiceSignal(connectionID, event)
	case types.EventCallUser:
		h.handleCallUser(connectionID, event)
	case types.EventVoiceStatus:
		h.bus.ToRoomExcept(event.RoomID, connectionID, &types.ServerEvent{
			Type:   types.EventVoiceStatus,
			RoomID: event.RoomID,
			From:   connectionID,
			Status: event.Status,
		})
	default:
		h.logger.Warn().Str("event", event.Type).Str("connection_id", connectionID).Msg("unhandled event type")
	}
}

// admit places connectionID into roomID as username, creating the room when
// it does not exist. A second participant starts the match.
func (h *Hub) admit(connectionID, roomID, username, topic string, difficulty types.Difficulty) {
	r, created := h.rooms.GetOrCreate(roomID, topic, difficulty)
	if !created {
		if _, already := r.Participant(connectionID); already {
			_ = h.bus.ToConnection(connectionID, &types.ServerEvent{
				Type: types.EventRoomUpdate,
				Room: h.rooms.Snapshot(r, false),
			})
			return
		}
		if r.Status != types.RoomWaiting || r.Full() {
			h.reject(connectionID, roomID, types.CodeRoomUnavailable, "room is not accepting players")
			return
		}
		if h.rooms.ResolveIdentity(r, username).Found {
			h.reject(connectionID, roomID, types.CodeUsernameTaken, "username already in room")
			return
		}
	}

	h.rooms.AddParticipant(r, username, connectionID)
	h.bus.Subscribe(roomID, connectionID)

	h.logger.Info().
		Str("room_id", roomID).
		Str("username", username).
		Str("connection_id", connectionID).
		Bool("created", created).
		Msg("participant joined")

	h.broadcastSnapshot(r)

	if len(r.Participants) == types.MatchRoomCapacity && r.Status == types.RoomWaiting {
		h.startMatch(r)
	}
}

// startMatch announces the match and selects a problem off the loop. The
// result comes back through the assignments channel.
func (h *Hub) startMatch(r *room.Room) {
	h.rooms.SetStatus(r, types.RoomStarting)
	h.bus.ToRoom(r.ID, &types.ServerEvent{
		Type: types.EventMatchStarting,
		Room: h.rooms.Snapshot(r, false),
	})

	topic, difficulty := r.Topic, string(r.Difficulty)
	h.logger.Info().Str("room_id", r.ID).Str("topic", topic).Str("difficulty", difficulty).Msg("match starting")

	h.async.Add(1)
	go func() {
		defer h.async.Done()
		problem := h.selector.Select(h.ctx, topic, difficulty)
		select {
		case h.assignments <- &problemAssignment{room: r, problem: &problem}:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) handleAssignment(a *problemAssignment) {
	r, ok := h.rooms.Get(a.room.ID)
	if !ok || r != a.room {
		h.logger.Debug().Str("room_id", a.room.ID).Msg("problem assigned to a room that no longer exists")
		return
	}
	if r.Status != types.RoomStarting {
		h.logger.Debug().Str("room_id", r.ID).Str("status", string(r.Status)).Msg("problem assigned outside starting state")
		return
	}
	if a.problem == nil || a.problem.Slug == "" {
		h.logger.Error().Str("room_id", r.ID).Msg("problem selection returned no problem")
		return
	}

	h.rooms.SetProblem(r, a.problem)
	h.rooms.SetStatus(r, types.RoomActive)

	h.logger.Info().
		Str("room_id", r.ID).
		Str("problem", a.problem.Slug).
		Int("participants", len(r.Participants)).
		Msg("match active")

	h.bus.ToRoom(r.ID, &types.ServerEvent{
		Type:    types.EventMatchActive,
		Room:    h.rooms.Snapshot(r, false),
		Problem: a.problem,
	})
}

func (h *Hub) handleSubmitUpdate(connectionID string, event *types.ClientEvent) {
	r, ok := h.rooms.Get(event.RoomID)
	if !ok {
		return
	}
	p, ok := r.Participant(connectionID)
	if !ok {
		return
	}

	p.Score = event.TestcaseCount
	if event.Passed {
		p.State = types.StateCompleted
	} else {
		p.State = types.StateAttempting
	}
	h.broadcastSnapshot(r)
}

// handleRejoin rebinds an existing participant to its new connection, or
// admits the username fresh when the room no longer knows it.
func (h *Hub) handleRejoin(connectionID string, event *types.ClientEvent) {
	r, ok := h.rooms.Get(event.RoomID)
	if !ok {
		h.reject(connectionID, event.RoomID, types.CodeRoomNotFound, "room no longer exists")
		return
	}

	username := strings.TrimSpace(event.Username)
	res := h.rooms.ResolveIdentity(r, username)
	if !res.Found {
		h.admit(connectionID, r.ID, username, r.Topic, r.Difficulty)
		return
	}

	p := res.Participant
	previous := p.ConnectionID
	cancelled := h.grace.Cancel(grace.Key{RoomID: r.ID, Username: p.Username})

	h.rooms.Rebind(p, connectionID)
	if previous != connectionID {
		h.bus.Unsubscribe(r.ID, previous)
	}
	h.bus.Subscribe(r.ID, connectionID)

	h.logger.Info().
		Str("room_id", r.ID).
		Str("username", p.Username).
		Str("connection_id", connectionID).
		Str("previous_connection_id", previous).
		Bool("grace_cancelled", cancelled).
		Msg("participant rejoined")

	if err := h.bus.ToConnection(connectionID, &types.ServerEvent{
		Type:    types.EventRoomState,
		RoomID:  r.ID,
		Room:    h.rooms.Snapshot(r, true),
		Problem: r.Problem,
	}); err != nil {
		h.logger.Warn().Err(err).Str("connection_id", connectionID).Msg("failed to replay room state")
	}

	h.bus.ToRoomExcept(r.ID, connectionID, &types.ServerEvent{
		Type: types.EventRoomUpdate,
		Room: h.rooms.Snapshot(r, false),
	})
}

func (h *Hub) handleChat(connectionID string, event *types.ClientEvent) {
	r, ok := h.rooms.Get(event.RoomID)
	if !ok {
		return
	}

	username := event.Username
	if p, ok := r.Participant(connectionID); ok {
		username = p.Username
	}

	msg := types.ChatMessage{
		ID:        uuid.NewString(),
		Username:  username,
		Text:      event.Text,
		Timestamp: h.now(),
	}
	h.rooms.AppendMessage(r, msg)

	h.bus.ToRoom(r.ID, &types.ServerEvent{
		Type:    types.EventChatMessage,
		Message: &msg,
	})
}

func (h *Hub) handleVoiceSignal(connectionID string, event *types.ClientEvent) {
	err := h.bus.ToConnection(event.TargetConnectionID, &types.ServerEvent{
		Type:   types.EventVoiceSignal,
		RoomID: event.RoomID,
		From:   connectionID,
		Signal: event.Signal,
	})
	if err != nil {
		h.logger.Debug().Err(err).Str("target", event.TargetConnectionID).Msg("voice signal not relayed")
	}
}

func (h *Hub) handleCallUser(connectionID string, event *types.ClientEvent) {
	caller := event.Username
	if r, ok := h.rooms.Get(event.RoomID); ok {
		if p, ok := r.Participant(connectionID); ok {
			caller = p.Username
		}
	}
	h.bus.ToRoom(event.RoomID, &types.ServerEvent{
		Type:     types.EventIncomingCall,
		From:     connectionID,
		Username: caller,
	})
}

// handleDisconnect starts a grace period for participants of active rooms
// and removes everyone else at once.
func (h *Hub) handleDisconnect(connectionID string) {
	for _, m := range h.rooms.FindByConnection(connectionID) {
		r, p := m.Room, m.Participant

		if r.Status != types.RoomActive {
			h.removeParticipant(r, connectionID, types.ReasonOpponentLeft)
			continue
		}

		key := grace.Key{RoomID: r.ID, Username: p.Username}
		entry, err := h.grace.Arm(key, connectionID, h.onGraceExpired)
		if err != nil {
			h.logger.Warn().Err(err).Str("room_id", r.ID).Str("username", p.Username).Msg("grace timer not armed")
			continue
		}

		p.Disconnected = true
		h.bus.Unsubscribe(r.ID, connectionID)

		h.logger.Info().
			Str("room_id", r.ID).
			Str("username", p.Username).
			Time("expires_at", entry.ExpiresAt).
			Msg("participant disconnected, grace period started")

		h.broadcastSnapshot(r)
	}
}

func (h *Hub) handleExpiry(e graceExpiry) {
	entry, ok := h.grace.Claim(e.key, e.token)
	if !ok {
		return
	}

	r, ok := h.rooms.Get(entry.Key.RoomID)
	if !ok {
		return
	}
	res := h.rooms.ResolveIdentity(r, entry.Key.Username)
	if !res.Found {
		return
	}

	h.logger.Info().Str("room_id", r.ID).Str("username", entry.Key.Username).Msg("grace period expired")
	h.removeParticipant(r, res.Participant.ConnectionID, types.ReasonOpponentTimedOut)
}

// removeParticipant is the single exit path out of a room. Removing a
// participant that is already gone does nothing.
func (h *Hub) removeParticipant(r *room.Room, connectionID, reason string) {
	wasActive := r.Status == types.RoomActive

	p, ok := h.rooms.RemoveParticipant(r, connectionID)
	if !ok {
		return
	}
	h.bus.Unsubscribe(r.ID, connectionID)
	h.grace.Cancel(grace.Key{RoomID: r.ID, Username: p.Username})

	h.logger.Info().
		Str("room_id", r.ID).
		Str("username", p.Username).
		Str("reason", reason).
		Int("remaining", len(r.Participants)).
		Msg("participant removed")

	if h.rooms.DeleteIfEmpty(r) {
		h.grace.CancelRoom(r.ID)
		h.logger.Info().Str("room_id", r.ID).Msg("room deleted")
		return
	}

	h.broadcastSnapshot(r)

	if wasActive && len(r.Participants) == 1 && r.Winner == "" {
		winner := r.Participants[0]
		r.Winner = winner.Username

		h.logger.Info().Str("room_id", r.ID).Str("winner", winner.Username).Str("left", p.Username).Msg("winner declared")

		h.bus.ToRoom(r.ID, &types.ServerEvent{
			Type:   types.EventPlayerLeft,
			Room:   h.rooms.Snapshot(r, false),
			Winner: winner.Username,
			Left:   p.Username,
		})
		h.recordResult(r, winner.Username, p.Username, reason)
	}
}

// recordResult persists a finished match without blocking the loop.
func (h *Hub) recordResult(r *room.Room, winner, opponent, reason string) {
	if h.results == nil {
		return
	}

	result := &types.MatchResult{
		ID:         uuid.NewString(),
		RoomID:     r.ID,
		Winner:     winner,
		Opponent:   opponent,
		Topic:      r.Topic,
		Difficulty: r.Difficulty,
		Reason:     reason,
		StartedAt:  r.StartedAt,
		EndedAt:    h.now(),
	}
	if r.Problem != nil {
		result.ProblemSlug = r.Problem.Slug
	}

	h.async.Add(1)
	go func() {
		defer h.async.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := h.results.RecordMatch(ctx, result); err != nil {
			h.logger.Error().Err(err).Str("room_id", result.RoomID).Str("match_id", result.ID).Msg("failed to record match result")
		}
	}()
}

func (h *Hub) broadcastSnapshot(r *room.Room) {
	h.bus.ToRoom(r.ID, &types.ServerEvent{
		Type: types.EventRoomUpdate,
		Room: h.rooms.Snapshot(r, false),
	})
}

func (h *Hub) reject(connectionID, roomID, code, message string) {
	if err := h.bus.ToConnection(connectionID, types.ErrorEvent(roomID, code, message)); err != nil {
		h.logger.Debug().Err(err).Str("connection_id", connectionID).Str("code", code).Msg("error notice not delivered")
	}
}
