package types

import (
	"encoding/json"
	"time"
)

// Inbound event types sent by clients over the websocket.
const (
	EventJoin         = "join"
	EventSubmitUpdate = "submit_update"
	EventLeaveRoom    = "leave_room"
	EventRejoinRoom   = "rejoin_room"
	EventChatMessage  = "chat_message"
	EventVoiceSignal  = "voice_signal"
	EventCallUser     = "call_user"
	EventVoiceStatus  = "voice_status"
)

// Outbound event types emitted by the server.
const (
	EventConnected     = "connected"
	EventRoomUpdate    = "room_update"
	EventMatchStarting = "match_starting"
	EventMatchActive   = "match_active"
	EventIncomingCall  = "incoming_call"
	EventPlayerLeft    = "player_left"
	EventRoomState     = "room_state"
	EventError         = "error"
)

// Error notice codes carried by EventError.
const (
	CodeRoomNotFound    = "room_not_found"
	CodeRoomUnavailable = "room_unavailable"
	CodeUsernameTaken   = "username_taken"
	CodeInvalidEvent    = "invalid_event"
	CodeRateLimited     = "rate_limited"
)

// RoomStatus is the lifecycle stage of a room. A room with no participants
// is deleted rather than given a terminal status.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomStarting RoomStatus = "starting"
	RoomActive   RoomStatus = "active"
)

// ParticipantState tracks a participant's progress on the assigned problem.
type ParticipantState string

const (
	StateJoined     ParticipantState = "joined"
	StateAttempting ParticipantState = "attempting"
	StateCompleted  ParticipantState = "completed"
)

// MatchRoomCapacity is the number of participants that starts a match.
const MatchRoomCapacity = 2

// Match end reasons recorded in MatchResult.
const (
	ReasonOpponentLeft     = "opponent_left"
	ReasonOpponentTimedOut = "opponent_timed_out"
)

// Problem is the problem assigned to a room once matching completes.
type Problem struct {
	ExternalID      string `json:"externalId"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	DifficultyLevel int    `json:"difficultyLevel"`
}

// Participant is one side of a match. ConnectionID changes across
// reconnects; Username is the stable identity.
type Participant struct {
	ConnectionID string           `json:"connectionId"`
	Username     string           `json:"username"`
	Score        int              `json:"score"`
	State        ParticipantState `json:"state"`
	Disconnected bool             `json:"disconnected"`
}

// ChatMessage is an entry in a room's append-only chat log.
type ChatMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomSnapshot is the broadcastable view of a room.
type RoomSnapshot struct {
	ID           string        `json:"id"`
	Status       RoomStatus    `json:"status"`
	Topic        string        `json:"topic"`
	Difficulty   Difficulty    `json:"difficulty"`
	Participants []Participant `json:"participants"`
	Problem      *Problem      `json:"problem,omitempty"`
	Winner       string        `json:"winner,omitempty"`
	Messages     []ChatMessage `json:"messages,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// MatchResult is the outcome of a match that ended with a declared winner.
type MatchResult struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"roomId"`
	Winner      string     `json:"winner"`
	Opponent    string     `json:"opponent"`
	ProblemSlug string     `json:"problemSlug"`
	Topic       string     `json:"topic"`
	Difficulty  Difficulty `json:"difficulty"`
	Reason      string     `json:"reason"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     time.Time  `json:"endedAt"`
}

// ClientEvent is the envelope for every inbound websocket event. Which fields
// are meaningful depends on Type; Validate checks the per-type requirements.
type ClientEvent struct {
	Type               string          `json:"type" validate:"required"`
	RoomID             string          `json:"roomId" validate:"required,roomid"`
	Username           string          `json:"username,omitempty" validate:"omitempty,max=50"`
	Topic              string          `json:"topic,omitempty" validate:"max=100"`
	Difficulty         string          `json:"difficulty,omitempty" validate:"omitempty,oneof=Easy Medium Hard easy medium hard"`
	Passed             bool            `json:"passed,omitempty"`
	TestcaseCount      int             `json:"testcaseCount,omitempty" validate:"gte=0"`
	Text               string          `json:"text,omitempty" validate:"max=2000"`
	TargetConnectionID string          `json:"targetConnectionId,omitempty"`
	Signal             json.RawMessage `json:"signal,omitempty"`
	Status             string          `json:"status,omitempty" validate:"max=50"`
}

// ServerEvent is the envelope for every outbound websocket event.
type ServerEvent struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"roomId,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Room         *RoomSnapshot   `json:"room,omitempty"`
	Problem      *Problem        `json:"problem,omitempty"`
	Message      *ChatMessage    `json:"message,omitempty"`
	Winner       string          `json:"winner,omitempty"`
	Left         string          `json:"left,omitempty"`
	From         string          `json:"from,omitempty"`
	Username     string          `json:"username,omitempty"`
	Signal       json.RawMessage `json:"signal,omitempty"`
	Status       string          `json:"status,omitempty"`
	Code         string          `json:"code,omitempty"`
	Error        string          `json:"error,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ErrorEvent builds an error notice addressed to a single connection.
func ErrorEvent(roomID, code, message string) *ServerEvent {
	return &ServerEvent{
		Type:   EventError,
		RoomID: roomID,
		Code:   code,
		Error:  message,
	}
}

// FeedEntry is one problem as listed by a problem source, before filtering.
type FeedEntry struct {
	ExternalID string `json:"externalId"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	Level      int    `json:"level"`
	PaidOnly   bool   `json:"paidOnly"`
}

// Problem converts a feed entry into the problem record stored on a room.
func (f FeedEntry) Problem() Problem {
	return Problem{
		ExternalID:      f.ExternalID,
		Title:           f.Title,
		Slug:            f.Slug,
		DifficultyLevel: f.Level,
	}
}
