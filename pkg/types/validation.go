package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var roomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// validate is shared across calls; validator caches struct metadata internally.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return IsValidRoomID(fl.Field().String())
	})
	return v
}

// Validate checks the envelope and the fields required by its event type.
func (e *ClientEvent) Validate() error {
	if !IsValidEventType(e.Type) {
		return ErrInvalidEventType
	}

	if err := validate.Struct(e); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Field() == "RoomID" {
					return ErrInvalidRoomID
				}
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch e.Type {
	case EventJoin, EventRejoinRoom:
		if !IsValidUsername(e.Username) {
			return ErrInvalidUsername
		}
	case EventChatMessage:
		if !IsValidUsername(e.Username) {
			return ErrInvalidUsername
		}
		if strings.TrimSpace(e.Text) == "" {
			return ErrMissingText
		}
	case EventVoiceSignal:
		if e.TargetConnectionID == "" {
			return ErrMissingTarget
		}
	}

	return nil
}

// IsValidRoomID reports whether a room ID is 1-64 characters of
// letters, digits, underscore or hyphen.
func IsValidRoomID(roomID string) bool {
	return roomIDRegex.MatchString(roomID)
}

// IsValidUsername reports whether a username is 1-50 runes with no
// surrounding whitespace. Usernames identify participants on rejoin, so
// " alice" and "alice" must not both be accepted.
func IsValidUsername(username string) bool {
	if username != strings.TrimSpace(username) {
		return false
	}
	n := utf8.RuneCountInString(username)
	return n >= 1 && n <= 50
}

// IsValidEventType reports whether an inbound event type is recognized.
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventJoin,
		EventSubmitUpdate,
		EventLeaveRoom,
		EventRejoinRoom,
		EventChatMessage,
		EventVoiceSignal,
		EventCallUser,
		EventVoiceStatus:
		return true
	default:
		return false
	}
}
