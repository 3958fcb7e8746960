package types

import "strings"

// Difficulty is the human-facing difficulty name requested at join time.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// DefaultDifficulty applies when a requested name is empty or unknown.
const DefaultDifficulty = DifficultyMedium

// ParseDifficulty maps a difficulty name to its canonical form, case-insensitively.
// Unknown or empty names map to DefaultDifficulty.
func ParseDifficulty(name string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "easy":
		return DifficultyEasy
	case "medium":
		return DifficultyMedium
	case "hard":
		return DifficultyHard
	default:
		return DefaultDifficulty
	}
}

// Level returns the numeric difficulty level used by the problem feed:
// 1 for Easy, 2 for Medium, 3 for Hard.
func (d Difficulty) Level() int {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyHard:
		return 3
	default:
		return 2
	}
}

// DifficultyFromLevel is the inverse of Level. Out-of-range levels map to DefaultDifficulty.
func DifficultyFromLevel(level int) Difficulty {
	switch level {
	case 1:
		return DifficultyEasy
	case 2:
		return DifficultyMedium
	case 3:
		return DifficultyHard
	default:
		return DefaultDifficulty
	}
}
