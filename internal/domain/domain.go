package domain

import (
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Student is the directory view of a user who may take part in battles.
type Student struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Grade     string `json:"grade"`
	Role      Role   `json:"role"`
}

// Difficulty of a question. Only advanced and expert are challenge tiers.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

var difficultyRank = map[Difficulty]int{
	DifficultyBeginner:     0,
	DifficultyIntermediate: 1,
	DifficultyAdvanced:     2,
	DifficultyExpert:       3,
}

// Tiers lists the challenge tiers in ascending order.
var Tiers = []Difficulty{DifficultyAdvanced, DifficultyExpert}

func (d Difficulty) Valid() bool {
	_, ok := difficultyRank[d]
	return ok
}

// IsTier reports whether d can be chosen for a challenge.
func (d Difficulty) IsTier() bool {
	return d == DifficultyAdvanced || d == DifficultyExpert
}

// AndHarder returns d and every difficulty ranked above it.
func (d Difficulty) AndHarder() []Difficulty {
	r, ok := difficultyRank[d]
	if !ok {
		return nil
	}

	var out []Difficulty
	for _, o := range []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert} {
		if difficultyRank[o] >= r {
			out = append(out, o)
		}
	}
	return out
}

// Question is an immutable record supplied by the question bank.
type Question struct {
	QuestionID    string     `json:"question_id"`
	Grade         string     `json:"grade"`
	Subject       string     `json:"subject"`
	Difficulty    Difficulty `json:"difficulty"`
	Text          string     `json:"text"`
	Options       []Option   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Explanation   string     `json:"explanation,omitempty"`
}

type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// IsCorrect compares the selected option text with the correct answer text.
func (q Question) IsCorrect(selected string) bool {
	return strings.TrimSpace(selected) != "" && strings.TrimSpace(selected) == strings.TrimSpace(q.CorrectAnswer)
}

// BattleStats summarises a student's finished challenges.
type BattleStats struct {
	Wins     int `json:"wins"`
	Losses   int `json:"losses"`
	Ties     int `json:"ties"`
	Declined int `json:"declined"`
}

func (s BattleStats) Total() int {
	return s.Wins + s.Losses + s.Ties
}

type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
	Wins      int64  `json:"wins"`
}

// Leaderboard ranks the students of one grade by battle wins.
type Leaderboard struct {
	Grade   string             `json:"grade"`
	Entries []LeaderboardEntry `json:"entries"`
}
