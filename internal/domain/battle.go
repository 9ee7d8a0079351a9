package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/raindrop/internal/errors"
)

type BattleStatus string

const (
	BattleWaiting    BattleStatus = "waiting"
	BattleReady      BattleStatus = "ready"
	BattleInProgress BattleStatus = "in-progress"
	BattleCompleted  BattleStatus = "completed"
	BattleAbandoned  BattleStatus = "abandoned"
)

func (s BattleStatus) Terminal() bool {
	return s == BattleCompleted || s == BattleAbandoned
}

type PartyRole string

const (
	PartyChallenger PartyRole = "challenger"
	PartyChallenged PartyRole = "challenged"
)

type BattleEventType string

const (
	BattleEventJoin            BattleEventType = "join"
	BattleEventReady           BattleEventType = "ready"
	BattleEventStart           BattleEventType = "battle_start"
	BattleEventAnswer          BattleEventType = "answer_submitted"
	BattleEventQuestionAdvance BattleEventType = "question_advance"
	BattleEventComplete        BattleEventType = "battle_complete"
	BattleEventDisconnect      BattleEventType = "disconnect"
	BattleEventForfeit         BattleEventType = "forfeit"
)

// BattleEvent is an audit record; state is never rebuilt from it.
type BattleEvent struct {
	Type      BattleEventType `json:"type"`
	StudentID string          `json:"student_id,omitempty"`
	Time      time.Time       `json:"time"`
	Detail    map[string]any  `json:"detail,omitempty"`
}

type BattleSettings struct {
	Grade          string     `json:"grade"`
	Subject        string     `json:"subject"`
	Difficulty     Difficulty `json:"difficulty"`
	QuestionCount  int        `json:"question_count"`
	AllowedSeconds int        `json:"allowed_seconds"`
}

// Answer is one slot of the per-question ledger, keyed by (Order, StudentID).
type Answer struct {
	Order          int       `json:"question_order"`
	StudentID      string    `json:"student_id"`
	SelectedOption string    `json:"selected_option"`
	Correct        bool      `json:"correct"`
	TimeSpent      int       `json:"time_spent"`
	Points         int       `json:"points"`
	Currency       int       `json:"currency"`
	SubmitTime     time.Time `json:"submit_time"`
}

// LiveScore is derived from the answer ledger by fold and is never edited directly.
type LiveScore struct {
	TotalScore     int             `json:"total_score"`
	TotalCurrency  int             `json:"total_currency"`
	CorrectAnswers int             `json:"correct_answers"`
	Answered       int             `json:"answered"`
	TotalTimeSpent int             `json:"total_time_spent"`
	AverageTime    decimal.Decimal `json:"average_time"`
}

type Participant struct {
	StudentID string    `json:"student_id"`
	Role      PartyRole `json:"role"`
	Ready     bool      `json:"ready"`
	Connected bool      `json:"connected"`
	Score     LiveScore `json:"score"`
}

type FinalScore struct {
	StudentID      string `json:"student_id"`
	Score          int    `json:"score"`
	Currency       int    `json:"currency"`
	CorrectAnswers int    `json:"correct_answers"`
	TimeSpent      int    `json:"time_spent"`
}

type BattleResults struct {
	WinnerID        string       `json:"winner_id,omitempty"`
	WinCondition    WinCondition `json:"win_condition"`
	FinalScores     []FinalScore `json:"final_scores"`
	DurationSeconds int          `json:"duration_seconds"`
}

// Battle is the live head-to-head session created when a challenge is accepted.
type Battle struct {
	BattleID             string              `json:"battle_id"`
	ChallengeID          string              `json:"challenge_id"`
	Status               BattleStatus        `json:"status"`
	Settings             BattleSettings      `json:"settings"`
	Questions            []ChallengeQuestion `json:"questions"`
	Participants         []Participant       `json:"participants"`
	CurrentQuestionIndex int                 `json:"current_question_index"`
	QuestionStartTime    *time.Time          `json:"question_start_time,omitempty"`
	Answers              []Answer            `json:"answers"`
	Results              *BattleResults      `json:"results,omitempty"`
	Events               []BattleEvent       `json:"events"`
	CreateTime           time.Time           `json:"create_time"`
	StartTime            *time.Time          `json:"start_time,omitempty"`
	CompleteTime         *time.Time          `json:"complete_time,omitempty"`
}

// NewBattle seeds a session from an accepted challenge.
func NewBattle(battleID string, c *Challenge, allowedSeconds int, now time.Time) *Battle {
	return &Battle{
		BattleID:    battleID,
		ChallengeID: c.ChallengeID,
		Status:      BattleWaiting,
		Settings: BattleSettings{
			Grade:          c.Grade,
			Subject:        c.Subject,
			Difficulty:     c.Difficulty,
			QuestionCount:  len(c.Questions),
			AllowedSeconds: allowedSeconds,
		},
		Questions: append([]ChallengeQuestion(nil), c.Questions...),
		Participants: []Participant{
			{StudentID: c.ChallengerID, Role: PartyChallenger},
			{StudentID: c.ChallengedID, Role: PartyChallenged},
		},
		Answers:    []Answer{},
		Events:     []BattleEvent{},
		CreateTime: now,
	}
}

func (b *Battle) Participant(studentID string) (*Participant, bool) {
	for i := range b.Participants {
		if b.Participants[i].StudentID == studentID {
			return &b.Participants[i], true
		}
	}
	return nil, false
}

func (b *Battle) Opponent(studentID string) (*Participant, bool) {
	if _, ok := b.Participant(studentID); !ok {
		return nil, false
	}
	for i := range b.Participants {
		if b.Participants[i].StudentID != studentID {
			return &b.Participants[i], true
		}
	}
	return nil, false
}

func (b *Battle) Question(order int) (ChallengeQuestion, bool) {
	for _, q := range b.Questions {
		if q.Order == order {
			return q, true
		}
	}
	return ChallengeQuestion{}, false
}

func (b *Battle) Answered(studentID string, order int) bool {
	for _, a := range b.Answers {
		if a.StudentID == studentID && a.Order == order {
			return true
		}
	}
	return false
}

// AnswersOf returns the ledger entries of one participant in submission order.
func (b *Battle) AnswersOf(studentID string) []Answer {
	var out []Answer
	for _, a := range b.Answers {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out
}

func (b *Battle) appendEvent(t BattleEventType, studentID string, now time.Time, detail map[string]any) {
	b.Events = append(b.Events, BattleEvent{Type: t, StudentID: studentID, Time: now, Detail: detail})
}

func (b *Battle) notParticipant(studentID string) error {
	return errors.New(errors.CodePermissionDenied,
		errors.WithKind(errors.KindNotParticipant),
		errors.WithMessagef("student %s is not a participant of battle %s", studentID, b.BattleID),
	)
}

func (b *Battle) invalidStatus(op string) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithKind(errors.KindInvalidStatus),
		errors.WithMessagef("cannot %s battle %s while %s", op, b.BattleID, b.Status),
		errors.WithDetail("status", b.Status),
	)
}

// MarkReady flags the participant ready and starts the battle once both are ready.
// It reports whether this call started the battle. Re-marking is a no-op.
func (b *Battle) MarkReady(studentID string, now time.Time) (bool, error) {
	p, ok := b.Participant(studentID)
	if !ok {
		return false, b.notParticipant(studentID)
	}
	if b.Status.Terminal() {
		return false, b.invalidStatus("ready up for")
	}
	if p.Ready {
		return false, nil
	}

	p.Ready = true
	p.Connected = true
	b.appendEvent(BattleEventReady, studentID, now, nil)

	for _, o := range b.Participants {
		if !o.Ready {
			return false, nil
		}
	}

	b.Status = BattleInProgress
	b.StartTime = &now
	b.CurrentQuestionIndex = 0
	b.QuestionStartTime = &now
	b.appendEvent(BattleEventStart, "", now, nil)
	return true, nil
}

// Connect marks a participant as connected, logging a join the first time.
func (b *Battle) Connect(studentID string, now time.Time) (bool, error) {
	p, ok := b.Participant(studentID)
	if !ok {
		return false, b.notParticipant(studentID)
	}
	if p.Connected || b.Status.Terminal() {
		return false, nil
	}
	p.Connected = true
	b.appendEvent(BattleEventJoin, studentID, now, nil)
	return true, nil
}

// Disconnect clears the connectivity flag. No state transition follows.
func (b *Battle) Disconnect(studentID string, now time.Time) error {
	p, ok := b.Participant(studentID)
	if !ok {
		return b.notParticipant(studentID)
	}
	if !p.Connected {
		return nil
	}
	p.Connected = false
	b.appendEvent(BattleEventDisconnect, studentID, now, nil)
	return nil
}

// CheckSubmission validates the preconditions of an answer submission.
func (b *Battle) CheckSubmission(studentID string, order int) error {
	if b.Status != BattleInProgress {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithKind(errors.KindSessionNotInProgress),
			errors.WithMessagef("battle %s is %s", b.BattleID, b.Status),
			errors.WithDetail("status", b.Status),
		)
	}
	if _, ok := b.Participant(studentID); !ok {
		return b.notParticipant(studentID)
	}
	if _, ok := b.Question(order); !ok {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithKind(errors.KindInvalidQuestionOrder),
			errors.WithMessagef("battle %s has no question with order %d", b.BattleID, order),
			errors.WithDetail("question_count", len(b.Questions)),
		)
	}
	if b.Answered(studentID, order) {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithKind(errors.KindAlreadyAnswered),
			errors.WithMessagef("question %d already answered", order),
		)
	}
	return nil
}

// RecordAnswer writes a scored answer into its ledger slot, refolds the live
// scores, advances the cursor and completes the battle when every slot is filled.
// It reports whether the battle completed.
func (b *Battle) RecordAnswer(a Answer) (bool, error) {
	if err := b.CheckSubmission(a.StudentID, a.Order); err != nil {
		return false, err
	}

	b.Answers = append(b.Answers, a)
	b.fold()
	b.appendEvent(BattleEventAnswer, a.StudentID, a.SubmitTime, map[string]any{
		"question_order": a.Order,
		"correct":        a.Correct,
		"points":         a.Points,
	})
	b.advance(a.SubmitTime)

	if !b.allAnswered() {
		return false, nil
	}

	standings := b.standings()
	winner, cond := DecideWinner(standings[0], standings[1])
	b.complete(winner, cond, a.SubmitTime)
	return true, nil
}

// Forfeit ends the battle immediately in favour of the other participant.
func (b *Battle) Forfeit(studentID string, now time.Time) error {
	opp, ok := b.Opponent(studentID)
	if !ok {
		return b.notParticipant(studentID)
	}
	if b.Status != BattleWaiting && b.Status != BattleReady && b.Status != BattleInProgress {
		return b.invalidStatus("forfeit")
	}

	b.appendEvent(BattleEventForfeit, studentID, now, nil)
	b.complete(opp.StudentID, WinByForfeit, now)
	return nil
}

func (b *Battle) complete(winnerID string, cond WinCondition, now time.Time) {
	b.Status = BattleCompleted
	b.CompleteTime = &now

	start := b.CreateTime
	if b.StartTime != nil {
		start = *b.StartTime
	}

	scores := make([]FinalScore, 0, len(b.Participants))
	for _, p := range b.Participants {
		scores = append(scores, FinalScore{
			StudentID:      p.StudentID,
			Score:          p.Score.TotalScore,
			Currency:       p.Score.TotalCurrency,
			CorrectAnswers: p.Score.CorrectAnswers,
			TimeSpent:      p.Score.TotalTimeSpent,
		})
	}

	b.Results = &BattleResults{
		WinnerID:        winnerID,
		WinCondition:    cond,
		FinalScores:     scores,
		DurationSeconds: int(now.Sub(start) / time.Second),
	}
	b.appendEvent(BattleEventComplete, winnerID, now, map[string]any{"win_condition": cond})
}

// fold recomputes every participant's live score from the answer ledger.
func (b *Battle) fold() {
	for i := range b.Participants {
		p := &b.Participants[i]
		var s LiveScore
		for _, a := range b.Answers {
			if a.StudentID != p.StudentID {
				continue
			}
			s.TotalScore += a.Points
			s.TotalCurrency += a.Currency
			s.TotalTimeSpent += a.TimeSpent
			s.Answered++
			if a.Correct {
				s.CorrectAnswers++
			}
		}
		if s.Answered > 0 {
			s.AverageTime = decimal.NewFromInt(int64(s.TotalTimeSpent)).
				DivRound(decimal.NewFromInt(int64(s.Answered)), 2)
		}
		p.Score = s
	}
}

// advance moves the cursor past every question both participants have answered.
func (b *Battle) advance(now time.Time) {
	for b.CurrentQuestionIndex < len(b.Questions)-1 {
		order := b.Questions[b.CurrentQuestionIndex].Order
		for _, p := range b.Participants {
			if !b.Answered(p.StudentID, order) {
				return
			}
		}
		b.CurrentQuestionIndex++
		b.QuestionStartTime = &now
		b.appendEvent(BattleEventQuestionAdvance, "", now, map[string]any{"current_question_index": b.CurrentQuestionIndex})
	}
}

func (b *Battle) allAnswered() bool {
	for _, p := range b.Participants {
		for _, q := range b.Questions {
			if !b.Answered(p.StudentID, q.Order) {
				return false
			}
		}
	}
	return true
}

func (b *Battle) standings() []Standing {
	out := make([]Standing, 0, len(b.Participants))
	for _, p := range b.Participants {
		out = append(out, Standing{
			StudentID: p.StudentID,
			Score:     p.Score.TotalScore,
			TimeSpent: p.Score.TotalTimeSpent,
		})
	}
	return out
}

// RedactFor returns a copy of the battle as studentID may see it. Until the
// battle completes, the opponent's answers are withheld and their answer
// events keep only the question order.
func (b *Battle) RedactFor(studentID string) *Battle {
	cp := b.Clone()
	if b.Status == BattleCompleted {
		return cp
	}

	cp.Answers = append([]Answer{}, b.AnswersOf(studentID)...)
	for i, e := range cp.Events {
		if e.Type != BattleEventAnswer || e.StudentID == studentID {
			continue
		}
		cp.Events[i].Detail = map[string]any{"question_order": e.Detail["question_order"]}
	}
	return cp
}

func (b *Battle) Clone() *Battle {
	cp := *b
	cp.Questions = append([]ChallengeQuestion(nil), b.Questions...)
	cp.Participants = append([]Participant(nil), b.Participants...)
	cp.Answers = append([]Answer{}, b.Answers...)
	cp.Events = append([]BattleEvent{}, b.Events...)
	cp.QuestionStartTime = cloneTime(b.QuestionStartTime)
	cp.StartTime = cloneTime(b.StartTime)
	cp.CompleteTime = cloneTime(b.CompleteTime)
	if b.Results != nil {
		r := *b.Results
		r.FinalScores = append([]FinalScore(nil), b.Results.FinalScores...)
		cp.Results = &r
	}
	return &cp
}
