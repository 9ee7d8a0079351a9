package domain

const (
	EventNameChallengeCreated   = "challenge.created"
	EventNameChallengeAccepted  = "challenge.accepted"
	EventNameChallengeDeclined  = "challenge.declined"
	EventNameChallengeCancelled = "challenge.cancelled"
	EventNameChallengeExpired   = "challenge.expired"
	EventNameBattleStarted      = "battle.started"
	EventNameAnswerSubmitted    = "battle.answer_submitted"
	EventNameQuestionAdvanced   = "battle.question_advanced"
	EventNameBattleCompleted    = "battle.completed"
	EventNameParticipantLeft    = "battle.participant_left"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventChallengeCreated struct {
	Challenge Challenge
}

func (EventChallengeCreated) Name() string { return EventNameChallengeCreated }

type EventChallengeAccepted struct {
	Challenge Challenge
	Battle    Battle
}

func (EventChallengeAccepted) Name() string { return EventNameChallengeAccepted }

type EventChallengeDeclined struct {
	Challenge Challenge
}

func (EventChallengeDeclined) Name() string { return EventNameChallengeDeclined }

type EventChallengeCancelled struct {
	Challenge Challenge
}

func (EventChallengeCancelled) Name() string { return EventNameChallengeCancelled }

type EventChallengeExpired struct {
	Challenge Challenge
}

func (EventChallengeExpired) Name() string { return EventNameChallengeExpired }

type EventBattleStarted struct {
	Battle Battle
}

func (EventBattleStarted) Name() string { return EventNameBattleStarted }

type EventAnswerSubmitted struct {
	Battle Battle
	Answer Answer
}

func (EventAnswerSubmitted) Name() string { return EventNameAnswerSubmitted }

type EventQuestionAdvanced struct {
	Battle Battle
	Index  int
}

func (EventQuestionAdvanced) Name() string { return EventNameQuestionAdvanced }

// EventBattleCompleted carries both records as committed together.
type EventBattleCompleted struct {
	Battle    Battle
	Challenge Challenge
}

func (EventBattleCompleted) Name() string { return EventNameBattleCompleted }

type EventParticipantLeft struct {
	Battle    Battle
	StudentID string
}

func (EventParticipantLeft) Name() string { return EventNameParticipantLeft }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
