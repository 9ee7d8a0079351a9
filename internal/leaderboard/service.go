package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/event"
	"github.com/victornm/raindrop/internal/student"
)

const (
	publishInterval = 200 * time.Millisecond
	// recordedTTL bounds how long a battle id is remembered for de-duplication.
	recordedTTL = 7 * 24 * time.Hour

	DefaultLimit = 10
	MaxLimit     = 100
)

// recordScript counts a battle at most once. KEYS: recorded marker, wins zset.
// ARGV: marker ttl in ms, winner ("" for a tie), participants. The marker is
// written last so a failed update leaves the battle uncounted.
var recordScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
for i = 3, #ARGV do
	redis.call('ZADD', KEYS[2], 'NX', 0, ARGV[i])
end
if ARGV[2] ~= '' then
	redis.call('ZINCRBY', KEYS[2], 1, ARGV[2])
end
redis.call('SET', KEYS[1], 1, 'PX', ARGV[1])
return 1
`)

type Config struct {
	EventBus *event.Bus
	Students student.Directory
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb       *event.Bus
	students student.Directory
	redis    redis.UniversalClient
	prefix   string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		students: c.Students,
		redis:    c.Redis,
		prefix:   c.Prefix,
	}

	event.On(s.eb, domain.EventNameBattleCompleted, s.RecordBattle)

	return s
}

// RecordBattle credits the winner of a completed battle. Both participants get a
// ranking entry. A battle is counted once even if the event is delivered again.
func (s *Service) RecordBattle(ctx context.Context, e domain.EventBattleCompleted) error {
	b := e.Battle
	grade := b.Settings.Grade

	var winner string
	if b.Results != nil {
		winner = b.Results.WinnerID
	}
	args := []any{recordedTTL.Milliseconds(), winner}
	for _, pt := range b.Participants {
		args = append(args, pt.StudentID)
	}

	recorded, err := recordScript.Run(ctx, s.redis, []string{s.recordedKey(b.BattleID), s.winsKey(grade)}, args...).Int()
	if err != nil {
		return fmt.Errorf("record battle: battle=%s: %w", b.BattleID, err)
	}
	if recorded == 0 {
		return nil
	}

	return s.schedulePublish(ctx, grade)
}

type TopRequest struct {
	StudentID string
	Limit     int
}

type Top struct {
	domain.Leaderboard
	// Me is the caller's own entry, nil when they have not battled yet.
	Me *domain.LeaderboardEntry `json:"me,omitempty"`
}

// Top returns the battle-win ranking of the caller's grade.
func (s *Service) Top(ctx context.Context, req TopRequest) (*Top, error) {
	me, err := s.students.Student(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	l, err := s.leaderboard(ctx, me.Grade, limit)
	if err != nil {
		return nil, err
	}
	out := &Top{Leaderboard: *l}

	rank, err := s.redis.ZRevRank(ctx, s.winsKey(me.Grade), req.StudentID).Result()
	switch {
	case err == redis.Nil:
		return out, nil
	case err != nil:
		return nil, fmt.Errorf("rank: %w", err)
	}
	wins, err := s.redis.ZScore(ctx, s.winsKey(me.Grade), req.StudentID).Result()
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	out.Me = &domain.LeaderboardEntry{
		Rank:      int(rank) + 1,
		StudentID: me.StudentID,
		Name:      me.Name,
		Wins:      int64(wins),
	}

	return out, nil
}

func (s *Service) leaderboard(ctx context.Context, grade string, limit int) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.winsKey(grade), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	names := map[string]string{}
	if len(res) > 0 {
		classmates, err := s.students.StudentsInGrade(ctx, grade)
		if err != nil {
			return nil, fmt.Errorf("students in grade: %w", err)
		}
		for _, st := range classmates {
			names[st.StudentID] = st.Name
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		id := z.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			Rank:      i + 1,
			StudentID: id,
			Name:      names[id],
			Wins:      int64(z.Score),
		})
	}

	return &domain.Leaderboard{Grade: grade, Entries: entries}, nil
}

// schedulePublish announces ranking changes at most once per interval per grade.
func (s *Service) schedulePublish(ctx context.Context, grade string) error {
	ok, err := s.redis.SetNX(ctx, s.publishKey(grade), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil
	}

	l, err := s.leaderboard(ctx, grade, DefaultLimit)
	if err != nil {
		return fmt.Errorf("get leaderboard failed: grade=%s: %w", grade, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *l})
	return nil
}

func (s *Service) winsKey(grade string) string {
	return fmt.Sprintf("%s:leaderboard:%s:wins", s.prefix, grade)
}

func (s *Service) publishKey(grade string) string {
	return fmt.Sprintf("%s:leaderboard:%s:time", s.prefix, grade)
}

func (s *Service) recordedKey(battleID string) string {
	return fmt.Sprintf("%s:leaderboard:battle:%s", s.prefix, battleID)
}
