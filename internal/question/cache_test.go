package question_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
	"github.com/victornm/raindrop/internal/question"
)

type countingBank struct {
	question.Bank
	gets atomic.Int64
}

func (b *countingBank) Get(ctx context.Context, ids ...string) ([]domain.Question, error) {
	b.gets.Add(1)
	return b.Bank.Get(ctx, ids...)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{QuestionID: "q1", Grade: "5", Subject: "math", Difficulty: domain.DifficultyAdvanced, Text: "2+2", CorrectAnswer: "4",
			Options: []domain.Option{{Text: "3"}, {Text: "4", Correct: true}}},
		{QuestionID: "q2", Grade: "5", Subject: "math", Difficulty: domain.DifficultyExpert, Text: "3*3", CorrectAnswer: "9"},
		{QuestionID: "q3", Grade: "5", Subject: "math", Difficulty: domain.DifficultyBeginner, Text: "1+1", CorrectAnswer: "2"},
		{QuestionID: "q4", Grade: "6", Subject: "math", Difficulty: domain.DifficultyExpert, Text: "2^5", CorrectAnswer: "32"},
	}
}

func newCache(t *testing.T) (*question.Cache, *countingBank, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bank := &countingBank{Bank: question.NewStatic(sampleQuestions()...)}
	c := question.NewCache(question.CacheConfig{
		Bank:   bank,
		Redis:  rdb,
		Prefix: "raindrop",
		TTL:    time.Minute,
	})
	return c, bank, mr
}

func TestCache_Get(t *testing.T) {
	c, bank, mr := newCache(t)
	ctx := context.Background()

	qs, err := c.Get(ctx, "q2", "q1")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "q2", qs[0].QuestionID)
	assert.Equal(t, "q1", qs[1].QuestionID)
	assert.Equal(t, "4", qs[1].CorrectAnswer)
	assert.EqualValues(t, 1, bank.gets.Load())
	assert.True(t, mr.Exists("raindrop:question:q1"))

	ttl := mr.TTL("raindrop:question:q1")
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.LessOrEqual(t, ttl, time.Minute+6*time.Second)

	qs, err = c.Get(ctx, "q1", "q2")
	require.NoError(t, err)
	assert.Equal(t, "q1", qs[0].QuestionID)
	assert.EqualValues(t, 1, bank.gets.Load(), "second read should be served by the cache")

	_, err = c.Get(ctx, "q1", "q3")
	require.NoError(t, err)
	assert.EqualValues(t, 2, bank.gets.Load(), "only the miss goes to the bank")
}

func TestCache_GetUnknown(t *testing.T) {
	c, _, _ := newCache(t)

	_, err := c.Get(context.Background(), "q1", "nope")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestCache_DegradesWhenRedisIsDown(t *testing.T) {
	c, bank, mr := newCache(t)
	mr.Close()

	qs, err := c.Get(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "q1", qs[0].QuestionID)
	assert.EqualValues(t, 1, bank.gets.Load())
}

func TestStatic_ListIDs(t *testing.T) {
	bank := question.NewStatic(sampleQuestions()...)

	ids, err := bank.ListIDs(context.Background(), question.Filter{
		Grade:        "5",
		Subject:      "math",
		Difficulties: domain.DifficultyAdvanced.AndHarder(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids)
}
