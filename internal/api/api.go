// Package api exposes the battle services over HTTP+JSON.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/raindrop/internal/battle"
	"github.com/victornm/raindrop/internal/challenge"
	"github.com/victornm/raindrop/internal/leaderboard"
	"github.com/victornm/raindrop/internal/unlock"
)

type Balance interface {
	Total(ctx context.Context, studentID string) (int64, error)
}

type Config struct {
	Secret      []byte
	Challenge   *challenge.Service
	Battle      *battle.Service
	Leaderboard *leaderboard.Service
	Currency    Balance
}

type API struct {
	secret []byte
	cs     *challenge.Service
	bs     *battle.Service
	ls     *leaderboard.Service
	bal    Balance
}

func New(c Config) (*API, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}

	return &API{
		secret: c.Secret,
		cs:     c.Challenge,
		bs:     c.Battle,
		ls:     c.Leaderboard,
		bal:    c.Currency,
	}, nil
}

// Register mounts every route under /api/v1.
func (a *API) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.Use(Authenticate(a.secret), RequireStudent())

	v1.GET("/opponents", a.ListOpponents)
	v1.GET("/unlocks", a.GetUnlocks)
	v1.GET("/leaderboard", a.GetLeaderboard)

	challenges := v1.Group("/challenges")
	{
		challenges.POST("", a.CreateChallenge)
		challenges.GET("/pending", a.ListPending)
		challenges.GET("/history", a.GetHistory)
		challenges.GET("/:id", a.GetChallenge)
		challenges.POST("/:id/accept", a.AcceptChallenge)
		challenges.POST("/:id/decline", a.DeclineChallenge)
		challenges.DELETE("/:id", a.CancelChallenge)
	}

	battles := v1.Group("/battles")
	{
		battles.GET("/:id", a.GetBattle)
		battles.POST("/:id/ready", a.MarkReady)
		battles.POST("/:id/answers", a.SubmitAnswer)
		battles.GET("/:id/status", a.GetStatus)
		battles.POST("/:id/forfeit", a.Forfeit)
		battles.POST("/:id/leave", a.Leave)
	}
}

func (a *API) GetUnlocks(c *gin.Context) {
	total, err := a.bal.Total(c.Request.Context(), callerID(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"currency": total,
		"tiers":    unlock.AvailableTiers(total),
	})
}

type leaderboardQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (a *API) GetLeaderboard(c *gin.Context) {
	var q leaderboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		renderError(c, bindError(err))
		return
	}

	resp, err := a.ls.Top(c.Request.Context(), leaderboard.TopRequest{
		StudentID: callerID(c),
		Limit:     q.Limit,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
