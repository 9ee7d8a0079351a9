package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/raindrop/internal/challenge"
	"github.com/victornm/raindrop/internal/domain"
)

type opponentsQuery struct {
	Subject string `form:"subject"`
}

func (a *API) ListOpponents(c *gin.Context) {
	var q opponentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		renderError(c, bindError(err))
		return
	}

	resp, err := a.cs.Opponents(c.Request.Context(), challenge.OpponentsRequest{
		StudentID: callerID(c),
		Subject:   q.Subject,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type createChallengeBody struct {
	ChallengedID string            `json:"challenged_id" binding:"required"`
	Subject      string            `json:"subject" binding:"required"`
	Difficulty   domain.Difficulty `json:"difficulty" binding:"required,tier"`
	Wager        int               `json:"wager_raindrops" binding:"required,min=1,max=50"`
	Message      string            `json:"message" binding:"max=280"`
}

func (a *API) CreateChallenge(c *gin.Context) {
	var body createChallengeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		renderError(c, bindError(err))
		return
	}

	ch, err := a.cs.Create(c.Request.Context(), challenge.CreateRequest{
		ChallengerID: callerID(c),
		ChallengedID: body.ChallengedID,
		Subject:      body.Subject,
		Difficulty:   body.Difficulty,
		Wager:        body.Wager,
		Message:      body.Message,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ch)
}

func (a *API) ListPending(c *gin.Context) {
	resp, err := a.cs.ListPending(c.Request.Context(), callerID(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type historyQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

func (a *API) GetHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		renderError(c, bindError(err))
		return
	}

	resp, err := a.cs.History(c.Request.Context(), challenge.HistoryRequest{
		StudentID: callerID(c),
		Page:      q.Page,
		PageSize:  q.PageSize,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) GetChallenge(c *gin.Context) {
	ch, err := a.cs.Get(c.Request.Context(), actionRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, ch)
}

func (a *API) AcceptChallenge(c *gin.Context) {
	resp, err := a.cs.Accept(c.Request.Context(), actionRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge": resp.Challenge,
		"battle_id": resp.BattleID,
	})
}

func (a *API) DeclineChallenge(c *gin.Context) {
	ch, err := a.cs.Decline(c.Request.Context(), actionRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge_id": ch.ChallengeID,
		"status":       ch.Status,
	})
}

func (a *API) CancelChallenge(c *gin.Context) {
	ch, err := a.cs.Cancel(c.Request.Context(), actionRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge_id": ch.ChallengeID,
		"status":       domain.ChallengeCancelled,
	})
}

func actionRequest(c *gin.Context) challenge.ActionRequest {
	return challenge.ActionRequest{
		ChallengeID: c.Param("id"),
		ActorID:     callerID(c),
	}
}
