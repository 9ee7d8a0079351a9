package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/raindrop/internal/battle"
)

func (a *API) GetBattle(c *gin.Context) {
	v, err := a.bs.Get(c.Request.Context(), battleRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (a *API) MarkReady(c *gin.Context) {
	resp, err := a.bs.MarkReady(c.Request.Context(), battleRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"started":      resp.Started,
		"status":       resp.Battle.Status,
		"participants": resp.Battle.Participants,
	})
}

type submitAnswerBody struct {
	QuestionOrder    int    `json:"question_order" binding:"required,min=1"`
	SelectedOption   string `json:"selected_option"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var body submitAnswerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		renderError(c, bindError(err))
		return
	}

	resp, err := a.bs.SubmitAnswer(c.Request.Context(), battle.SubmitRequest{
		BattleID:         c.Param("id"),
		StudentID:        callerID(c),
		QuestionOrder:    body.QuestionOrder,
		SelectedOption:   body.SelectedOption,
		TimeSpentSeconds: body.TimeSpentSeconds,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) GetStatus(c *gin.Context) {
	st, err := a.bs.LiveStatus(c.Request.Context(), battleRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) Forfeit(c *gin.Context) {
	resp, err := a.bs.Forfeit(c.Request.Context(), battleRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"winner_id": resp.WinnerID,
		"results":   resp.Battle.Results,
	})
}

func (a *API) Leave(c *gin.Context) {
	st, err := a.bs.Leave(c.Request.Context(), battleRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func battleRequest(c *gin.Context) battle.Request {
	return battle.Request{
		BattleID:  c.Param("id"),
		StudentID: callerID(c),
	}
}
