package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/OldStager01/alarm-evaluator/pkg/models"
	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 1000

// AlarmLister exposes the alarms currently assigned to this evaluator.
type AlarmLister interface {
	Alarms() []models.Alarm
	Alarm(id string) (models.Alarm, bool)
}

// HistoryReader is satisfied by *queries.AlarmRepository.
type HistoryReader interface {
	History(ctx context.Context, alarmID string, limit int) ([]*models.Transition, error)
}

type AlarmHandler struct {
	alarms       AlarmLister
	history      HistoryReader
	defaultLimit int
}

func NewAlarmHandler(alarms AlarmLister, history HistoryReader, defaultLimit int) *AlarmHandler {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	return &AlarmHandler{
		alarms:       alarms,
		history:      history,
		defaultLimit: defaultLimit,
	}
}

// List returns the assigned alarms, optionally filtered by ?state=.
func (h *AlarmHandler) List(c *gin.Context) {
	var filter models.AlarmState
	if raw := c.Query("state"); raw != "" {
		state, err := models.ParseAlarmState(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter = state
	}

	alarms := h.alarms.Alarms()
	data := make([]models.Alarm, 0, len(alarms))
	for _, a := range alarms {
		if filter != "" && a.State != filter {
			continue
		}
		data = append(data, a)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  data,
		"count": len(data),
	})
}

func (h *AlarmHandler) Get(c *gin.Context) {
	alarm, ok := h.alarms.Alarm(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "alarm not assigned to this evaluator"})
		return
	}
	c.JSON(http.StatusOK, alarm)
}

func (h *AlarmHandler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store not configured"})
		return
	}

	alarmID := c.Param("id")
	limit := h.parseLimit(c)

	transitions, err := h.history.History(c.Request.Context(), alarmID, limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alarm history"})
		return
	}
	if transitions == nil {
		transitions = []*models.Transition{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alarm_id": alarmID,
		"data":     transitions,
		"count":    len(transitions),
	})
}

func (h *AlarmHandler) parseLimit(c *gin.Context) int {
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit
}
