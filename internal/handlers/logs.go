package handlers

import (
	"net/http"
	"time"

	"spectrum_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

const dateOnlyLayout = "2006-01-02"

// parseQueryTime accepts RFC3339 or a bare date. A bare date in "to" is
// extended to the end of that day so ?to=2026-08-23 includes the whole day.
func parseQueryTime(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnlyLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// @Summary      Threshold event log
// @Description  Filter with from/to (RFC3339 or YYYY-MM-DD) and kind (CRITICAL|WARNING). recent=true returns the in-memory tail instead.
// @Tags         logs
// @Produce      json
// @Param        from    query  string  false  "start of time range"
// @Param        to      query  string  false  "end of time range"
// @Param        kind    query  string  false  "event kind filter"
// @Param        recent  query  bool    false  "serve from the in-memory ring"
// @Success      200  {array}   spectrum_bridge.LogEvent
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	if c.Query("recent") == "true" {
		c.JSON(http.StatusOK, h.services.EventLog.Recent(c.Request.Context()))
		return
	}

	from, err := parseQueryTime(c.Query("from"), false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from': " + err.Error()})
		return
	}
	to, err := parseQueryTime(c.Query("to"), true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to': " + err.Error()})
		return
	}

	events, err := h.services.EventLog.List(c.Request.Context(), service.LogFilter{
		From: from,
		To:   to,
		Kind: c.Query("kind"),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, events)
}
