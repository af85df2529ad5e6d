package handlers

import (
	"net/http"

	"spectrum_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusStarted  = "started"
	statusStopped  = "stopped"
	statusRangeSet = "range_set"
	statusReset    = "reset"

	errStartSweep    = "failed to start sweep"
	errStopSweep     = "failed to stop sweep"
	errRequestConfig = "failed to request device config"
	errGetSpectrum   = "failed to load spectrum"
	errGetStatus     = "failed to load status"
	errInvalidBody   = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Respond with a status and include the session status (best-effort).
func (h *Handler) respondWithStatus(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	if st, err := h.services.Monitoring.GetStatus(ctx); err == nil {
		resp["session"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// Request DTO for setting the frequency span.
type rangeRequest struct {
	StartMHz float64 `json:"start_mhz" binding:"required"`
	EndMHz   float64 `json:"end_mhz" binding:"required"`
}

// SetRangeRequest is an exported model for Swagger docs of the setRange payload.
type SetRangeRequest struct {
	// Sweep start frequency in MHz
	StartMHz float64 `json:"start_mhz" example:"1990"`
	// Sweep end frequency in MHz
	EndMHz float64 `json:"end_mhz" example:"6000"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Start continuous sweep
// @Tags         sweep
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, session"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/sweep/start [post]
// @Security     BearerAuth
func (h *Handler) startSweep(c *gin.Context) {
	if err := h.services.Sweep.Start(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStartSweep, "sweep_start_failed", err)
		return
	}
	h.respondWithStatus(c, statusStarted, gin.H{})
}

// @Summary      Stop sweep (hold)
// @Tags         sweep
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/sweep/stop [post]
// @Security     BearerAuth
func (h *Handler) stopSweep(c *gin.Context) {
	if err := h.services.Sweep.Stop(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStopSweep, "sweep_stop_failed", err)
		return
	}
	h.respondWithStatus(c, statusStopped, gin.H{})
}

// @Summary      Set frequency range
// @Description  Reconfigures the device span; start/end in MHz
// @Tags         sweep
// @Accept       json
// @Produce      json
// @Param        body  body   SetRangeRequest  true  "Range payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/sweep/range [post]
// @Security     BearerAuth
func (h *Handler) setRange(c *gin.Context) {
	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}
	params := service.RangeParams{
		StartMHz: req.StartMHz,
		EndMHz:   req.EndMHz,
	}
	if err := h.services.Sweep.SetRange(c.Request.Context(), params); err != nil {
		if h.log != nil {
			h.log.Errorw("sweep_set_range_failed", "err", err, "start_mhz", req.StartMHz, "end_mhz", req.EndMHz)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondWithStatus(c, statusRangeSet, gin.H{"start_mhz": req.StartMHz, "end_mhz": req.EndMHz})
}

// @Summary      Request device configuration
// @Tags         sweep
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/sweep/request-config [post]
// @Security     BearerAuth
func (h *Handler) requestConfig(c *gin.Context) {
	if err := h.services.Sweep.RequestConfig(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errRequestConfig, "sweep_request_config_failed", err)
		return
	}
	h.respondWithStatus(c, statusOK, gin.H{})
}

// @Summary      Reset max-hold and average
// @Tags         sweep
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/sweep/reset [post]
// @Security     BearerAuth
func (h *Handler) resetAggregates(c *gin.Context) {
	if err := h.services.Sweep.ResetAggregates(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to reset aggregates", "sweep_reset_failed", err)
		return
	}
	h.respondWithStatus(c, statusReset, gin.H{})
}

// @Summary      Latest spectrum snapshot
// @Tags         spectrum
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/spectrum [get]
// @Security     BearerAuth
func (h *Handler) getSpectrum(c *gin.Context) {
	snap, err := h.services.Monitoring.GetSnapshot(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetSpectrum, "spectrum_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Session status
// @Tags         spectrum
// @Produce      json
// @Success      200  {object}  service.Status
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Monitoring.GetStatus(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "status_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
