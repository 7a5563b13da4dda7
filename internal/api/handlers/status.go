// Package handlers implements the HTTP surface over state.Store and the
// two command queues: read-only snapshots plus command enqueue endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hil-scheduler/internal/control"
	"hil-scheduler/internal/model"
	"hil-scheduler/internal/state"
)

// StatusHandler serves read-only snapshots of the shared state store.
type StatusHandler struct {
	store        *state.Store
	controlQueue *control.CommandQueue
	settingsQueue *control.CommandQueue
}

// NewStatusHandler constructs a StatusHandler.
func NewStatusHandler(store *state.Store, controlQueue, settingsQueue *control.CommandQueue) *StatusHandler {
	return &StatusHandler{store: store, controlQueue: controlQueue, settingsQueue: settingsQueue}
}

type plantStatus struct {
	Observed      model.ObservedState        `json:"observed"`
	Transition    model.TransitionState      `json:"transition"`
	DispatchWrite model.DispatchWriteStatus  `json:"dispatch_write"`
	PostStatus    state.PostStatus           `json:"post_status"`
	Recording     string                     `json:"recording_path"`
}

// Overview returns GET /api/v1/status: transport mode, per-plant status,
// fetch status, API connection, and both engine statuses.
func (h *StatusHandler) Overview(c *gin.Context) {
	plants := map[model.PlantID]plantStatus{}
	for _, pid := range model.Plants {
		plants[pid] = plantStatus{
			Observed:      h.store.Observed(pid),
			Transition:    h.store.Transition(pid),
			DispatchWrite: h.store.DispatchWriteStatus(pid),
			PostStatus:    h.store.PostStatusFor(pid),
			Recording:     h.store.MeasurementsFilename(pid),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"transport_mode":        h.store.TransportSnapshot(),
			"plants":                plants,
			"fetch_status":          h.store.FetchStatusSnapshot(),
			"api_connection":        h.store.APIConnectionSnapshot(),
			"posting_enabled":       h.store.PostingEnabledSnapshot(),
			"control_engine_status": h.store.ControlEngineStatus,
			"settings_engine_status": h.store.SettingsEngineStatus,
			"control_queue_depth":   h.controlQueue.Depth(),
			"settings_queue_depth":  h.settingsQueue.Depth(),
		},
	})
}

// Plant returns GET /api/v1/plants/:id: one plant's full status.
func (h *StatusHandler) Plant(c *gin.Context) {
	pid := model.PlantID(c.Param("id"))
	if pid != model.PlantLIB && pid != model.PlantVRFB {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "unknown plant id"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plantStatus{
		Observed:      h.store.Observed(pid),
		Transition:    h.store.Transition(pid),
		DispatchWrite: h.store.DispatchWriteStatus(pid),
		PostStatus:    h.store.PostStatusFor(pid),
		Recording:     h.store.MeasurementsFilename(pid),
	}})
}

// ManualSeries returns GET /api/v1/manual-series/:key: one manual override
// series's runtime transition state.
func (h *StatusHandler) ManualSeries(c *gin.Context) {
	key := model.ManualSeriesKey(c.Param("key"))
	c.JSON(http.StatusOK, gin.H{"data": h.store.ManualSeriesRuntimeSnapshot(key)})
}
