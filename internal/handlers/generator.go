package handlers

import (
	"context"
	"fmt"
	"net/http"

	dom "github.com/like-Ocean/TODOs/internal/domain"
	"github.com/like-Ocean/TODOs/internal/dto"
	"github.com/like-Ocean/TODOs/internal/importer"

	"github.com/gin-gonic/gin"
)

// Generator is the control surface of the periodic importer.
type Generator interface {
	Start() bool
	Stop() bool
	RunOnce(ctx context.Context) []dom.Task
	Status() importer.Status
}

type GeneratorHandler struct {
	gen Generator
}

func NewGeneratorHandler(gen Generator) *GeneratorHandler {
	return &GeneratorHandler{gen: gen}
}

// Run godoc
// @Summary      Run one import cycle now
// @Description  Created tasks are also broadcast as task_created.
// @Tags         task-generator
// @Produce      json
// @Success      200  {object}  dto.GeneratorRunResult
// @Router       /task-generator/run [post]
func (h *GeneratorHandler) Run(c *gin.Context) {
	created := h.gen.RunOnce(c.Request.Context())
	if len(created) == 0 {
		c.JSON(http.StatusOK, dto.GeneratorRunResult{
			Status:  "info",
			Message: "No new tasks created (all already exist or the source is unavailable)",
			Tasks:   []dto.TaskResponse{},
		})
		return
	}
	c.JSON(http.StatusOK, dto.GeneratorRunResult{
		Status:  "success",
		Message: fmt.Sprintf("Tasks created: %d", len(created)),
		Tasks:   tasksToResponses(created),
	})
}

// Start godoc
// @Summary      Start the periodic importer
// @Tags         task-generator
// @Produce      json
// @Success      200  {object}  dto.GeneratorResult
// @Router       /task-generator/start [post]
func (h *GeneratorHandler) Start(c *gin.Context) {
	if !h.gen.Start() {
		c.JSON(http.StatusOK, dto.GeneratorResult{Status: "info", Message: "Generator is already running"})
		return
	}
	c.JSON(http.StatusOK, dto.GeneratorResult{Status: "success", Message: "Generator started"})
}

// Stop godoc
// @Summary      Stop the periodic importer
// @Tags         task-generator
// @Produce      json
// @Success      200  {object}  dto.GeneratorResult
// @Router       /task-generator/stop [post]
func (h *GeneratorHandler) Stop(c *gin.Context) {
	if !h.gen.Stop() {
		c.JSON(http.StatusOK, dto.GeneratorResult{Status: "info", Message: "Generator is already stopped"})
		return
	}
	c.JSON(http.StatusOK, dto.GeneratorResult{Status: "success", Message: "Generator stopped"})
}

// Status godoc
// @Summary      Importer status
// @Tags         task-generator
// @Produce      json
// @Success      200  {object}  dto.GeneratorStatus
// @Router       /task-generator/status [get]
func (h *GeneratorHandler) Status(c *gin.Context) {
	st := h.gen.Status()
	c.JSON(http.StatusOK, dto.GeneratorStatus{
		IsRunning:       st.IsRunning,
		IntervalSeconds: st.Interval.Seconds(),
		APIURL:          st.SourceURL,
		CurrentOffset:   st.CurrentOffset,
	})
}
