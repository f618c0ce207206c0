package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"statefacts/pkg/domain"
)

// RandomFactResponse is the body of GET /states/:state/funfact.
type RandomFactResponse struct {
	Fact string `json:"funfact"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// ListStates handles GET /states/?contig=true|false.
func (h *Handlers) ListStates(c *gin.Context) {
	views, err := h.svc.CompositeAll(c.Request.Context(), domain.FilterFromContig(c.Query("contig")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// GetState handles GET /states/:state.
func (h *Handlers) GetState(c *gin.Context) {
	view, err := h.svc.Composite(c.Request.Context(), c.Param("state"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetField returns the handler for GET /states/:state/<field>.
func (h *Handlers) GetField(field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.svc.Field(c.Request.Context(), c.Param("state"), field)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// RandomFact handles GET /states/:state/funfact.
func (h *Handlers) RandomFact(c *gin.Context) {
	fact, err := h.svc.PickRandomFact(c.Request.Context(), c.Param("state"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RandomFactResponse{Fact: fact})
}

// AppendFacts handles POST /states/:state/funfact.
func (h *Handlers) AppendFacts(c *gin.Context) {
	var req domain.AppendRequest
	if !h.bind(c, domain.OpAppend, &req) {
		return
	}
	doc, err := h.svc.AppendFacts(c.Request.Context(), c.Param("state"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ReplaceFact handles PATCH /states/:state/funfact.
func (h *Handlers) ReplaceFact(c *gin.Context) {
	var req domain.ReplaceRequest
	if !h.bind(c, domain.OpReplace, &req) {
		return
	}
	doc, err := h.svc.ReplaceFact(c.Request.Context(), c.Param("state"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteFact handles DELETE /states/:state/funfact.
func (h *Handlers) DeleteFact(c *gin.Context) {
	var req domain.DeleteRequest
	if !h.bind(c, domain.OpDelete, &req) {
		return
	}
	doc, err := h.svc.DeleteFact(c.Request.Context(), c.Param("state"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// bind decodes the JSON body into req. An empty body leaves req zero so the
// Service reports the missing fields; malformed JSON is rejected here.
func (h *Handlers) bind(c *gin.Context, op string, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(c, domain.InvalidArgument(op, "", "malformed JSON body"))
		return false
	}
	return true
}

// Healthz reports process liveness.
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz reports whether the fact store answers.
func (h *Handlers) Readyz(c *gin.Context) {
	if err := h.svc.Ready(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}
