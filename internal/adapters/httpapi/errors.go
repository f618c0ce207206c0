package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"statefacts/pkg/domain"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError maps a Service error onto a status code and ErrorResponse.
// Only the user facing message of a domain error is sent; causes stay in
// the logs.
func (h *Handlers) writeError(c *gin.Context, err error) {
	logger := h.logger.With("request_id", requestIDOf(c))
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("unclassified error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	status := statusOf(de.Kind)
	msg := de.Msg
	if msg == "" {
		msg = string(de.Kind)
	}
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", "error", err, "status", status)
	} else {
		logger.Debug("request rejected", "error", err, "status", status)
	}
	c.JSON(status, ErrorResponse{Error: msg, Code: string(de.Kind)})
}

// notFound mirrors the catch-all reply of the API: JSON whenever the client
// accepts it, HTML otherwise.
func notFound(c *gin.Context) {
	if acceptsJSON(c.GetHeader("Accept")) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "404 Not Found"})
		return
	}
	c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte("<h1>404 Not Found</h1>"))
}

// acceptsJSON reports whether an Accept header admits application/json.
// A missing header accepts anything.
func acceptsJSON(accept string) bool {
	if strings.TrimSpace(accept) == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		fields := strings.Split(part, ";")
		media := strings.ToLower(strings.TrimSpace(fields[0]))
		if rejected(fields[1:]) {
			continue
		}
		switch {
		case media == "application/json", media == "application/*", media == "*/*", strings.HasSuffix(media, "+json"):
			return true
		}
	}
	return false
}

// rejected reports a q=0 parameter.
func rejected(params []string) bool {
	for _, p := range params {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(k, "q") {
			v = strings.TrimSpace(v)
			return v == "0" || v == "0.0" || v == "0.00" || v == "0.000"
		}
	}
	return false
}
