package responses

import (
	"net/http"
	"time"

	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/gin-gonic/gin"
)

// StandardResponse represents a standard API response format
type StandardResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}, msg string, message []string) {
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	c.JSON(status, StandardResponse{
		Success:   true,
		Data:      data,
		Message:   msg,
		Timestamp: time.Now().UTC(),
		TraceID:   getTraceID(c),
	})
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}, message ...string) {
	respond(c, http.StatusOK, data, "Operation successful", message)
}

// Accepted sends a 202 Accepted response. Commands are accepted once they
// are handed to a session; the broker's answer arrives as an event.
func Accepted(c *gin.Context, data interface{}, message ...string) {
	respond(c, http.StatusAccepted, data, "Request sent to broker", message)
}

// Error sends err as RFC 7807 problem details
func Error(c *gin.Context, err error) {
	p := errors.Problem(err, c.Request.URL.Path)
	if traceID := getTraceID(c); traceID != "" {
		p.WithExtra("trace_id", traceID)
	}
	p.WithExtra("timestamp", time.Now().UTC().Format(time.RFC3339))

	c.Header("Content-Type", "application/problem+json")
	c.JSON(p.Status, p)
}

// getTraceID extracts trace ID from context
func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}
