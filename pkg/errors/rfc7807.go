package errors

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs
const (
	TypeValidationError = "https://fixgate.local/problems/validation-error"
	TypeNotFound        = "https://fixgate.local/problems/not-found"
	TypeRouting         = "https://fixgate.local/problems/no-route"
	TypeConflict        = "https://fixgate.local/problems/conflict"
	TypeUnavailable     = "https://fixgate.local/problems/unavailable"
	TypeInternalError   = "https://fixgate.local/problems/internal-error"
)

// Problem titles
const (
	TitleValidationError = "Validation Error"
	TitleNotFound        = "Not Found"
	TitleRouting         = "No Session For Role"
	TitleConflict        = "Conflict"
	TitleUnavailable     = "Service Unavailable"
	TitleInternalError   = "Internal Server Error"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Errors   []FieldError           `json:"errors,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

// WithExtra adds extra fields to the problem details (they will be serialized at the top level)
func (p *ProblemDetails) WithExtra(key string, value interface{}) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]interface{})
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON implements custom JSON marshaling to include extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}
	for k, v := range p.Extra {
		result[k] = v
	}
	return json.Marshal(result)
}

// Problem converts any error into problem details. Kinds map onto HTTP
// statuses; anything else is an internal error.
func Problem(err error, instance string) *ProblemDetails {
	p := &ProblemDetails{
		Type:     TypeInternalError,
		Title:    TitleInternalError,
		Status:   http.StatusInternalServerError,
		Detail:   err.Error(),
		Instance: instance,
	}

	var e *Error
	if As(err, &e) {
		p.Detail = e.Message
		if p.Detail == "" {
			p.Detail = e.Error()
		}
		p.Errors = e.Fields
	}

	switch {
	case Is(err, Invalid):
		p.Type, p.Title, p.Status = TypeValidationError, TitleValidationError, http.StatusBadRequest
	case Is(err, NotFound):
		p.Type, p.Title, p.Status = TypeNotFound, TitleNotFound, http.StatusNotFound
	case Is(err, Routing):
		p.Type, p.Title, p.Status = TypeRouting, TitleRouting, http.StatusServiceUnavailable
	case Is(err, Conflict), Is(err, Inconsistent):
		p.Type, p.Title, p.Status = TypeConflict, TitleConflict, http.StatusConflict
	case Is(err, Unavailable):
		p.Type, p.Title, p.Status = TypeUnavailable, TitleUnavailable, http.StatusServiceUnavailable
	}
	return p
}
