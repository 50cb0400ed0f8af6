package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/importer"
	"github.com/go-chi/render"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Kind     apperr.Kind    `json:"kind,omitempty"`
	Context  map[string]any `json:"context,omitempty"`

	// Import failures
	DimensionCount int           `json:"dimensionCount,omitempty"`
	Failures       []FileFailure `json:"failures,omitempty"`
}

// FileFailure is one rejected run file of an import.
type FileFailure struct {
	File  string      `json:"file"`
	Kind  apperr.Kind `json:"kind,omitempty"`
	Error string      `json:"error"`
}

// Render implements render.Renderer.
func (p *Problem) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, p.Status)
	return nil
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindUnsupportedFormat:      http.StatusUnsupportedMediaType,
	apperr.KindInconsistentDimensions: http.StatusUnprocessableEntity,
	apperr.KindEmptyDataframe:         http.StatusConflict,
	apperr.KindInvalidComponentCount:  http.StatusBadRequest,
	apperr.KindMissingSessionMetadata: http.StatusConflict,
	apperr.KindZeroVariance:           http.StatusUnprocessableEntity,
	apperr.KindInvalidInput:           http.StatusBadRequest,
	apperr.KindNotFound:               http.StatusNotFound,
	apperr.KindConflict:               http.StatusConflict,
	apperr.KindStorage:                http.StatusInternalServerError,
}

// problemFor converts err to problem details.
func problemFor(err error, r *http.Request) *Problem {
	p := &Problem{Type: "/errors/internal", Status: http.StatusInternalServerError, Detail: err.Error(), Instance: r.URL.Path}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		p.Type, p.Status = "/errors/timeout", http.StatusGatewayTimeout
		p.Title = http.StatusText(p.Status)
		return p
	}

	var ie *importer.ImportError
	if errors.As(err, &ie) {
		p.Type, p.Status, p.Kind = "/errors/import", http.StatusUnprocessableEntity, apperr.KindInconsistentDimensions
		p.DimensionCount = ie.DimensionCount
		for _, f := range ie.Failures {
			p.Failures = append(p.Failures, FileFailure{File: f.File, Kind: apperr.KindOf(f.Err), Error: f.Err.Error()})
		}
		if len(ie.Failures) > 0 {
			p.Kind = apperr.KindOf(ie.Failures[0].Err)
		}
		p.Title = "Import Failed"
		return p
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		p.Kind = ae.Kind
		p.Context = ae.Context
		if s, ok := kindStatus[ae.Kind]; ok {
			p.Status = s
		}
		p.Type = "/errors/" + string(ae.Kind)
	}
	p.Title = http.StatusText(p.Status)
	return p
}
