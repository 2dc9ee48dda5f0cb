package handler

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/prismkeys/prism/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document for the HTTP API. The document
// is static and built on first request.
type OpenAPIHandler struct {
	baseURL string
	version string

	once sync.Once
	doc  *openapi3.T
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(baseURL, version string) *OpenAPIHandler {
	return &OpenAPIHandler{baseURL: baseURL, version: version}
}

// ServeSpec handles GET /openapi.json.
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		h.doc = openapi.Generate(h.baseURL, h.version)
	})
	writeJSON(w, http.StatusOK, h.doc)
}
