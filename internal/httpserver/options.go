package httpserver

import (
	"github.com/go-chi/chi/v5"

	"github.com/meridianhealth/patient-portal/internal/log"
	"github.com/meridianhealth/patient-portal/internal/pipeline"
	"github.com/meridianhealth/patient-portal/internal/probe"
)

type Options struct {
	Logger    log.Logger
	Port      int
	Pipeline  *pipeline.Pipeline
	Health    probe.Probe
	Readiness probe.Probe

	// APIRoutes mounts the portal routes onto the router. The login rate
	// limiter is captured by the closure.
	APIRoutes func(chi.Router)
}
