// Package routes binds all the routes served by the AutoScan API.
package routes

import (
	"github.com/ahrav/recon-armada/internal/api/autoscan"
	"github.com/ahrav/recon-armada/internal/api/health"
	"github.com/ahrav/recon-armada/internal/api/mux"
	"github.com/ahrav/recon-armada/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	health.Routes(app, health.Config{
		Build:   cfg.Build,
		Log:     cfg.Log,
		Checker: cfg.Service,
	})

	autoscan.Routes(app, autoscan.Config{
		Log:     cfg.Log,
		Service: cfg.Service,
		Metrics: cfg.Metrics,
	})
}
