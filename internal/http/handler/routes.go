package handler

import (
	"database/sql"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"invoicesheet/internal/service"
)

// RegisterRoutes attaches the HTTP surface. Everything under /api requires
// a bearer token; health probes and metrics are open.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.InvoiceService, auth fiber.Handler, gatherer prometheus.Gatherer) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api", auth)
	api.Post("/process-invoice", ProcessInvoice(svc))
	api.Get("/usage", GetUsage(svc))
	api.Get("/profile", GetProfile(svc))
	api.Put("/profile/sheet-id", UpdateSheetID(svc))
	api.Post("/profile/refresh-token", SaveRefreshToken(svc))
	api.Get("/invoices/:id/archive", DownloadArchive(svc))
}
