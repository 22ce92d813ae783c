package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/justinas/alice"

	"settlement/internal/app/handler"
	middleware2 "settlement/internal/app/middleware"
)

func (a *App) Router() http.Handler {

	r := chi.NewRouter()
	r.Use(alice.New(
		middleware.Recoverer,
		middleware2.RequestID(a.logger),
		middleware2.Log(a.logger),
	).Then)

	wh := handler.NewWebhookHandler(a.pipeline)
	th := handler.NewTransactionHandler(a.pipeline)
	ah := handler.NewAdminHandler(a.pipeline)

	r.Route("/api", func(r chi.Router) {
		r.Route("/webhook/{provider}", func(r chi.Router) {
			r.Post("/authorize", wh.Authorize)
			r.Post("/transfer", wh.Transfer)
			r.Post("/cancel", wh.Cancel)
		})
		r.Get("/transactions/{provider}/{direction}/{externalID}", th.Get)
		r.Post("/admin/reprocess", ah.Reprocess)
	})

	return r
}
