package handlers

import "github.com/labstack/echo/v4"

// Routes mounts every endpoint on e. auth guards user routes and admin
// guards operator routes; admin runs after auth.
func (h *Handler) Routes(e *echo.Echo, auth, admin echo.MiddlewareFunc) {
	e.POST("/api/signin", h.Signin)

	api := e.Group("/api", auth)
	api.GET("/races", h.Races)
	api.GET("/roster", h.Roster)
	api.GET("/tracks", h.Tracks)
	api.GET("/dates", h.Dates)
	api.GET("/trainers", h.GetAllTrainers)
	api.GET("/trainer-notes", h.GetTrainerText)
	api.GET("/wallet", h.Wallet)
	api.GET("/wallet/transactions", h.Transactions)
	api.GET("/wagers", h.Wagers)
	api.POST("/wagers", h.PlaceWager)

	ops := api.Group("/ops", admin)
	ops.POST("/password-hash", h.PasswordHash)
	ops.POST("/tracks", h.UpdateTrack)
	ops.POST("/trainer-notes", h.SaveTrainerText)
	ops.POST("/reconcile", h.Reconcile)
	ops.POST("/settle", h.Settle)
	ops.POST("/races/reopen", h.Reopen)
	ops.POST("/races/:id/collapse", h.Collapse)
}
