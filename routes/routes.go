package routes

import (
	"github.com/battlestacks/battlestacks/handlers"
	"github.com/battlestacks/battlestacks/middleware"
	"github.com/battlestacks/battlestacks/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Handlers bundles everything SetupRoutes mounts.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Tournament   *handlers.TournamentHandler
	Registration *handlers.RegistrationHandler
	Payment      *handlers.PaymentHandler
	Bracket      *handlers.BracketHandler
	Wallet       *handlers.WalletHandler
	WebSocket    *handlers.WebSocketHandler
}

func SetupRoutes(router *chi.Mux, auth *middleware.Authenticator, h Handlers) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.Handler())

	router.Post("/auth/signup", h.Auth.SignUpHandler)
	router.Post("/auth/signin", h.Auth.SignInHandler)

	// Spectator websocket, no auth so shared bracket links work.
	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", h.Tournament.ListHandler)
		r.Get("/{tournamentID}", h.Tournament.GetByIDHandler)
		r.Get("/{tournamentID}/details", h.Bracket.DetailsHandler)

		// Player routes.
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/{tournamentID}/registrations", h.Registration.RegisterHandler)
			r.Get("/{tournamentID}/registrations/me", h.Registration.MyRegistrationHandler)
		})

		// Admin routes.
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Post("/", h.Tournament.CreateHandler)
			r.Put("/{tournamentID}", h.Tournament.UpdateHandler)
			r.Patch("/{tournamentID}/status", h.Tournament.UpdateStatusHandler)
			r.Post("/{tournamentID}/banner", h.Tournament.UploadBannerHandler)
			r.Delete("/{tournamentID}", h.Tournament.DeleteHandler)

			r.Get("/{tournamentID}/registrations", h.Registration.ListByTournamentHandler)

			r.Post("/{tournamentID}/bracket", h.Bracket.GenerateHandler)
			r.Post("/{tournamentID}/bracket/reset", h.Bracket.ResetHandler)
			r.Post("/{tournamentID}/bracket/advance", h.Bracket.AdvanceWinnerHandler)
			r.Post("/{tournamentID}/bracket/remove-team", h.Bracket.RemoveTeamHandler)
			r.Post("/{tournamentID}/winner", h.Bracket.DeclareWinnerHandler)
		})
	})

	router.Route("/registrations", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(middleware.RequireRole(models.RoleAdmin))

		r.Post("/{registrationID}/confirm", h.Payment.ConfirmHandler)
		r.Post("/{registrationID}/mark-pending", h.Payment.MarkPendingHandler)
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Get("/me", h.Auth.MeHandler)
		r.Patch("/me/upi", h.Auth.UpdateUPIHandleHandler)

		r.Get("/wallet", h.Wallet.GetWalletHandler)
		r.Get("/wallet/transactions", h.Wallet.ListTransactionsHandler)
		r.Post("/wallet/redemptions", h.Wallet.RequestRedemptionHandler)
	})

	router.Route("/redemptions", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(middleware.RequireRole(models.RoleAdmin))

		r.Get("/", h.Wallet.ListRedemptionsHandler)
		r.Patch("/{redemptionID}", h.Wallet.SettleRedemptionHandler)
	})
}
