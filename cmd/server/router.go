package main

import (
	"net/http"

	"reporting-gateway/internal/handlers"

	"github.com/gorilla/mux"
)

// Routes bundles the handlers and middleware the router wires together.
type Routes struct {
	Auth      *handlers.AuthHandler
	Gateway   *handlers.GatewayHandler
	JWKS      *handlers.JWKSHandler
	Authn     func(http.Handler) http.Handler
	LoginRate func(http.Handler) http.Handler
}

// SetupRouter configures and returns the HTTP router with all routes and middleware
func SetupRouter(routes Routes) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/.well-known/jwks.json", routes.JWKS.HandleJWKS).Methods(http.MethodGet)

	authAPI := router.PathPrefix("/api/auth").Subrouter()
	authAPI.Handle("/login", routes.LoginRate(http.HandlerFunc(routes.Auth.HandleLogin))).Methods(http.MethodPost)
	authAPI.HandleFunc("/refresh", routes.Auth.HandleRefresh).Methods(http.MethodPost)
	authAPI.HandleFunc("/validate", routes.Auth.HandleValidate).Methods(http.MethodPost)
	authAPI.Handle("/me", routes.Authn(http.HandlerFunc(routes.Auth.HandleMe))).Methods(http.MethodGet)

	// Report routes exist only when an upstream is configured.
	if routes.Gateway != nil {
		gateway := router.PathPrefix("/api/gateway").Subrouter()
		gateway.Use(routes.Authn)
		gateway.HandleFunc("/daily-actions", routes.Gateway.HandleDailyActions).Methods(http.MethodPost)
		gateway.HandleFunc("/player-details", routes.Gateway.HandlePlayerDetails).Methods(http.MethodPost)
		gateway.HandleFunc("/transactions", routes.Gateway.HandleTransactions).Methods(http.MethodPost)
		gateway.HandleFunc("/player-games", routes.Gateway.HandlePlayerGames).Methods(http.MethodPost)
		gateway.HandleFunc("/player-summary", routes.Gateway.HandlePlayerSummary).Methods(http.MethodPost)
		gateway.HandleFunc("/income-access", routes.Gateway.HandleIncomeAccess).Methods(http.MethodPost)
	}

	return router
}
