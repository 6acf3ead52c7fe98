package api

import (
	"database/sql"
	"net/http"

	"github.com/propbook-app/propbook/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	propertiesHandler := &PropertiesHandler{DB: db, QRSecret: jwtSecret}
	transfersHandler := &TransfersHandler{DB: db, QRSecret: jwtSecret}
	correctionsHandler := &CorrectionsHandler{DB: db}
	ledgerHandler := &LedgerHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Property book: read (all roles), write (manager+).
	mux.Handle("GET /api/properties", authMW(http.HandlerFunc(propertiesHandler.List)))
	mux.Handle("POST /api/properties", authMW(requireManager(http.HandlerFunc(propertiesHandler.Register))))
	mux.Handle("GET /api/properties/{id}", authMW(http.HandlerFunc(propertiesHandler.Get)))
	mux.Handle("PUT /api/properties/{id}", authMW(requireManager(http.HandlerFunc(propertiesHandler.Update))))
	mux.Handle("PUT /api/properties/{id}/status", authMW(requireManager(http.HandlerFunc(propertiesHandler.UpdateStatus))))
	mux.Handle("DELETE /api/properties/{id}", authMW(requireManager(http.HandlerFunc(propertiesHandler.Delete))))
	mux.Handle("PUT /api/properties/{id}/photo", authMW(requireManager(http.HandlerFunc(propertiesHandler.UploadPhoto))))
	mux.Handle("GET /api/properties/{id}/photo", authMW(http.HandlerFunc(propertiesHandler.GetPhoto)))
	mux.Handle("POST /api/properties/{id}/handoff", authMW(http.HandlerFunc(propertiesHandler.MintHandoff)))

	// Transfers (all roles; the store enforces who may act).
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Create)))
	mux.Handle("GET /api/transfers", authMW(http.HandlerFunc(transfersHandler.List)))
	mux.Handle("GET /api/transfers/pending", authMW(http.HandlerFunc(transfersHandler.Pending)))
	mux.Handle("GET /api/transfers/{id}", authMW(http.HandlerFunc(transfersHandler.Get)))
	mux.Handle("POST /api/transfers/{id}/decision", authMW(http.HandlerFunc(transfersHandler.Decide)))
	mux.Handle("POST /api/transfers/handoff", authMW(http.HandlerFunc(transfersHandler.ScanHandoff)))

	// Corrections: read (all roles), record (manager+).
	mux.Handle("GET /api/corrections", authMW(http.HandlerFunc(correctionsHandler.List)))
	mux.Handle("POST /api/corrections", authMW(requireManager(http.HandlerFunc(correctionsHandler.Record))))
	mux.Handle("GET /api/corrections/{id}", authMW(http.HandlerFunc(correctionsHandler.Get)))
	mux.Handle("GET /api/events/{id}/corrections", authMW(http.HandlerFunc(correctionsHandler.ForOriginal)))

	// Ledger audit views (read only).
	mux.Handle("GET /api/ledger", authMW(http.HandlerFunc(ledgerHandler.List)))
	mux.Handle("GET /api/ledger/serial/{serial}", authMW(http.HandlerFunc(ledgerHandler.SerialHistory)))
	mux.Handle("GET /api/ledger/serial/{serial}/holder", authMW(http.HandlerFunc(ledgerHandler.CurrentHolder)))
	mux.Handle("GET /api/ledger/{txid}", authMW(http.HandlerFunc(ledgerHandler.Get)))

	return LoggingMiddleware(mux)
}
