package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"

	cfg "github.com/example/vetdesk/internal/config"
	"github.com/example/vetdesk/internal/migrations"
)

type App struct {
	DB          DB
	Tokens      *TokenFactory
	Auth        *Auth
	rateLimiter *RateLimiter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// seedAdmin creates the bootstrap administrator when the accounts table is
// empty, so a fresh deployment is reachable.
func seedAdmin(db DB, name, password string) error {
	if name == "" || password == "" {
		return nil
	}
	n, err := db.CountAccounts()
	if err != nil || n > 0 {
		return err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = db.CreateAccount(&Account{
		ID:           uuid.NewString(),
		Name:         name,
		PasswordHash: hash,
		Role:         RoleAdministrator,
		CreatedBy:    "bootstrap",
		CreatedAt:    now,
		UpdatedBy:    "bootstrap",
		UpdatedAt:    now,
	})
	if err != nil {
		return err
	}
	log.Printf("Seeded bootstrap administrator %q", name)
	return nil
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		db = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}

		// Apply migrations before connecting
		log.Println("Applying database migrations...")
		if err := migrations.Apply("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
		} else {
			log.Println("Migrations applied successfully")
		}

		p, err := NewPostgresDB(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		db = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	tokens, err := NewTokenFactory(c)
	if err != nil {
		log.Fatalf("token factory: %v", err)
	}

	if err := seedAdmin(db, c.AdminName, c.AdminPassword); err != nil {
		log.Fatalf("admin seed: %v", err)
	}

	app := &App{DB: db, Tokens: tokens, Auth: NewAuth(db, tokens)}

	if n, err := app.Auth.SweepExpired(); err != nil {
		log.Printf("expired token sweep: %v", err)
	} else if n > 0 {
		log.Printf("Swept %d expired refresh tokens", n)
	}

	srv := &http.Server{Handler: app.Router(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		fmt.Println("Starting vetdesk server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}

// Router wires the HTTP surface. Credential endpoints are rate limited;
// everything under /api/v1 requires a validated bearer token.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	// Token endpoints
	r.Handle("/token", a.RateLimit(http.HandlerFunc(a.HandleToken))).Methods("POST")
	r.Handle("/token/refresh", a.RateLimit(http.HandlerFunc(a.HandleTokenRefresh))).Methods("POST")
	r.Handle("/token/logout", http.HandlerFunc(a.HandleLogout)).Methods("POST")

	anyRole := a.RequireRole()
	supervisor := a.RequireRole(RoleSupervisor, RoleAdministrator)
	admin := a.RequireRole(RoleAdministrator)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Account management (administrator only, except self password change)
	api.Handle("/accounts", admin(http.HandlerFunc(a.HandleCreateAccount))).Methods("POST")
	api.Handle("/accounts", admin(http.HandlerFunc(a.HandleListAccounts))).Methods("GET")
	api.Handle("/accounts/{id}", admin(http.HandlerFunc(a.HandleGetAccount))).Methods("GET")
	api.Handle("/accounts/{id}", admin(http.HandlerFunc(a.HandleUpdateAccount))).Methods("PUT")
	api.Handle("/accounts/{id}", admin(http.HandlerFunc(a.HandleDeleteAccount))).Methods("DELETE")
	api.Handle("/accounts/{id}/password", anyRole(http.HandlerFunc(a.HandleChangePassword))).Methods("POST")

	// Patrons
	api.Handle("/patrons", anyRole(http.HandlerFunc(a.HandleListPatrons))).Methods("GET")
	api.Handle("/patrons", supervisor(http.HandlerFunc(a.HandleCreatePatron))).Methods("POST")
	api.Handle("/patrons/{id}", anyRole(http.HandlerFunc(a.HandleGetPatron))).Methods("GET")
	api.Handle("/patrons/{id}", supervisor(http.HandlerFunc(a.HandleUpdatePatron))).Methods("PUT")
	api.Handle("/patrons/{id}", supervisor(http.HandlerFunc(a.HandleDeletePatron))).Methods("DELETE")

	// Events
	api.Handle("/events", anyRole(http.HandlerFunc(a.HandleListEvents))).Methods("GET")
	api.Handle("/events", supervisor(http.HandlerFunc(a.HandleCreateEvent))).Methods("POST")
	api.Handle("/events/{id}", anyRole(http.HandlerFunc(a.HandleGetEvent))).Methods("GET")
	api.Handle("/events/{id}", supervisor(http.HandlerFunc(a.HandleUpdateEvent))).Methods("PUT")
	api.Handle("/events/{id}", supervisor(http.HandlerFunc(a.HandleDeleteEvent))).Methods("DELETE")

	// Services
	api.Handle("/services", anyRole(http.HandlerFunc(a.HandleListServices))).Methods("GET")
	api.Handle("/services", supervisor(http.HandlerFunc(a.HandleCreateService))).Methods("POST")
	api.Handle("/services/{id}", anyRole(http.HandlerFunc(a.HandleGetService))).Methods("GET")
	api.Handle("/services/{id}", supervisor(http.HandlerFunc(a.HandleUpdateService))).Methods("PUT")
	api.Handle("/services/{id}", supervisor(http.HandlerFunc(a.HandleDeleteService))).Methods("DELETE")

	// Scans (check-ins are the front-desk action, any authenticated role)
	api.Handle("/scans", anyRole(http.HandlerFunc(a.HandleCreateScan))).Methods("POST")
	api.Handle("/scans", anyRole(http.HandlerFunc(a.HandleListScans))).Methods("GET")

	// Reports
	api.Handle("/reports/events/{id}", supervisor(http.HandlerFunc(a.HandleEventAttendanceReport))).Methods("GET")
	api.Handle("/reports/patrons/{id}", supervisor(http.HandlerFunc(a.HandlePatronVisitsReport))).Methods("GET")

	return r
}
