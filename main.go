package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	srv := &server{
		gate:          newGate(cfg),
		lists:         newResponseCache[[]Product](cfg.CacheTTL),
		secureCookies: !cfg.DevMode,
	}

	var db *sql.DB
	if cfg.DevMode {
		log.Println("DEV_MODE=true: running without a database or Cloudinary (in-memory store, placeholder images)")
		mem := newMemStore()
		srv.products, srv.settings = mem, mem
		srv.media = devMediaHost{}
	} else {
		var d dialect
		db, d, err = openDB(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = ensureSchema(ctx, db, d)
		cancel()
		if err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		srv.products = newSQLProductStore(db, d)
		srv.settings = newSQLSettingsStore(db, d)
		host, err := newCloudinaryHost(cfg)
		if err != nil {
			log.Fatal(err)
		}
		srv.media = host
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(srv, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	// destroyBestEffort bounds each call, so this cannot hang
	srv.cleanups.Wait()
}

func newRouter(s *server, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(withServerDefaults)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Cache"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.healthz)
	r.Post("/auth/login", s.login)
	r.Post("/auth/logout", s.logout)
	r.Get("/auth/session", s.currentSession)

	r.Get("/products", s.listProducts)
	r.Get("/products/{id}", s.getProduct)
	r.Get("/catalog", s.catalog)
	r.Get("/logo", s.getLogo)

	r.Group(func(r chi.Router) {
		r.Use(s.gate.requireSession)
		r.Post("/products", s.createProduct)
		r.Patch("/products/reorder", s.reorder)
		r.Patch("/products/{id}", s.updateProduct)
		r.Delete("/products/{id}", s.deleteProduct)
		r.Patch("/products/{id}/toggle-sold", s.toggleSold)
		r.Post("/logo", s.postLogo)
		r.Delete("/logo", s.deleteLogo)
		r.Post("/upload", s.upload)
		r.Delete("/upload", s.destroyUpload)
	})

	if dir := strings.TrimSpace(cfg.StaticDir); dir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dir)))
	}
	return r
}

func withServerDefaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
