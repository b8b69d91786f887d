package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Routes registers every endpoint on a new mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	common := []func(http.HandlerFunc) http.HandlerFunc{a.JWTMiddleware, a.CORSMiddleware, ErrorMiddleware, LoggingMiddleware, RequestIDMiddleware}
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, ApplyMiddleware(h, common...))
	}

	handle("GET /balance", a.HandleBalance)
	handle("POST /refresh", a.HandleRefresh)
	handle("POST /claim", a.HandleClaim)
	handle("GET /claims/{id}", a.HandleGetAttempt)
	handle("POST /claims/{id}/reconcile", a.HandleReconcile)

	// No logging middleware: it would only report once the socket closes.
	mux.HandleFunc("GET /wallet", ApplyMiddleware(a.HandleWallet, a.JWTMiddleware, ErrorMiddleware, RequestIDMiddleware))

	// Preflight requests carry no token.
	mux.HandleFunc("OPTIONS /", a.CORSMiddleware(func(w http.ResponseWriter, r *http.Request) {}))

	return mux
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *API) Serve(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      a.Routes(),
		ReadTimeout:  10 * time.Second,
		// Claims wait for the wallet and for confirmation.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
