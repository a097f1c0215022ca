package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-categorizer/internal/model"
)

var servePort int

// categorizer is the pipeline surface the webhook server needs.
type categorizer interface {
	ProcessContact(ctx context.Context, contactID string, dryRun bool) (model.ContactResult, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for categorization requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := buildMux(ctx, env.Pipeline)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go awaitShutdown(ctx, srv)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownGrace bounds how long in-flight requests get to finish.
const shutdownGrace = 10 * time.Second

// awaitShutdown blocks until ctx is canceled, then drains the server under
// a fresh timeout context. The signal context is already dead at that point
// and would abort in-flight requests immediately.
func awaitShutdown(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	zap.L().Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

// buildMux wires the webhook routes. Categorization runs asynchronously
// under the server's context, not the request's, so it survives the
// client disconnecting.
func buildMux(ctx context.Context, p categorizer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /webhook/categorize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ContactID string `json:"contact_id"`
			DryRun    bool   `json:"dry_run"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if req.ContactID == "" {
			http.Error(w, `{"error":"contact_id is required"}`, http.StatusBadRequest)
			return
		}

		go func() {
			if p == nil {
				return
			}
			result, err := p.ProcessContact(ctx, req.ContactID, req.DryRun)
			if err != nil {
				zap.L().Error("webhook categorization failed",
					zap.String("contact_id", req.ContactID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook categorization complete",
				zap.String("contact_id", req.ContactID),
				zap.String("category", result.Category),
				zap.Bool("succeeded", result.Succeeded),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "accepted",
			"contact_id": req.ContactID,
		})
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
