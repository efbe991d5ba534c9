package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/ingest"
	"github.com/sells-group/pin-ingest/internal/parser"
)

var servePort int

// maxMultipartMemory is the part of a multipart upload kept in memory.
const maxMultipartMemory = 8 << 20

// server holds what the upload handlers need.
type server struct {
	orch           *ingest.Orchestrator
	health         func(ctx context.Context) error
	maxBytes       int64
	allowedOrigins []string
}

// routes builds the HTTP router.
func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Caller"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/v1/uploads", s.handleUpload)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts either a multipart form with a "file" part or a raw
// body, runs the upload synchronously, and returns the report.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)

	up, err := readUpload(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	log := zap.L().With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("file", up.FileName),
		zap.String("caller", up.Caller),
	)
	log.Info("upload received", zap.Int("bytes", len(up.Data)))

	report, err := s.orch.Run(r.Context(), up, func(percent int) {
		log.Debug("upload progress", zap.Int("percent", percent))
	})
	if err != nil {
		var empty *parser.EmptyInputError
		var schema *parser.SchemaError
		if errors.As(err, &empty) || errors.As(err, &schema) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		log.Error("upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}

func readUpload(r *http.Request) (ingest.Upload, error) {
	up := ingest.Upload{
		Caller:   firstNonEmpty(r.Header.Get("X-Caller"), r.URL.Query().Get("caller")),
		FileName: r.URL.Query().Get("filename"),
	}
	formatTag := r.URL.Query().Get("format")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return up, eris.Wrap(err, "parse multipart form")
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			return up, eris.Wrap(err, "missing file part")
		}
		defer file.Close() //nolint:errcheck

		if up.Data, err = io.ReadAll(file); err != nil {
			return up, eris.Wrap(err, "read file part")
		}
		up.FileName = hdr.Filename
		up.Caller = firstNonEmpty(up.Caller, r.FormValue("caller"))
		formatTag = firstNonEmpty(formatTag, r.FormValue("format"))
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return up, err // *http.MaxBytesError stays matchable
		}
		up.Data = data
		if formatTag == "" && mediaType != "" && mediaType != "application/octet-stream" {
			formatTag = mediaType
		}
	}

	var err error
	switch {
	case formatTag != "":
		up.Format, err = parser.ParseFormat(formatTag)
	case up.FileName != "":
		up.Format, err = parser.FormatFromFileName(up.FileName)
	default:
		err = eris.New("format is required: pass ?format= or a file name")
	}
	if err != nil {
		return up, err
	}
	if up.Caller == "" {
		up.Caller = "api"
	}
	return up, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSONResponse(w, status, map[string]string{"error": err.Error()})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openSink(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		orch, err := newOrchestrator(cfg, env)
		if err != nil {
			return err
		}

		s := &server{
			orch:           orch,
			maxBytes:       cfg.Source.MaxBytes,
			allowedOrigins: cfg.Server.AllowedOrigins,
		}
		if env.DeadLetters != nil {
			s.health = env.DeadLetters.Ping
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("sink", env.Name))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
