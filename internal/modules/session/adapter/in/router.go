package in

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"komerge/internal/platform/logctx"
)

type RouterOptions struct {
	BasePath    string
	CORSOrigins []string
	Metrics     http.Handler
	Logger      zerolog.Logger
}

// NewRouter mounts the API under opts.BasePath and wraps it with CORS, access
// logging and panic recovery.
func NewRouter(h *HTTPHandler, opts RouterOptions) http.Handler {
	root := mux.NewRouter()
	r := root
	if opts.BasePath != "" {
		r = root.PathPrefix(opts.BasePath).Subrouter()
	}
	r.Use(contextLogger(opts.Logger))

	r.HandleFunc("/healthcheck", h.Healthcheck).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", h.Config).Methods(http.MethodGet)
	api.HandleFunc("/upload", h.Upload).Methods(http.MethodPost)
	api.HandleFunc("/books/{id}", h.Books).Methods(http.MethodGet)
	api.HandleFunc("/merge-groups/{id}", h.AddGroup).Methods(http.MethodPost)
	api.HandleFunc("/merge-groups/{id}", h.RemoveLastGroup).Methods(http.MethodDelete)
	api.HandleFunc("/merge-groups/{id}/all", h.ClearGroups).Methods(http.MethodDelete)
	api.HandleFunc("/execute-merge/{id}", h.Execute).Methods(http.MethodPost)
	api.HandleFunc("/result/{id}", h.Result).Methods(http.MethodGet)
	api.HandleFunc("/download/{id}", h.Download).Methods(http.MethodGet)
	api.HandleFunc("/cleanup/{id}", h.Cleanup).Methods(http.MethodDelete)
	api.HandleFunc("/cleanup-expired-sessions", h.SweepExpired).Methods(http.MethodGet)
	api.HandleFunc("/validate-session/{id}", h.ValidateSession).Methods(http.MethodGet)
	api.HandleFunc("/session-info/{id}", h.SessionInfo).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(opts.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: opts.Logger}),
		handlers.PrintRecoveryStack(true),
	)
	access := handlers.CustomLoggingHandler(io.Discard, root, accessLog(opts.Logger))
	return recovery(cors(access))
}

// contextLogger attaches the request logger, tagged with the session id when
// the route has one.
func contextLogger(base zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logctx.WithLogger(r.Context(), base)
			if sessionID := mux.Vars(r)["id"]; sessionID != "" {
				ctx = logctx.WithStr(ctx, "session_id", sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessLog(log zerolog.Logger) handlers.LogFormatter {
	return func(_ io.Writer, p handlers.LogFormatterParams) {
		log.Info().
			Str("method", p.Request.Method).
			Str("path", p.URL.Path).
			Int("status", p.StatusCode).
			Int("bytes", p.Size).
			Dur("elapsed", time.Since(p.TimeStamp)).
			Msg("http request")
	}
}

type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error().Interface("panic", v).Msg("recovered from panic")
}
