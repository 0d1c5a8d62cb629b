// Package server exposes a connected Session over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/sqlbridge/internal/database"
	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/koustreak/sqlbridge/internal/export"
	"github.com/koustreak/sqlbridge/internal/logger"
)

// maxPreviewRows caps GET /tables/{table}.
const maxPreviewRows = 1000

type Options struct {
	// APIKey, when set, is required in X-API-Key on every route but /healthz.
	APIKey string

	// Exporter enables POST /export when non-nil.
	Exporter *export.Exporter

	// BatchSize is the default for /query requests that do not set one.
	BatchSize int
}

type Server struct {
	sess *database.Session
	mgr  *database.Manager
	opts Options
	log  *logger.Logger
}

func New(sess *database.Session, mgr *database.Manager, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{sess: sess, mgr: mgr, opts: opts, log: log.Component("server")}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", s.healthz)

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Get("/sources", s.sources)
		r.Get("/tables/{table}", s.preview)
		r.Post("/exec", s.exec)
		r.Post("/query", s.query)
		if s.opts.Exporter != nil {
			r.Post("/export", s.export)
		}
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("listening", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.DebugWith("request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey != "" {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.APIKey)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Kind: errs.ErrKindPermissionDenied.String()})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Ping(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "source": s.sess.Source()})
}

type sourceBody struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

func (s *Server) sources(w http.ResponseWriter, _ *http.Request) {
	srcs := s.mgr.Sources()
	out := make([]sourceBody, len(srcs))
	for i, src := range srcs {
		out[i] = sourceBody{Name: src.Name, Driver: src.Driver}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out, "connected": s.sess.Source()})
}

type statementBody struct {
	Query     string `json:"query"`
	Args      []any  `json:"args"`
	BatchSize int    `json:"batch_size"`
}

type exportBody struct {
	statementBody
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
	PresignTTL string `json:"presign_ttl"`
}

type rowsBody struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Batches  int              `json:"batches"`
	Rejected int              `json:"rejected"`
}

func (s *Server) exec(w http.ResponseWriter, r *http.Request) {
	var body statementBody
	if err := decodeBody(w, r, &body, &body); err != nil {
		s.writeError(w, err)
		return
	}

	n, err := s.sess.Exec(r.Context(), body.Query, body.Args...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows_affected": n})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var body statementBody
	if err := decodeBody(w, r, &body, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.BatchSize <= 0 {
		body.BatchSize = s.opts.BatchSize
	}
	s.writeRows(w, r, body.Query, body.Args, body.BatchSize)
}

// preview returns the first rows of a table:
// GET /tables/{table}?columns=a,b&limit=50&offset=0&order=id&desc=true
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	dialect, err := s.sess.Dialect()
	if err != nil {
		s.writeError(w, err)
		return
	}

	qs := r.URL.Query()
	limit, err := intParam(qs.Get("limit"), 50)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if limit > maxPreviewRows {
		limit = maxPreviewRows
	}
	offset, err := intParam(qs.Get("offset"), 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tq := database.From(chi.URLParam(r, "table"), dialect).Limit(limit)
	if offset > 0 {
		tq.Offset(offset)
	}
	if cols := qs.Get("columns"); cols != "" {
		tq.Columns(strings.Split(cols, ",")...)
	}
	if order := qs.Get("order"); order != "" {
		dir := database.Asc
		if qs.Get("desc") == "true" {
			dir = database.Desc
		}
		tq.OrderBy(order, dir)
	}

	query, args, err := tq.Build()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeRows(w, r, query, args, s.opts.BatchSize)
}

func (s *Server) writeRows(w http.ResponseWriter, r *http.Request, query string, args []any, batchSize int) {
	out := rowsBody{Rows: []map[string]any{}}
	sum, err := database.Select(r.Context(), s.sess, database.Request[database.Row]{
		Query:     query,
		Args:      args,
		BatchSize: batchSize,
		Bind: func(owner any, cols []database.Column) (database.ScanFunc[database.Row], error) {
			for _, c := range cols {
				out.Columns = append(out.Columns, c.Name)
			}
			return database.BindRows()(owner, cols)
		},
		Handle: func(_ any, b *database.Batch[database.Row], _ int) bool {
			out.Rows = append(out.Rows, database.Rows(b)...)
			return true
		},
	})
	if err != nil && !errs.IsNotFound(err) {
		s.writeError(w, err)
		return
	}
	// an empty result set is a valid answer over HTTP
	out.Batches = sum.Batches
	out.Rejected = sum.Rejected
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var body exportBody
	if err := decodeBody(w, r, &body, &body.statementBody); err != nil {
		s.writeError(w, err)
		return
	}

	job := export.Job{
		Query:     body.Query,
		Args:      body.Args,
		Bucket:    body.Bucket,
		Key:       body.Key,
		BatchSize: body.BatchSize,
	}
	if body.PresignTTL != "" {
		ttl, err := time.ParseDuration(body.PresignTTL)
		if err != nil {
			s.writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "invalid presign_ttl", err))
			return
		}
		job.PresignTTL = ttl
	}

	res, err := s.opts.Exporter.Run(r.Context(), s.sess, job)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":   res.Object.Bucket,
		"key":      res.Object.Key,
		"etag":     res.Object.ETag,
		"rows":     res.Written,
		"batches":  res.Summary.Batches,
		"rejected": res.Summary.Rejected,
		"url":      res.URL,
	})
}

// decodeBody reads the JSON body into v and checks st, the statement
// embedded in v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, st *statementBody) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err)
	}
	if strings.TrimSpace(st.Query) == "" {
		return errs.New(errs.ErrKindInvalidInput, "query is required")
	}
	if st.BatchSize > database.MaxBatchSize {
		return errs.New(errs.ErrKindInvalidInput,
			"batch_size must not exceed "+strconv.Itoa(database.MaxBatchSize))
	}
	st.Args = normalizeArgs(st.Args)
	return nil
}

// normalizeArgs turns JSON numbers into int64 or float64 so drivers bind
// them as numbers rather than text.
func normalizeArgs(args []any) []any {
	for i, a := range args {
		n, ok := a.(json.Number)
		if !ok {
			continue
		}
		if v, err := n.Int64(); err == nil {
			args[i] = v
		} else if f, err := n.Float64(); err == nil {
			args[i] = f
		}
	}
	return args
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindInvalidInput, "invalid integer parameter", err)
	}
	return n, nil
}
