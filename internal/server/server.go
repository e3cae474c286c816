// Package server wires rowpage's render engine to a Huma HTTP API, a SQL
// backend reached through sqlx, and a Datastar SSE endpoint for live
// fragment swaps — the deployment shape sketched in SPEC_FULL.md §2
// items 11-12.
package server

import (
	"context"
	"database/sql/driver"
	"io"
	"net/http"

	"github.com/CAFxX/httpcompression"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/starfederation/datastar-go/datastar"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/sqlview/rowpage"
	"github.com/sqlview/rowpage/config"
	"github.com/sqlview/rowpage/internal/row"
	"github.com/sqlview/rowpage/render"
)

var tracer = otel.Tracer("github.com/sqlview/rowpage/internal/server")

// bufPool hands out the pooled buffers renderPageLive renders the live
// fragment into before handing it to the Datastar SSE writer.
var bufPool render.BufferPool

// Server serves rendered pages over HTTP, backed by a SQL database and a
// directory of component templates.
type Server struct {
	cfg    config.Config
	db     *sqlx.DB
	engine *rowpage.Engine
	log    *zap.Logger
	mux    *http.ServeMux
	humaAPI huma.API
}

// New builds a Server. db and engine are already-constructed dependencies
// so cmd/server controls their lifecycle (closing db, flushing log) on
// shutdown.
func New(cfg config.Config, db *sqlx.DB, engine *rowpage.Engine, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	humaConfig := huma.DefaultConfig("rowpage", "0.1.0")
	humaConfig.Info.Description = "Streams SQL query results through named HTML components."
	api := humago.New(mux, humaConfig)

	s := &Server{cfg: cfg, db: db, engine: engine, log: log, mux: mux, humaAPI: api}
	s.routes()
	return s
}

// Handler returns the compressed, request-ID-tagged HTTP handler to pass to
// http.ListenAndServe.
func (s *Server) Handler() (http.Handler, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}
	return withRequestID(compress(s.mux)), nil
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

type pageInput struct {
	Query string `query:"q" doc:"SQL query to run" required:"true"`
}

func (s *Server) routes() {
	huma.Get(s.humaAPI, "/render", s.renderPage, huma.OperationTags("render"))
	huma.Get(s.humaAPI, "/render/live", s.renderPageLive, huma.OperationTags("render"))

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// renderPage streams a query's rendered HTML directly as the response body.
func (s *Server) renderPage(ctx context.Context, in *pageInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			humaCtx.SetHeader("Content-Type", "text/html; charset=utf-8")
			_, w := humago.Unwrap(humaCtx)
			if err := s.renderQuery(ctx, w, in.Query); err != nil {
				s.log.Error("render failed", zap.Error(err), zap.String("query", in.Query))
			}
		},
	}, nil
}

// renderPageLive renders a query into a buffer and pushes it to #content
// over a Datastar SSE connection, for hypermedia-style partial page swaps.
func (s *Server) renderPageLive(ctx context.Context, in *pageInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			r, w := humago.Unwrap(humaCtx)
			sse := datastar.NewSSE(w, r)

			buf := bufPool.Get()
			defer bufPool.Put(buf)

			if err := s.renderQuery(ctx, buf, in.Query); err != nil {
				s.log.Error("live render failed", zap.Error(err), zap.String("query", in.Query))
				sse.MarshalAndPatchSignals(map[string]any{"error": err.Error()})
				return
			}
			sse.PatchElements(buf.String(),
				datastar.WithSelector("#content"),
				datastar.WithModeInner(),
			)
		},
	}, nil
}

// renderQuery runs sqlQuery against the backing database and drives the
// render engine's response over sink, row by row, statement by statement.
func (s *Server) renderQuery(ctx context.Context, sink io.Writer, sqlQuery string) error {
	ctx, span := tracer.Start(ctx, "renderQuery")
	defer span.End()

	events := make(chan rowpage.RowEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		errCh <- s.pump(ctx, sqlQuery, events)
	}()

	resp, err := s.engine.NewResponse(sink)
	if err != nil {
		return err
	}
	if err := rowpage.Drive(resp, events); err != nil {
		return err
	}
	return <-errCh
}

// pump executes sqlQuery and converts each resulting row into a
// rowpage.RowEvent, reporting any scan or query error as a RowEvent rather
// than aborting — matching the "inline error recovery" model of render.Context.
func (s *Server) pump(ctx context.Context, sqlQuery string, events chan<- rowpage.RowEvent) error {
	rows, err := s.db.QueryxContext(ctx, sqlQuery)
	if err != nil {
		events <- rowpage.RowEvent{Err: err}
		return nil
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		events <- rowpage.RowEvent{Err: err}
		return nil
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			events <- rowpage.RowEvent{Err: err}
			continue
		}

		driverVals := make([]driver.Value, len(vals))
		for i, v := range vals {
			driverVals[i] = driver.Value(v)
		}

		r, err := row.FromColumns(cols, driverVals)
		if err != nil {
			events <- rowpage.RowEvent{Err: err}
			continue
		}
		events <- rowpage.RowEvent{Row: r}
	}
	events <- rowpage.RowEvent{QueryEnd: true}
	return rows.Err()
}

// OpenDB opens the configured SQL driver and pings it once so startup
// fails fast on a bad DSN.
func OpenDB(cfg config.Database) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
