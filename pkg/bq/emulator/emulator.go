// Package emulator wraps the bigquery-emulator with the small surface
// the tests and the local development runner need: seeding projects,
// starting a test server and intercepting endpoints the emulator does
// not implement.
package emulator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/go-chi/chi"
	"github.com/goccy/bigquery-emulator/server"
	"github.com/goccy/bigquery-emulator/types"
	"github.com/rs/zerolog"
)

type Emulator struct {
	testServer *server.TestServer
	emulator   *server.Server
	log        zerolog.Logger
}

type Dataset struct {
	DatasetID string
	TableID   string
	Columns   []*types.Column
}

func ColumnNullable(name string) *types.Column {
	return &types.Column{
		Name: name,
		Type: types.STRING,
		Mode: types.NullableMode,
	}
}

func ColumnRequired(name string) *types.Column {
	return &types.Column{
		Name: name,
		Type: types.STRING,
		Mode: types.RequiredMode,
	}
}

func ColumnRepeated(name string) *types.Column {
	return &types.Column{
		Name: name,
		Type: types.STRING,
		Mode: types.RepeatedMode,
	}
}

func (e *Emulator) EnableMock(debugRequest bool, log zerolog.Logger, mocks ...*EndpointMock) {
	log.Info().Msg("Enabling mocks")

	handler := e.emulator.Handler

	router := chi.NewRouter()

	debugFn := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if debugRequest {
				request, err := httputil.DumpRequest(r, true)
				if err != nil {
					log.Error().Err(err).Msg("Failed to dump request")
				}

				fmt.Println(string(request))
			}

			next.ServeHTTP(w, r)
		})
	}

	for _, mock := range mocks {
		log.Info().Msgf("Adding mock endpoint: %s %s", mock.Method, mock.Path)
		router.With(debugFn).MethodFunc(mock.Method, mock.Path, mock.Handler)
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		log.Info().Msgf("No mocked endpoint found, forwarding to emulator: %s", r.URL.Path)

		if debugRequest {
			request, err := httputil.DumpRequest(r, true)
			if err != nil {
				log.Error().Err(err).Msg("Failed to dump request")
			}
			fmt.Println(string(request))
		}

		handler.ServeHTTP(w, r)
	})

	e.emulator.Handler = router

	if e.testServer != nil {
		e.testServer.Close()
		e.testServer = e.emulator.TestServer()
	}
}

func (e *Emulator) Cleanup() {
	if e.testServer != nil {
		e.testServer.Close()
	}
}

// TestServer starts the in-process test server. Call after the seed
// sources and mocks are in place.
func (e *Emulator) TestServer() {
	e.testServer = e.emulator.TestServer()
}

func (e *Emulator) Endpoint() string {
	return e.testServer.URL
}

// Serve blocks serving the emulator on the given port until the
// context is cancelled.
func (e *Emulator) Serve(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("0.0.0.0", port),
		Handler:           e.emulator.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			e.log.Error().Err(err).Msg("shutting down emulator server")
		}
	}()

	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving emulator: %w", err)
	}

	return nil
}

func (e *Emulator) WithProject(projectID string, datasets ...*Dataset) {
	p := &types.Project{
		ID: projectID,
	}

	for _, ds := range datasets {
		if ds == nil {
			continue
		}

		d := &types.Dataset{
			ID: ds.DatasetID,
		}

		if ds.TableID != "" {
			t := &types.Table{
				ID: ds.TableID,
			}

			for _, col := range ds.Columns {
				t.Columns = append(t.Columns, col)
			}

			d.Tables = append(d.Tables, t)
		}

		p.Datasets = append(p.Datasets, d)
	}

	e.WithSource(p.ID, server.StructSource(p))
}

func (e *Emulator) WithSource(projectID string, source server.Source) {
	err := e.emulator.Load(source)
	if err != nil {
		e.log.Fatal().Err(err).Msg("initializing bigquery emulator")
	}

	if err := e.emulator.SetProject(projectID); err != nil {
		e.log.Fatal().Err(err).Msg("setting project")
	}
}

func New(log zerolog.Logger) *Emulator {
	s, err := server.New(server.TempStorage)
	if err != nil {
		log.Fatal().Err(err).Msg("creating bigquery emulator")
	}

	return &Emulator{
		emulator: s,
		log:      log,
	}
}
