package advsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/smhanov/advsearch/dav"
	"github.com/smhanov/advsearch/kql"
)

const maxBodyBytes = 1 << 20

// Searcher runs a query against the search backend.
type Searcher interface {
	Search(ctx context.Context, r dav.Request) (*dav.Result, error)
}

// Server serves the translation, search and saved-query API.
type Server struct {
	cfg      Config
	store    QueryStore
	searcher Searcher
	cache    *lruCache
	secret   []byte
	router   *mux.Router
	log      zerolog.Logger
}

// NewServer builds the router. searcher may be nil, in which case
// /api/v1/search answers 503.
func NewServer(cfg Config, store QueryStore, searcher Searcher, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		searcher: searcher,
		cache:    newLRUCache(cfg.ParseCacheSize),
		secret:   []byte(cfg.JWTSecret),
		router:   mux.NewRouter(),
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requireToken)
	api.HandleFunc("/query/serialize", s.handleSerialize).Methods(http.MethodPost)
	api.HandleFunc("/query/parse", s.handleParse).Methods(http.MethodPost)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/queries", s.handleListQueries).Methods(http.MethodGet)
	api.HandleFunc("/queries", s.handleSaveQuery).Methods(http.MethodPost)
	api.HandleFunc("/queries/{id}", s.handleGetQuery).Methods(http.MethodGet)
	api.HandleFunc("/queries/{id}", s.handleDeleteQuery).Methods(http.MethodDelete)
	api.HandleFunc("/fields", s.handleFields).Methods(http.MethodGet)
	api.HandleFunc("/live", s.handleLive).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Handled request")
	})
}

// RunServer opens the configured store and search client and serves until
// ctx is cancelled.
func RunServer(ctx context.Context, cfg Config, log zerolog.Logger) error {
	if err := kql.CheckTable(); err != nil {
		return fmt.Errorf("field table: %w", err)
	}

	store, err := OpenQueryStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var searcher Searcher
	if cfg.DavURL != "" {
		searcher = dav.NewClient(dav.Options{
			URL:      cfg.DavURL,
			User:     cfg.DavUser,
			Password: cfg.DavPassword,
			Token:    cfg.DavToken,
			RetryMax: cfg.SearchRetries,
		}, log)
	} else {
		log.Warn().Msg("No dav_url configured, search is disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewServer(cfg, store, searcher, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Starting server")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down server")
		return httpServer.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSerialize(w http.ResponseWriter, r *http.Request) {
	var filters kql.FilterState
	if err := decodeBody(w, r, &filters); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"query": kql.Serialize(filters)})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.parseQuery(req.Query))
}

type searchRequest struct {
	Filters *kql.FilterState `json:"filters,omitempty"`
	Query   string           `json:"query,omitempty"`
	Limit   int              `json:"limit,omitempty"`
	Offset  int              `json:"offset,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search backend not configured")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" && req.Filters != nil {
		query = kql.Serialize(*req.Filters)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.SearchLimit
	}

	result, err := s.searcher.Search(r.Context(), dav.Request{Query: query, Limit: limit, Offset: req.Offset})
	if err != nil {
		s.log.Error().Err(err).Str("query", query).Msg("Search failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := s.store.ListQueries(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list queries")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, queries)
}

func (s *Server) handleSaveQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string           `json:"name"`
		Query   string           `json:"query"`
		Filters *kql.FilterState `json:"filters,omitempty"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if strings.TrimSpace(req.Query) == "" && req.Filters != nil {
		req.Query = kql.Serialize(*req.Filters)
	}

	saved, err := s.store.SaveQuery(r.Context(), NewSavedQuery(req.Name, req.Query))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to save query")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) queryID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid query id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := s.queryID(w, r)
	if !ok {
		return
	}
	q, err := s.store.GetQuery(r.Context(), id)
	if errors.Is(err, ErrQueryNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		s.log.Error().Err(err).Uint64("id", id).Msg("Failed to load query")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := s.queryID(w, r)
	if !ok {
		return
	}
	err := s.store.DeleteQuery(r.Context(), id)
	if errors.Is(err, ErrQueryNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		s.log.Error().Err(err).Uint64("id", id).Msg("Failed to delete query")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Query deleted successfully."})
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, kql.Fields)
}
