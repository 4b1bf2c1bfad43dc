package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appLog "calexport/internal/log"
	"calexport/internal/output"
)

// Server serves exported month files to the browser month viewer, which
// fetches "./<year>/<month>.dat".
type Server struct {
	dir     string
	origins []string
	router  *chi.Mux
}

// NewServer constructs a Server for the output directory dir.
func NewServer(dir string, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &Server{dir: dir, origins: origins}
	s.router = s.routes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/months", s.handleMonths)
	r.Get("/{year}/{month}.dat", s.handleMonthFile)

	return r
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr, "dir", s.dir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type monthEntry struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Path  string `json:"path"`
}

// handleMonths lists the month files currently present, oldest first.
func (s *Server) handleMonths(w http.ResponseWriter, _ *http.Request) {
	months, err := s.scanMonths()
	if err != nil {
		appLog.Error("scan output dir failed", err, "dir", s.dir)
		http.Error(w, "cannot list months", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(months)
}

func (s *Server) scanMonths() ([]monthEntry, error) {
	years, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []monthEntry{}, nil
		}
		return nil, err
	}

	out := []monthEntry{}
	for _, y := range years {
		year, err := strconv.Atoi(y.Name())
		if err != nil || !y.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, y.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			name := f.Name()
			if filepath.Ext(name) != ".dat" {
				continue
			}
			month, err := strconv.Atoi(name[:len(name)-len(".dat")])
			if err != nil || month < 1 || month > 12 {
				continue
			}
			out = append(out, monthEntry{Year: year, Month: month, Path: "/" + y.Name() + "/" + name})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func (s *Server) handleMonthFile(w http.ResponseWriter, r *http.Request) {
	year, yerr := strconv.Atoi(chi.URLParam(r, "year"))
	month, merr := strconv.Atoi(chi.URLParam(r, "month"))
	if yerr != nil || merr != nil || month < 1 || month > 12 {
		http.NotFound(w, r)
		return
	}

	path := output.Month{Year: year, Month: time.Month(month)}.Path(s.dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		appLog.Error("read month file failed", err, "path", path)
		http.Error(w, "cannot read month", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}
