package web

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appLog "notioncal/internal/log"
)

const (
	calendarExt  = ".ics"
	calendarMIME = "text/calendar; charset=utf-8"
)

// Server serves the .ics files directly inside one directory. There is
// no directory listing.
type Server struct {
	dir    string
	router chi.Router
}

func NewServer(dir string) *Server {
	s := &Server{dir: dir, router: chi.NewRouter()}
	s.router.Use(middleware.Recoverer)
	s.router.Use(accessLog)
	s.router.Get("/*", s.handleCalendar)
	s.router.Head("/*", s.handleCalendar)
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe binds addr, which must be a loopback address, and serves
// until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := requireLoopback(addr); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		timeout, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(timeout)
	}()

	appLog.Info("serving calendars", "dir", s.dir, "listen", "http://"+ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return errors.New("refusing to listen on non-loopback address " + addr)
	}
	return nil
}

// handleCalendar serves GET /<urlencoded-name>.ics.
//
//   - 400: undecodable path, traversal, or absolute path
//   - 403: anything but .ics
//   - 404: no such file
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	name, ok := requestedName(r)
	if !ok {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(name, calendarExt) {
		http.Error(w, "Only .ics files are served", http.StatusForbidden)
		return
	}

	data, err := s.readCalendar(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appLog.Warn("calendar read failed", "name", name, "err", err)
		}
		http.Error(w, "Calendar not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", calendarMIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

// requestedName decodes the request path into a file name relative to
// the served directory. It reports false for anything that could point
// outside it.
func requestedName(r *http.Request) (string, bool) {
	name, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		return "", false
	}
	if strings.Contains(name, "..") ||
		strings.HasPrefix(name, "/") ||
		strings.ContainsAny(name, "\\\x00") {
		return "", false
	}
	return name, true
}

// readCalendar opens name through an os.Root so that symlinks cannot
// lead outside the directory either.
func (s *Server) readCalendar(name string) ([]byte, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fs.ErrNotExist
	}
	return io.ReadAll(f)
}

// accessLog logs one line per request through the app logger.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Info("request",
			"method", r.Method,
			"path", r.URL.EscapedPath(),
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
