// Package relay serves an authenticated forwarding proxy in front of a
// venue REST API, for deployments where the collector cannot reach the
// venue directly. Callers authenticate with a shared key and may only
// request allow-listed paths.
package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const proxyKeyHeader = "x-proxy-key"

// Options carries relay wiring.
type Options struct {
	Listen       string
	Key          string
	Upstream     string
	AllowedPaths []string
	Timeout      time.Duration
}

// Server is the relay HTTP server.
type Server struct {
	listen   string
	key      string
	upstream string
	allowed  map[string]struct{}
	client   *http.Client
	logger   zerolog.Logger
}

// NewServer validates the options and builds the server. A relay
// without a key would forward for anyone, so that is a hard error.
func NewServer(opts Options, logger zerolog.Logger) (*Server, error) {
	if opts.Key == "" {
		return nil, errors.New("relay 未配置共享密钥, 拒绝启动")
	}
	if opts.Upstream == "" {
		return nil, errors.New("relay 未配置上游地址")
	}
	if opts.Listen == "" {
		opts.Listen = ":8787"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	allowed := make(map[string]struct{}, len(opts.AllowedPaths))
	for _, path := range opts.AllowedPaths {
		allowed[path] = struct{}{}
	}

	return &Server{
		listen:   opts.Listen,
		key:      opts.Key,
		upstream: strings.TrimRight(opts.Upstream, "/"),
		allowed:  allowed,
		client:   &http.Client{Timeout: opts.Timeout},
		logger:   logger.With().Str("component", "relay").Logger(),
	}, nil
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.listen).Str("upstream", s.upstream).Msg("relay listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ServeHTTP checks key and path, then forwards the GET upstream and
// streams the response back with the CSP header stripped.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.Header.Get(proxyKeyHeader) != s.key {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if _, ok := s.allowed[r.URL.Path]; !ok {
		http.Error(w, "Path not allowed", http.StatusForbidden)
		return
	}

	upstreamURL := s.upstream + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstreamURL, nil)
	if err != nil {
		http.Error(w, "Bad gateway", http.StatusBadGateway)
		return
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("upstream fetch failed")
		http.Error(w, "Bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for name, values := range resp.Header {
		if strings.EqualFold(name, "Content-Security-Policy") {
			continue
		}
		for _, value := range values {
			header.Add(name, value)
		}
	}
	header.Set("Access-Control-Allow-Origin", "*")

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("response copy interrupted")
	}
}
