package relay

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"bolt/config"
	"bolt/logging"
	"bolt/store"

	"github.com/gorilla/websocket"
)

// the production gateway must satisfy the pipeline's capability surface
var _ EventStore = (*store.Gateway)(nil)

// Server owns the HTTP side of the relay: websocket upgrades on the root
// path, the NIP-11 information document under content negotiation, an HTML
// index page, and the health/stats endpoints.
type Server struct {
	cfg      *config.Config
	db       EventStore
	upgrader websocket.Upgrader

	tplOnce  sync.Once
	indexTpl *template.Template

	httpServer *http.Server
}

// NewServer wires the relay core to an event store. The config is shared by
// reference and treated as immutable from here on.
func NewServer(cfg *config.Config, db EventStore) *Server {
	return &Server{
		cfg: cfg,
		db:  db,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: cfg.WriteBufferSize,
			// a public relay accepts any origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP mux. Exposed so main can hang extra handlers off
// it before starting.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	logging.Info("relay listening on %s", s.cfg.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// handleRoot negotiates between the three faces of "/": websocket upgrade,
// the NIP-11 JSON document, and the HTML index page.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebsocket(w, r)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/nostr+json") {
		s.handleInfoDocument(w, r)
		return
	}

	s.handleIndex(w, r)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	conn := newConnection(ws, newSession(s.cfg, s.db), r.RemoteAddr, s.cfg)
	logging.DebugMethod("relay", "handleWebsocket", "connection from %s", r.RemoteAddr)

	// the handler blocks for the lifetime of the connection; each client
	// gets its own handler goroutine from net/http already
	conn.run(r.Context())
}

// infoDocument is the NIP-11 relay information document.
type infoDocument struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Banner        string             `json:"banner,omitempty"`
	Icon          string             `json:"icon,omitempty"`
	PubKey        string             `json:"pubkey"`
	Contact       string             `json:"contact"`
	SupportedNips []int              `json:"supported_nips"`
	Software      string             `json:"software"`
	Version       string             `json:"version"`
	Limitation    config.Limitations `json:"limitation"`
}

func (s *Server) handleInfoDocument(w http.ResponseWriter, _ *http.Request) {
	doc := infoDocument{
		Name:          s.cfg.Name,
		Description:   s.cfg.Description,
		Banner:        s.cfg.Banner,
		Icon:          s.cfg.Icon,
		PubKey:        s.cfg.PubKey,
		Contact:       s.cfg.Contact,
		SupportedNips: s.cfg.NipNumbers(),
		Software:      s.cfg.Software,
		Version:       s.cfg.Version,
		Limitation:    s.cfg.Limits,
	}

	w.Header().Set("Content-Type", "application/nostr+json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logging.Error("encoding info document: %v", err)
	}
}

// indexViewModel feeds the HTML index template.
type indexViewModel struct {
	Name          string
	Description   string
	SupportedNips []config.SupportedNip
	Software      string
	Version       string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.tplOnce.Do(func() {
		if s.cfg.IndexPath == "" {
			return
		}
		tpl, err := template.ParseFiles(s.cfg.IndexPath)
		if err != nil {
			logging.Warn("failed to parse index template %s: %v", s.cfg.IndexPath, err)
			return
		}
		s.indexTpl = tpl
	})

	if s.indexTpl == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(s.cfg.Name + " - a nostr relay\n"))
		return
	}

	vm := indexViewModel{
		Name:          s.cfg.Name,
		Description:   s.cfg.Description,
		SupportedNips: s.cfg.SupportedNips,
		Software:      s.cfg.Software,
		Version:       s.cfg.Version,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.indexTpl.Execute(w, vm); err != nil {
		logging.Error("index template execute error: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": s.cfg.Name,
		"version": s.cfg.Version,
	})
}

// handleStats exposes gateway counters when the store provides them.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	provider, ok := s.db.(interface{ Stats() store.Stats })
	if !ok {
		http.Error(w, "stats not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(provider.Stats()); err != nil {
		logging.Error("encoding stats: %v", err)
	}
}
