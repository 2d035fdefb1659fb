package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/encoderctl/internal/buffer"
	"codeberg.org/mutker/encoderctl/internal/export"
	"codeberg.org/mutker/encoderctl/internal/ingest"
	"codeberg.org/mutker/encoderctl/internal/logger"
	"codeberg.org/mutker/encoderctl/internal/serialport"
	"github.com/gorilla/websocket"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Listen      string
	Refresh     time.Duration
	PlotPoints  int
	ExportRows  int
	ZeroCommand string
}

// Server is the display collaborator: it periodically pulls a bounded
// window of samples from the log, decimates it to the configured plot
// size and pushes JSON frames to connected websocket clients. It also
// exposes the control surface (run/pause/clear/zero/export) over HTTP.
// It only ever reads the buffers; ingestion never depends on it.
type Server struct {
	cfg       Config
	log       *buffer.Log
	composite *buffer.CompositeLog
	coord     *ingest.Coordinator
	link      *serialport.Supervisor

	clients   map[*wsClient]struct{}
	clientsMu sync.Mutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to websocket clients.
type Frame struct {
	Samples []buffer.Sample          `json:"samples,omitempty"`
	Raw     []buffer.CompositeSample `json:"raw,omitempty"`
	Count   int                      `json:"count"`
	Link    string                   `json:"link"`
	Running bool                     `json:"running"`
	Stamp   int64                    `json:"stamp"` // Unix ms
}

func New(cfg Config, log *buffer.Log, composite *buffer.CompositeLog,
	coord *ingest.Coordinator, link *serialport.Supervisor,
) *Server {
	return &Server{
		cfg:       cfg,
		log:       log,
		composite: composite,
		coord:     coord,
		link:      link,
		clients:   make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP surface of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/run", s.handleRun)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/clear", s.handleClear)
	mux.HandleFunc("/api/zero", s.handleZero)
	mux.HandleFunc("/api/export", s.handleExport)
	return mux
}

// Run serves the dashboard until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.broadcastLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warn().Err(err).Msg("Dashboard shutdown failed")
		}
	}()

	logger.Info().Str("listen", s.cfg.Listen).Msg("Dashboard listening")

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.hasClients() {
				continue
			}
			s.broadcast(s.buildFrame())
		}
	}
}

func (s *Server) buildFrame() Frame {
	frame := Frame{
		Link:    s.link.State().String(),
		Running: s.coord.Running(),
		Stamp:   time.Now().UnixMilli(),
	}

	if s.coord.Grammar() == ingest.GrammarRaw {
		frame.Raw = s.composite.Recent(s.cfg.PlotPoints)
		frame.Count = s.composite.Count()
		return frame
	}

	frame.Samples = Decimate(s.log.Recent(s.cfg.PlotPoints*2), s.cfg.PlotPoints)
	frame.Count = s.log.Count()
	return frame
}

func (s *Server) hasClients() bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients) > 0
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal frame")
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer; skip this frame rather than block ingestion.
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 16),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	logger.Debug().Int("clients", total).Msg("Dashboard client connected")

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			logger.Debug().Int("clients", total).Msg("Dashboard client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"link":    s.link.State().String(),
		"running": s.coord.Running(),
		"count":   s.log.Count(),
		"dropped": s.coord.Dropped(),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.coord.Start()
	writeJSON(w, map[string]any{"running": true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.coord.Pause()
	writeJSON(w, map[string]any{"running": false})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.log.Clear()
	if s.composite != nil {
		s.composite.Clear()
	}
	writeJSON(w, map[string]any{"count": 0})
}

// handleZero forwards the tare command to the device. The command is
// fire and forget; the device replies on the data stream, not here.
func (s *Server) handleZero(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.link.Send(s.cfg.ZeroCommand) {
		http.Error(w, "device not connected", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"sent": s.cfg.ZeroCommand})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="samples.csv"`)

	var err error
	if s.coord.Grammar() == ingest.GrammarRaw {
		err = export.WriteCompositeCSV(w, s.composite.Recent(s.composite.Count()), s.cfg.ExportRows)
	} else {
		err = export.WriteCSV(w, s.log.Snapshot(), s.cfg.ExportRows)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("Failed to write response")
	}
}
