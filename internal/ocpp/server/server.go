// Package server exposes the OCPP WebSocket endpoint. Stations connect at
// /ocpp/{stationId} negotiating the ocpp1.6 or ocpp2.0.1 subprotocol; each
// accepted connection becomes a session registered for command dispatch.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ocpp/session"
)

const basePath = "/ocpp/"

var subprotocolVersions = map[string]domain.ProtocolVersion{
	"ocpp1.6":   domain.ProtocolV16,
	"ocpp2.0.1": domain.ProtocolV201,
}

type Server struct {
	registry *ConnRegistry
	handler  session.Handler
	opts     session.Options
	log      *zap.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(registry *ConnRegistry, handler session.Handler, opts session.Options, log *zap.Logger) *Server {
	return &Server{
		registry: registry,
		handler:  handler,
		opts:     opts,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{"ocpp2.0.1", "ocpp1.6"},
		},
	}
}

// Start serves the OCPP endpoint on the given port and blocks until Stop.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc(basePath, s.handleWebSocket)

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("starting OCPP WebSocket server", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains all sessions and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.registry.CloseAll(ctx)
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	stationID := strings.Trim(strings.TrimPrefix(r.URL.Path, basePath), "/")
	if stationID == "" || strings.Contains(stationID, "/") {
		http.Error(w, "missing or invalid station id", http.StatusBadRequest)
		return
	}

	version, ok := negotiateVersion(r.Header.Get("Sec-WebSocket-Protocol"))
	if !ok {
		s.log.Warn("rejecting connection without supported subprotocol",
			zap.String("station_id", stationID),
			zap.String("offered", r.Header.Get("Sec-WebSocket-Protocol")))
		http.Error(w, "unsupported ocpp subprotocol", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}

	sess, err := session.New(stationID, version, &wsConn{conn: conn}, s.handler, s.log, &s.opts)
	if err != nil {
		s.log.Error("session create failed", zap.String("station_id", stationID), zap.Error(err))
		conn.Close()
		return
	}

	s.log.Info("station connected",
		zap.String("station_id", stationID),
		zap.String("protocol", string(version)),
		zap.String("remote", r.RemoteAddr))

	s.registry.Install(r.Context(), sess)
	defer s.registry.Remove(sess)

	sess.Run(r.Context())

	s.log.Info("station disconnected", zap.String("station_id", stationID))
}

// negotiateVersion picks the highest supported version among the offered
// subprotocols.
func negotiateVersion(header string) (domain.ProtocolVersion, bool) {
	var (
		best  domain.ProtocolVersion
		found bool
	)
	for _, p := range strings.Split(header, ",") {
		v, ok := subprotocolVersions[strings.TrimSpace(p)]
		if !ok {
			continue
		}
		if !found || v == domain.ProtocolV201 {
			best, found = v, true
		}
	}
	return best, found
}

// wsConn adapts a gorilla connection to the session transport.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
