package devicelink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/qrow-bridge/internal/bridge"
	"github.com/qrow-bridge/internal/config"
)

var (
	// ErrNoDevice is reported when no watch is connected at send time
	ErrNoDevice = errors.New("no device connected")
	// ErrNacked is reported when the watch rejects a message
	ErrNacked = errors.New("message rejected by device")
	// ErrAckTimeout is reported when the watch neither acks nor nacks in time
	ErrAckTimeout = errors.New("timed out waiting for device ack")
	// ErrDisconnected is reported for messages pending on a connection that closed
	ErrDisconnected = errors.New("device disconnected")
)

// Frame types on the wire
const (
	FrameAppMessage = "appmessage"
	FrameAck        = "ack"
	FrameNack       = "nack"
)

// Frame is one newline-delimited JSON message between bridge and watch
type Frame struct {
	Type          string             `json:"type"`
	TransactionID string             `json:"transactionId"`
	Payload       *bridge.AppMessage `json:"payload,omitempty"`
	Reason        string             `json:"reason,omitempty"`
}

// Server accepts watch connections and delivers AppMessages to the most
// recently connected one. It implements bridge.MessageChannel.
type Server struct {
	config     *config.Config
	listener   net.Listener
	stopChan   chan struct{}
	ackTimeout time.Duration

	connectionsMutex  sync.RWMutex
	activeConnections map[string]*deviceConn
	current           *deviceConn
}

// deviceConn is one connected watch and the sends awaiting its answer
type deviceConn struct {
	conn    net.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan bridge.SendResult
}

// NewServer creates a new device link server
func NewServer(cfg *config.Config) *Server {
	return &Server{
		config:            cfg,
		stopChan:          make(chan struct{}),
		ackTimeout:        time.Duration(cfg.Timing.AckTimeoutSec) * time.Second,
		activeConnections: make(map[string]*deviceConn),
	}
}

// ListenAndServe listens on the configured device port and serves
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Network.Device.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %v", s.config.Network.Device.Port, err)
	}
	return s.Serve(listener)
}

// Serve accepts watch connections on listener until Close
func (s *Server) Serve(listener net.Listener) error {
	s.connectionsMutex.Lock()
	s.listener = listener
	s.connectionsMutex.Unlock()

	log.Printf("Device link listening on %s", listener.Addr())

	for {
		select {
		case <-s.stopChan:
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				log.Printf("Failed to accept connection: %v", err)
				continue
			}

			// Check if connection is from allowed CIDR
			if !s.isAllowedConnection(conn) {
				log.Printf("Rejected connection from %s (not in allowed CIDRs)", conn.RemoteAddr())
				conn.Close()
				continue
			}

			go s.handleConnection(conn)
		}
	}
}

// handleConnection registers the watch and reads its acks until it disconnects
func (s *Server) handleConnection(conn net.Conn) {
	dc := &deviceConn{
		conn:    conn,
		pending: make(map[string]chan bridge.SendResult),
	}
	addr := conn.RemoteAddr().String()

	s.connectionsMutex.Lock()
	s.activeConnections[addr] = dc
	s.current = dc
	s.connectionsMutex.Unlock()

	log.Printf("Device connected: %s", addr)

	defer func() {
		s.connectionsMutex.Lock()
		delete(s.activeConnections, addr)
		if s.current == dc {
			s.current = nil
			// Fall back to any other live watch
			for _, other := range s.activeConnections {
				s.current = other
				break
			}
		}
		s.connectionsMutex.Unlock()

		dc.failPending(ErrDisconnected)
		conn.Close()
		log.Printf("Device disconnected: %s", addr)
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			log.Printf("Failed to decode frame from %s: %v", addr, err)
			continue
		}

		switch frame.Type {
		case FrameAck:
			dc.resolve(frame.TransactionID, nil)
		case FrameNack:
			reason := frame.Reason
			if reason == "" {
				reason = "no reason given"
			}
			dc.resolve(frame.TransactionID, errors.Wrap(ErrNacked, reason))
		default:
			log.Printf("Ignoring frame type %q from %s", frame.Type, addr)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Device read error from %s: %v", addr, err)
	}
}

// Send delivers msg to the current watch. The returned Done channel yields
// exactly one result: ack, nack, timeout, disconnect or write failure.
func (s *Server) Send(ctx context.Context, msg bridge.AppMessage) bridge.Delivery {
	id := uuid.New().String()
	done := make(chan bridge.SendResult, 1)
	delivery := bridge.Delivery{TransactionID: id, Done: done}

	s.connectionsMutex.RLock()
	dc := s.current
	s.connectionsMutex.RUnlock()

	if dc == nil {
		done <- bridge.SendResult{TransactionID: id, Err: ErrNoDevice}
		return delivery
	}

	waiter := dc.register(id)
	frame := Frame{Type: FrameAppMessage, TransactionID: id, Payload: &msg}
	if err := dc.write(frame); err != nil {
		dc.resolve(id, errors.Wrap(err, "write appmessage"))
	}

	go func() {
		timer := time.NewTimer(s.ackTimeout)
		defer timer.Stop()

		var result bridge.SendResult
		select {
		case result = <-waiter:
		case <-timer.C:
			dc.forget(id)
			result = bridge.SendResult{TransactionID: id, Err: ErrAckTimeout}
		case <-ctx.Done():
			dc.forget(id)
			result = bridge.SendResult{TransactionID: id, Err: ctx.Err()}
		}
		done <- result
	}()

	return delivery
}

// Connected reports whether a watch is available to receive messages
func (s *Server) Connected() bool {
	s.connectionsMutex.RLock()
	defer s.connectionsMutex.RUnlock()
	return s.current != nil
}

// isAllowedConnection checks if the connection is from an allowed CIDR
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	clientAddr := conn.RemoteAddr()
	host, _, err := net.SplitHostPort(clientAddr.String())
	if err != nil {
		return false
	}

	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}

	// Check against allowed CIDRs
	for _, cidrStr := range s.config.Network.Device.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			log.Printf("Invalid CIDR in config: %s", cidrStr)
			continue
		}
		if network.Contains(clientIP) {
			return true
		}
	}

	return false
}

// Close shuts down the device link and drops every watch connection
func (s *Server) Close() error {
	select {
	case <-s.stopChan:
		// Already closed
		return nil
	default:
		close(s.stopChan)
	}

	s.connectionsMutex.Lock()
	listener := s.listener
	for _, dc := range s.activeConnections {
		dc.conn.Close()
	}
	s.connectionsMutex.Unlock()

	if listener != nil {
		return listener.Close()
	}
	return nil
}

func (dc *deviceConn) register(id string) <-chan bridge.SendResult {
	ch := make(chan bridge.SendResult, 1)
	dc.pendingMu.Lock()
	dc.pending[id] = ch
	dc.pendingMu.Unlock()
	return ch
}

func (dc *deviceConn) forget(id string) {
	dc.pendingMu.Lock()
	delete(dc.pending, id)
	dc.pendingMu.Unlock()
}

// resolve completes a pending send. Unknown or late transaction IDs are dropped.
func (dc *deviceConn) resolve(id string, err error) {
	dc.pendingMu.Lock()
	ch, ok := dc.pending[id]
	delete(dc.pending, id)
	dc.pendingMu.Unlock()

	if !ok {
		log.Printf("Ignoring answer for unknown transaction %s", id)
		return
	}
	ch <- bridge.SendResult{TransactionID: id, Err: err}
}

func (dc *deviceConn) failPending(err error) {
	dc.pendingMu.Lock()
	pending := dc.pending
	dc.pending = make(map[string]chan bridge.SendResult)
	dc.pendingMu.Unlock()

	for id, ch := range pending {
		ch <- bridge.SendResult{TransactionID: id, Err: err}
	}
}

func (dc *deviceConn) write(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dc.writeMu.Lock()
	defer dc.writeMu.Unlock()
	dc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err = dc.conn.Write(data)
	return err
}
