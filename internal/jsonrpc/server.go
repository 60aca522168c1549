package jsonrpc

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/qrow-bridge/internal/bridge"
	"github.com/qrow-bridge/internal/clay"
	"github.com/qrow-bridge/internal/config"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server exposes the settings bridge to the phone-side host runtime
type Server struct {
	config     *config.Config
	bridge     *bridge.Bridge
	descriptor clay.Descriptor
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	Result  interface{}    `json:"result,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	ID      interface{}    `json:"id"`
}

// ErrorResponse represents a JSON-RPC 2.0 error response
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewServer creates a new JSON-RPC server
func NewServer(cfg *config.Config, b *bridge.Bridge, descriptor clay.Descriptor) *Server {
	return &Server{
		config:     cfg,
		bridge:     b,
		descriptor: descriptor,
	}
}

// NewRouter wires the signal endpoint, the form descriptor and a health check
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")
	r.HandleFunc("/descriptor", s.HandleDescriptor).Methods("GET")
	r.HandleFunc("/pebble", s.HandleRequest)
	return r
}

// HandleDescriptor serves the settings form description
func (s *Server) HandleDescriptor(w http.ResponseWriter, r *http.Request) {
	data, err := s.descriptor.JSON()
	if err != nil {
		log.Printf("Failed to encode descriptor: %v", err)
		http.Error(w, "descriptor unavailable", http.StatusInternalServerError)
		return
	}

	s.setHeaders(w)
	w.Write(data)
}

// HandleRequest handles HTTP POST requests to /pebble
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	s.setHeaders(w)

	// Only accept POST requests
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, CodeInvalidRequest, "Invalid Request", nil)
		return
	}

	// Parse JSON-RPC request
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, CodeParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC version
	if req.JSONRPC != "2.0" {
		s.writeErrorResponse(w, CodeInvalidRequest, "Invalid Request", req.ID)
		return
	}

	start := time.Now()
	response := s.processRequest(r, &req)
	log.Printf("JSON-RPC request processed: method=%s, duration=%v", req.Method, time.Since(start))

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// processRequest turns a JSON-RPC call into a bridge signal
func (s *Server) processRequest(r *http.Request, req *Request) *Response {
	ev, rpcErr := eventFromRequest(req)
	if rpcErr != nil {
		return &Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
	}

	outcome, err := s.bridge.Dispatch(r.Context(), ev)
	if err != nil {
		log.Printf("Signal %s failed: %v", ev.Signal, err)
		return &Response{JSONRPC: "2.0", Error: errorFor(err), ID: req.ID}
	}

	return &Response{
		JSONRPC: "2.0",
		Result:  resultFor(ev.Signal, outcome),
		ID:      req.ID,
	}
}

func errorFor(err error) *ErrorResponse {
	switch errors.Cause(err) {
	case bridge.ErrMalformedResponse:
		return &ErrorResponse{Code: CodeInternalError, Message: "MALFORMED_RESPONSE", Data: err.Error()}
	case bridge.ErrUnknownSignal:
		return &ErrorResponse{Code: CodeMethodNotFound, Message: "Method not found"}
	default:
		return &ErrorResponse{Code: CodeInternalError, Message: "INTERNAL"}
	}
}

func (s *Server) setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if s.config.Network.HTTP.ServerHeader != "" {
		w.Header().Set("Server", s.config.Network.HTTP.ServerHeader)
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, code int, message string, id interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		Error: &ErrorResponse{
			Code:    code,
			Message: message,
		},
		ID: id,
	}

	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(response)
}
