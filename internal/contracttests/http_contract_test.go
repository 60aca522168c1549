package contracttests

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/qrow-bridge/internal/bridge"
	"github.com/qrow-bridge/internal/clay"
	"github.com/qrow-bridge/internal/config"
	"github.com/qrow-bridge/internal/devicelink"
	"github.com/qrow-bridge/internal/jsonrpc"
)

// TestServer wires the host endpoint, the bridge and the device link together
type TestServer struct {
	server  *httptest.Server
	link    *devicelink.Server
	linkURL string
	results chan bridge.SendResult
}

// NewTestServer starts the full hand-off path on loopback ports
func NewTestServer(t *testing.T) *TestServer {
	cfg := &config.Config{
		Network: config.NetworkConfig{
			HTTP: config.HTTPConfig{
				Port:         8400,
				ServerHeader: "",
				DevMode:      true,
			},
			Device: config.DeviceConfig{
				Port:         8401,
				AllowedCIDRs: []string{"127.0.0.0/8"},
			},
		},
		Timing: config.TimingConfig{
			AckTimeoutSec: 2,
		},
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	link := devicelink.NewServer(cfg)
	go link.Serve(listener)

	results := make(chan bridge.SendResult, 4)
	b := bridge.New(link, bridge.WithCompletionHook(func(r bridge.SendResult) {
		results <- r
	}))

	rpc := jsonrpc.NewServer(cfg, b, clay.Default())
	ts := &TestServer{
		server:  httptest.NewServer(rpc.NewRouter()),
		link:    link,
		linkURL: listener.Addr().String(),
		results: results,
	}
	t.Cleanup(func() {
		ts.server.Close()
		link.Close()
	})
	return ts
}

// connectWatch dials the device link as the watch would
func (ts *TestServer) connectWatch(t *testing.T) (net.Conn, *bufio.Reader) {
	conn, err := net.Dial("tcp", ts.linkURL)
	if err != nil {
		t.Fatalf("Failed to connect watch: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for !ts.link.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("Device link never registered the watch")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn, bufio.NewReader(conn)
}

func (ts *TestServer) call(t *testing.T, method string, params ...string) []byte {
	body, _ := json.Marshal(jsonrpc.Request{JSONRPC: "2.0", Method: method, Params: params, ID: "contract-1"})

	resp, err := http.Post(ts.server.URL+"/pebble", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if err := ValidateEnvelope(data); err != nil {
		t.Fatalf("Response envelope invalid: %v (%s)", err, data)
	}
	return data
}

func (ts *TestServer) waitResult(t *testing.T) bridge.SendResult {
	select {
	case r := <-ts.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for send completion")
		return bridge.SendResult{}
	}
}

func TestHTTPHandOffDelivered(t *testing.T) {
	ts := NewTestServer(t)
	conn, reader := ts.connectWatch(t)

	data := ts.call(t, "webviewclosed", url.QueryEscape(`{"bgColor":"0xAABBCC","LightTheme":false}`))

	var envelope JSONRPCEnvelope
	json.Unmarshal(data, &envelope)
	var result jsonrpc.WebviewClosedResult
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		t.Fatalf("Unexpected result shape: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("Watch did not receive a frame: %v", err)
	}

	var frame map[string]json.RawMessage
	if err := json.Unmarshal(line, &frame); err != nil {
		t.Fatalf("Bad frame: %v", err)
	}
	if err := ValidateAppMessage(frame["payload"]); err != nil {
		t.Errorf("Payload breaks the contract: %v", err)
	}
	if string(frame["payload"]) != `{"KEY_BACKGROUND_COLOR":"0xAABBCC"}` {
		t.Errorf("Unexpected payload %s", frame["payload"])
	}

	var txID string
	json.Unmarshal(frame["transactionId"], &txID)
	if txID != result.TransactionID {
		t.Errorf("Frame transaction %s does not match RPC result %s", txID, result.TransactionID)
	}

	ack, _ := json.Marshal(devicelink.Frame{Type: devicelink.FrameAck, TransactionID: txID})
	conn.Write(append(ack, '\n'))

	if r := ts.waitResult(t); r.Err != nil {
		t.Errorf("Expected delivered message, got %v", r.Err)
	}
}

func TestHTTPHandOffWithoutWatch(t *testing.T) {
	ts := NewTestServer(t)

	data := ts.call(t, "webviewclosed", url.QueryEscape(`{"bgColor":"0x123456"}`))

	var envelope JSONRPCEnvelope
	json.Unmarshal(data, &envelope)
	if len(envelope.Error) > 0 {
		t.Errorf("Send failure must not surface to the host: %s", envelope.Error)
	}

	if r := ts.waitResult(t); errors.Cause(r.Err) != devicelink.ErrNoDevice {
		t.Errorf("Expected ErrNoDevice, got %v", r.Err)
	}
}

func TestHTTPMalformedResponseNeverReachesWatch(t *testing.T) {
	ts := NewTestServer(t)
	conn, reader := ts.connectWatch(t)

	data := ts.call(t, "webviewclosed", "%7B%22bgColor%22")

	var envelope JSONRPCEnvelope
	json.Unmarshal(data, &envelope)
	if err := ValidateErrorResponse(envelope.Error); err != nil {
		t.Fatalf("Expected a well-formed error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if line, err := reader.ReadBytes('\n'); err == nil {
		t.Errorf("Watch received a frame for a malformed response: %s", line)
	}
}

func TestHTTPShowConfiguration(t *testing.T) {
	ts := NewTestServer(t)

	for i := 0; i < 2; i++ {
		data := ts.call(t, "showConfiguration")

		var envelope JSONRPCEnvelope
		json.Unmarshal(data, &envelope)
		var result jsonrpc.ShowConfigurationResult
		if err := json.Unmarshal(envelope.Result, &result); err != nil {
			t.Fatalf("Unexpected result shape: %v", err)
		}
		if result.URL != bridge.ConfigurationURL {
			t.Errorf("Call %d: expected %s, got %s", i, bridge.ConfigurationURL, result.URL)
		}
	}
}

func TestHTTPDescriptor(t *testing.T) {
	ts := NewTestServer(t)

	resp, err := http.Get(ts.server.URL + "/descriptor")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if err := ValidateDescriptor(data); err != nil {
		t.Errorf("Served descriptor breaks the contract: %v", err)
	}
}

func TestHTTPMethodPOSTOnly(t *testing.T) {
	ts := NewTestServer(t)

	resp, err := http.Get(ts.server.URL + "/pebble")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for GET, got %d", resp.StatusCode)
	}
}
