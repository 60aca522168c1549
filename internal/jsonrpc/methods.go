package jsonrpc

import (
	"github.com/pkg/errors"

	"github.com/qrow-bridge/internal/bridge"
)

// ReadyResult is returned for ready
type ReadyResult struct {
	Status string `json:"status"`
}

// ShowConfigurationResult tells the host which page to open
type ShowConfigurationResult struct {
	URL string `json:"url"`
}

// WebviewClosedResult reports the message handed to the device link.
// Delivery happens later; the host only learns the transaction ID.
type WebviewClosedResult struct {
	TransactionID string             `json:"transactionId"`
	Message       *bridge.AppMessage `json:"message"`
}

// eventFromRequest maps method names to signals and checks their params
func eventFromRequest(req *Request) (bridge.Event, *ErrorResponse) {
	signal, err := bridge.ParseSignal(req.Method)
	if err != nil {
		if errors.Cause(err) == bridge.ErrUnknownSignal {
			return bridge.Event{}, &ErrorResponse{Code: CodeMethodNotFound, Message: "Method not found"}
		}
		return bridge.Event{}, &ErrorResponse{Code: CodeInternalError, Message: "INTERNAL"}
	}

	ev := bridge.Event{Signal: signal}
	if signal == bridge.ConfigClosed {
		if len(req.Params) != 1 {
			return bridge.Event{}, &ErrorResponse{
				Code:    CodeInvalidParams,
				Message: "INVALID_PARAMS",
				Data:    "webviewclosed takes exactly one param: the response string",
			}
		}
		ev.Response = req.Params[0]
	}

	return ev, nil
}

func resultFor(signal bridge.Signal, outcome bridge.Outcome) interface{} {
	switch signal {
	case bridge.ConfigRequested:
		return ShowConfigurationResult{URL: outcome.OpenURL}
	case bridge.ConfigClosed:
		return WebviewClosedResult{TransactionID: outcome.TransactionID, Message: outcome.Message}
	default:
		return ReadyResult{Status: "ok"}
	}
}
