// Package bridge relays watchface settings from the configuration page to the
// watch. Each host lifecycle signal is handled independently; the only
// outbound effect is at most one AppMessage per closed configuration page.
package bridge

import (
	"context"
	"log"

	"github.com/pkg/errors"
)

// ConfigurationURL is the settings page opened on showConfiguration
const ConfigurationURL = "http://www.rwby-qrow-watchface-configuration.co.nf"

// SendResult is the outcome of one AppMessage send. Err is nil on ack.
type SendResult struct {
	TransactionID string
	Err           error
}

// Delivery tracks an in-flight send. Done yields exactly one SendResult.
type Delivery struct {
	TransactionID string
	Done          <-chan SendResult
}

// MessageChannel is the host's inter-process channel to the watch application
type MessageChannel interface {
	// Send queues msg and returns without waiting for the watch
	Send(ctx context.Context, msg AppMessage) Delivery
}

// Event is one signal as delivered by the host. Response is only
// meaningful for ConfigClosed.
type Event struct {
	Signal   Signal
	Response string
}

// Outcome is what handling a signal asks of the host
type Outcome struct {
	OpenURL       string
	Message       *AppMessage
	TransactionID string
}

// Handler handles one signal kind
type Handler func(ctx context.Context, ev Event) (Outcome, error)

// Bridge dispatches host signals to their handlers
type Bridge struct {
	channel  MessageChannel
	handlers map[Signal]Handler
	onSent   func(SendResult)
}

// Option configures a Bridge
type Option func(*Bridge)

// WithCompletionHook registers fn to observe each send outcome after it is logged
func WithCompletionHook(fn func(SendResult)) Option {
	return func(b *Bridge) {
		b.onSent = fn
	}
}

// New creates a bridge that sends through channel. The dispatch table is
// fixed here and never changes afterwards.
func New(channel MessageChannel, opts ...Option) *Bridge {
	b := &Bridge{
		channel: channel,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.handlers = map[Signal]Handler{
		Ready:           b.handleReady,
		ConfigRequested: b.handleConfigRequested,
		ConfigClosed:    b.handleConfigClosed,
	}

	return b
}

// Dispatch runs the handler registered for ev.Signal
func (b *Bridge) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	handler, ok := b.handlers[ev.Signal]
	if !ok {
		return Outcome{}, errors.Wrapf(ErrUnknownSignal, "signal %d", int(ev.Signal))
	}
	return handler(ctx, ev)
}

func (b *Bridge) handleReady(ctx context.Context, ev Event) (Outcome, error) {
	log.Println("Settings bridge ready and running")
	return Outcome{}, nil
}

// URL open failures belong to the host and are not observed here.
func (b *Bridge) handleConfigRequested(ctx context.Context, ev Event) (Outcome, error) {
	log.Printf("Opening configuration page: %s", ConfigurationURL)
	return Outcome{OpenURL: ConfigurationURL}, nil
}

func (b *Bridge) handleConfigClosed(ctx context.Context, ev Event) (Outcome, error) {
	resp, err := DecodeResponse(ev.Response)
	if err != nil {
		return Outcome{}, err
	}

	log.Printf("Config window returned: bgColor=%s lightTheme=%s", string(resp.BgColor), formatOptionalBool(resp.LightTheme))
	if len(resp.Unknown) > 0 {
		log.Printf("Config window returned unrecognized keys: %v", resp.Unknown)
	}
	if len(resp.BgColor) == 0 {
		log.Println("Config window returned no bgColor, KEY_BACKGROUND_COLOR will be absent")
	}

	msg := NewAppMessage(resp)

	// The send outlives the signal that triggered it
	delivery := b.channel.Send(context.WithoutCancel(ctx), msg)
	go b.complete(delivery)

	return Outcome{Message: &msg, TransactionID: delivery.TransactionID}, nil
}

// complete is the single completion callback for a send. Failures are
// logged and dropped; there is no retry.
func (b *Bridge) complete(d Delivery) {
	result := <-d.Done
	if result.Err != nil {
		log.Printf("Failed to send config data (transaction %s): %v", result.TransactionID, result.Err)
	} else {
		log.Printf("Sent config data to watch (transaction %s)", result.TransactionID)
	}

	if b.onSent != nil {
		b.onSent(result)
	}
}

func formatOptionalBool(v *bool) string {
	if v == nil {
		return "unset"
	}
	if *v {
		return "true"
	}
	return "false"
}
