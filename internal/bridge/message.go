package bridge

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ErrMalformedResponse means the configuration page returned something that
// is not a URL-encoded JSON object.
var ErrMalformedResponse = errors.New("malformed configuration response")

// Keys recognized in a configuration response
const (
	keyBgColor    = "bgColor"
	keyLightTheme = "LightTheme"
)

// ConfigResponse is the decoded result of one configuration page session.
// BgColor holds the raw JSON value since its representation belongs to the page.
type ConfigResponse struct {
	BgColor    json.RawMessage
	LightTheme *bool

	// Unknown lists keys the bridge does not recognize or cannot interpret, sorted
	Unknown []string
}

// AppMessage is the key-value payload sent to the watch application.
// An empty BackgroundColor is left out of the wire form entirely.
type AppMessage struct {
	BackgroundColor json.RawMessage `json:"KEY_BACKGROUND_COLOR,omitempty"`
}

// HasBackgroundColor reports whether the message carries KEY_BACKGROUND_COLOR
func (m AppMessage) HasBackgroundColor() bool {
	return len(m.BackgroundColor) > 0
}

// DecodeResponse URL-decodes and parses a webviewclosed payload
func DecodeResponse(raw string) (*ConfigResponse, error) {
	// decodeURIComponent semantics: '+' stays literal
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "url decode: %v", err)
	}
	// decodeURIComponent rejects escapes that do not form UTF-8
	if !utf8.ValidString(decoded) {
		return nil, errors.Wrap(ErrMalformedResponse, "url decode: invalid UTF-8")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(decoded), &fields); err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "json: %v", err)
	}
	if fields == nil {
		// literal null; scalars and arrays already failed above
		return nil, errors.Wrap(ErrMalformedResponse, "json: not an object")
	}

	resp := &ConfigResponse{}
	for key, value := range fields {
		switch key {
		case keyBgColor:
			if !isNull(value) {
				resp.BgColor = value
			}
		case keyLightTheme:
			var on bool
			if err := json.Unmarshal(value, &on); err == nil {
				resp.LightTheme = &on
			} else {
				resp.Unknown = append(resp.Unknown, key)
			}
		default:
			resp.Unknown = append(resp.Unknown, key)
		}
	}
	sort.Strings(resp.Unknown)

	return resp, nil
}

// NewAppMessage builds the outbound message. A missing bgColor stays missing.
func NewAppMessage(resp *ConfigResponse) AppMessage {
	return AppMessage{BackgroundColor: resp.BgColor}
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}
