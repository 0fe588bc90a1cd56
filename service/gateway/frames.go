package gateway

import (
	"encoding/json"
	"strings"

	"PPKitchen/tools/errs"
)

// Client frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// Server frame types.
const (
	FramePong         = "pong"
	FrameError        = "error"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameConnected    = "connected"
)

// Frame is an inbound client message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func ParseFrameJSON(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errs.ErrInvalidFrame.WrapMsg(err.Error())
	}
	if f.Type == "" {
		return nil, errs.ErrInvalidFrame.WrapMsg("missing type")
	}
	return f, nil
}

// TopicPayload reads the topic of a subscribe/unsubscribe frame. Both a bare
// string and {"topic": "..."} are accepted.
func (f *Frame) TopicPayload() (string, error) {
	p := strings.TrimSpace(string(f.Payload))
	if p == "" || p == "null" {
		return "", errs.ErrInvalidTopic.WrapMsg("missing topic")
	}
	var s string
	if err := json.Unmarshal(f.Payload, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(f.Payload, &obj); err != nil || obj.Topic == "" {
		return "", errs.ErrInvalidTopic.WrapMsg("bad topic payload")
	}
	return obj.Topic, nil
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func buildFrame(typ string, payload any) []byte {
	b, err := json.Marshal(outbound{Type: typ, Payload: payload})
	if err != nil {
		// payloads built here are plain structs
		panic(err)
	}
	return b
}

type messagePayload struct {
	Message string `json:"message"`
}

type topicPayload struct {
	Topic string `json:"topic"`
}

// ConnectedPayload is sent once after admission.
type ConnectedPayload struct {
	ConnectionID     string `json:"connectionId"`
	UserID           string `json:"userId"`
	DeviceClass      string `json:"deviceClass"`
	HeartbeatSeconds int    `json:"heartbeatSeconds"`
}

func BuildPong() []byte { return buildFrame(FramePong, nil) }

func BuildError(message string) []byte {
	return buildFrame(FrameError, messagePayload{Message: message})
}

func BuildSubscribed(t string) []byte {
	return buildFrame(FrameSubscribed, topicPayload{Topic: t})
}

func BuildUnsubscribed(t string) []byte {
	return buildFrame(FrameUnsubscribed, topicPayload{Topic: t})
}

func BuildConnected(p ConnectedPayload) []byte {
	return buildFrame(FrameConnected, p)
}
