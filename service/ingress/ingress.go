// Package ingress turns dispatch envelopes from other services into gateway
// dispatches. The same envelope arrives over HTTP, NATS and Kafka.
package ingress

import (
	"bytes"
	"encoding/json"

	"PPKitchen/logger"
	"PPKitchen/service/gateway"
	"PPKitchen/service/metrics"
	"PPKitchen/service/natsx"
	"PPKitchen/tools/errs"

	"go.uber.org/zap"
)

// Sources label where an envelope came from.
const (
	SourceHTTP  = "http"
	SourceNATS  = "nats"
	SourceKafka = "kafka"
)

// Envelope is the wire form of one dispatch request. A non-empty ID is
// dispatched at most once per dedupe window.
//
//	{"id":"...","target":{"kind":"topic","value":"session:42"},
//	 "event":{"type":"step_updated","payload":{"stepNumber":3}}}
type Envelope struct {
	ID     string     `json:"id,omitempty"`
	Target TargetSpec `json:"target"`
	Event  EventSpec  `json:"event"`
}

type TargetSpec struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

type EventSpec struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Dispatcher is the gateway side of ingress.
type Dispatcher interface {
	Dispatch(t gateway.Target, ev gateway.Event) (gateway.DispatchResult, error)
}

type Ingress struct {
	d       Dispatcher
	log     *zap.Logger
	metrics *metrics.Metrics
	seen    natsx.IdemStore
}

func New(d Dispatcher, log *zap.Logger, m *metrics.Metrics) *Ingress {
	return &Ingress{d: d, log: logger.OrDefault(log).Named("ingress"), metrics: m}
}

// Dedupe makes Apply drop envelopes whose id store has already seen.
func (in *Ingress) Dedupe(store natsx.IdemStore) *Ingress {
	in.seen = store
	return in
}

// DecodeEnvelope parses raw strictly: unknown envelope fields are rejected and
// numbers keep their exact text until the event decoder types them.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, errs.ErrInvalidEventPayload.WrapMsg("envelope: " + err.Error())
	}
	return env, nil
}

// Resolve validates the envelope into a target and a typed event.
func (e Envelope) Resolve() (gateway.Target, gateway.Event, error) {
	target, err := gateway.ParseTarget(e.Target.Kind, e.Target.Value)
	if err != nil {
		return gateway.Target{}, gateway.Event{}, err
	}
	ev, err := gateway.DecodeEvent(e.Event.Type, e.Event.Payload)
	if err != nil {
		return gateway.Target{}, gateway.Event{}, err
	}
	return target, ev, nil
}

// Handle decodes and dispatches one raw envelope.
func (in *Ingress) Handle(source string, raw []byte) (gateway.DispatchResult, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		in.reject(source, "", err)
		return gateway.DispatchResult{}, err
	}
	return in.Apply(source, env)
}

// Apply dispatches an already decoded envelope.
func (in *Ingress) Apply(source string, env Envelope) (gateway.DispatchResult, error) {
	target, ev, err := env.Resolve()
	if err != nil {
		in.reject(source, env.ID, err)
		return gateway.DispatchResult{}, err
	}
	if env.ID != "" && in.seen != nil && in.seen.SeenOnce(env.ID) {
		in.metrics.Ingress(source, "duplicate")
		in.log.Debug("duplicate envelope skipped", zap.String("source", source), zap.String("id", env.ID))
		return gateway.DispatchResult{}, nil
	}
	res, err := in.d.Dispatch(target, ev)
	if err != nil {
		in.reject(source, env.ID, err)
		return res, err
	}
	in.metrics.Ingress(source, "ok")
	in.log.Debug("envelope dispatched",
		zap.String("source", source),
		zap.String("id", env.ID),
		zap.String("target", target.String()),
		zap.String("event", ev.Type()),
		zap.Int("delivered", res.Delivered),
	)
	return res, nil
}

func (in *Ingress) reject(source, id string, err error) {
	in.metrics.Ingress(source, "rejected")
	in.log.Warn("envelope rejected",
		zap.String("source", source),
		zap.String("id", id),
		zap.Int("code", errs.Code(err)),
		zap.Error(err),
	)
}
