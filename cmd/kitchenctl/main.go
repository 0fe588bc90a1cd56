// Command kitchenctl publishes dispatch envelopes to a gateway fleet and
// probes gateway health. It is meant for local development and runbooks.
//
//	kitchenctl emit -via nats -nats nats://127.0.0.1:4222 -subject kitchen.gateway.dispatch \
//	    -target topic:session:42 -type step_updated -payload '{"stepNumber":3}'
//	kitchenctl emit -via kafka -brokers 127.0.0.1:9092 -topic kitchen.gateway.dispatch ...
//	kitchenctl health -addr 127.0.0.1:50051
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"PPKitchen/logger"
	"PPKitchen/service/ingress"
	"PPKitchen/service/kafka"
	"PPKitchen/service/natsx"
	"PPKitchen/service/rpc"
	"PPKitchen/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: kitchenctl emit|health [flags]")
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "emit":
		err = emit(os.Args[2:])
	case "health":
		err = health(os.Args[2:])
	default:
		err = errs.New("unknown command", "command", os.Args[1])
	}
	if err != nil {
		logger.Error("kitchenctl failed", zap.Error(err))
		os.Exit(1)
	}
}

// parseTarget reads "kind" or "kind:value", e.g. "broadcast", "user:u1",
// "topic:session:42".
func parseTarget(s string) ingress.TargetSpec {
	kind, value, _ := strings.Cut(s, ":")
	return ingress.TargetSpec{Kind: kind, Value: value}
}

func buildEnvelope(target, typ, payload string) ([]byte, ingress.Envelope, error) {
	env := ingress.Envelope{
		ID:     uuid.NewString(),
		Target: parseTarget(target),
		Event:  ingress.EventSpec{Type: typ},
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &env.Event.Payload); err != nil {
			return nil, env, errs.WrapMsg(err, "payload is not a JSON object")
		}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, env, err
	}
	// Validate locally with the gateway's own decoder before publishing.
	decoded, err := ingress.DecodeEnvelope(raw)
	if err != nil {
		return nil, env, err
	}
	if _, _, err := decoded.Resolve(); err != nil {
		return nil, env, err
	}
	return raw, env, nil
}

func emit(args []string) error {
	fs := flag.NewFlagSet("emit", flag.ExitOnError)
	via := fs.String("via", "nats", "nats or kafka")
	natsURL := fs.String("nats", "nats://127.0.0.1:4222", "comma separated NATS servers")
	subject := fs.String("subject", "kitchen.gateway.dispatch", "NATS subject")
	brokers := fs.String("brokers", "127.0.0.1:9092", "comma separated Kafka brokers")
	topic := fs.String("topic", "kitchen.gateway.dispatch", "Kafka topic")
	key := fs.String("key", "", "Kafka record key")
	target := fs.String("target", "broadcast", "broadcast | user:<id> | topic:<ns>:<id> | device_class:<class>")
	typ := fs.String("type", "notification", "event type")
	payload := fs.String("payload", `{"title":"hello"}`, "event payload as a JSON object")
	_ = fs.Parse(args)

	raw, env, err := buildEnvelope(*target, *typ, *payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch *via {
	case "nats":
		c, err := natsx.NewNatsxClient(natsx.NatsxConfig{Servers: strings.Split(*natsURL, ","), Name: "kitchenctl"})
		if err != nil {
			return err
		}
		defer c.Close()
		if err := natsx.NewNatsxProducer(c).Publish(ctx, *subject, raw, map[string]string{natsx.MsgIDHeader: env.ID}); err != nil {
			return err
		}
		logger.Info("envelope published", zap.String("via", "nats"), zap.String("subject", *subject), zap.String("id", env.ID))
	case "kafka":
		p, err := kafka.NewProducer(kafka.Config{Brokers: strings.Split(*brokers, ",")})
		if err != nil {
			return err
		}
		defer p.Close()
		partition, offset, err := p.Publish(ctx, *topic, *key, raw)
		if err != nil {
			return err
		}
		logger.Info("envelope published", zap.String("via", "kafka"), zap.String("topic", *topic),
			zap.Int32("partition", partition), zap.Int64("offset", offset), zap.String("id", env.ID))
	default:
		return errs.New("unknown transport", "via", *via)
	}
	return nil
}

func health(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:50051", "gateway gRPC address")
	_ = fs.Parse(args)

	st, err := rpc.Probe(context.Background(), *addr)
	if err != nil {
		return err
	}
	fmt.Println(st.String())
	return nil
}
