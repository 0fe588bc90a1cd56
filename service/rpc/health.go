// Package rpc exposes the gateway's gRPC health service so orchestrators and
// sibling services can probe a node.
package rpc

import (
	"context"
	"net"
	"time"

	"PPKitchen/logger"
	"PPKitchen/tools/errs"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service key of the gateway.
const ServiceName = "kitchen.Gateway"

// HealthServer serves grpc.health.v1 for the gateway.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	log    *zap.Logger
}

func NewHealthServer(log *zap.Logger) *HealthServer {
	h := &HealthServer{
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		log:    logger.OrDefault(log).Named("rpc"),
	}
	grpc_health_v1.RegisterHealthServer(h.srv, h.health)
	h.SetServing(true)
	return h
}

// SetServing flips both the overall and the gateway service status.
func (h *HealthServer) SetServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !ok {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(ServiceName, st)
}

// Serve blocks until Stop is called or lis fails.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := h.srv.Serve(lis); err != nil && !errs.Is(err, grpc.ErrServerStopped) {
		return errs.WrapMsg(err, "grpc serve")
	}
	return nil
}

// Stop reports NOT_SERVING to watchers, then stops gracefully.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.srv.GracefulStop()
}

// Probe asks the health service at target for ServiceName.
func Probe(ctx context.Context, target string, opts ...grpc.DialOption) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, errs.WrapMsg(err, "grpc dial", "target", target)
	}
	defer conn.Close()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, errs.WrapMsg(err, "health check", "target", target)
	}
	return resp.GetStatus(), nil
}
