package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"PPKitchen/data/database/mgo/mongoutil"
	"PPKitchen/global/config"
	"PPKitchen/logger"
	"PPKitchen/middleware"
	midsec "PPKitchen/middleware/security"
	"PPKitchen/service/authz"
	"PPKitchen/service/gateway"
	"PPKitchen/service/ingress"
	"PPKitchen/service/kafka"
	"PPKitchen/service/metrics"
	"PPKitchen/service/nacos"
	"PPKitchen/service/natsx"
	"PPKitchen/service/rpc"
	"PPKitchen/service/storage"
	redisx "PPKitchen/service/storage/redis"
	"PPKitchen/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	path := flag.String("config", "", "gateway YAML file (defaults to $KITCHEN_CONFIG)")
	flag.Parse()

	if err := run(*path); err != nil {
		logger.Error("gateway exited", zap.Error(err))
		os.Exit(1)
	}
}

// closers run in reverse order on shutdown.
type closers []func() error

func (cs *closers) add(f func() error) { *cs = append(*cs, f) }

func (cs closers) close() error {
	var err error
	for i := len(cs) - 1; i >= 0; i-- {
		err = multierr.Append(err, cs[i]())
	}
	return err
}

func run(path string) (err error) {
	cfg, remote, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	if remote != nil {
		if err := config.WatchLogLevel(remote); err != nil {
			logger.Warn("nacos watch failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cleanup closers
	defer func() { err = multierr.Append(err, cleanup.close()) }()

	promReg := metrics.NewRegistry()
	m := metrics.New(promReg)

	verifier, err := security.NewVerifier(security.Options{
		Secret: []byte(cfg.JWT.Secret),
		Alg:    cfg.JWT.Alg,
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
	})
	if err != nil {
		return err
	}

	opts := cfg.GatewayOptions()
	opts.Metrics = m

	var presence *storage.Presence
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		cleanup.add(rdb.Close)
		presence = storage.NewPresence(rdb, cfg.Gateway.NodeID)
		opts.Presence = presence
	} else {
		logger.Warn("redis not configured, presence disabled")
	}

	var lookup authz.Authorizer
	if cfg.Mongo.Database != "" {
		mc, err := mongoutil.NewMongoDB(ctx, &cfg.Mongo)
		if err != nil {
			return err
		}
		cleanup.add(func() error {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return mc.Close(cctx)
		})
		lookup = authz.NewMongoAuthorizer(mc.GetDB(), nil)
	} else {
		logger.Warn("mongo not configured, only user topics are readable")
		lookup = authz.NewMongoAuthorizer(nil, map[string]authz.ResourceSpec{})
	}
	authorizer := authz.NewCached(lookup, cfg.Authz.CacheSize, cfg.Authz.CacheTTL)

	gw := gateway.New(verifier, authorizer, opts)
	in := ingress.New(gw, nil, m).Dedupe(natsx.NewMemIdem(0, 10*time.Minute))

	draining := middleware.NewManager()
	engine := gin.New()
	engine.Use(middleware.Recovery(nil), middleware.RequestID(), middleware.AccessLog(nil), draining.Use())
	gw.Routes(engine)
	engine.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok", "node": cfg.Gateway.NodeID}) })
	engine.GET("/metrics", gin.WrapH(metrics.Handler(promReg)))
	internal := engine.Group("/internal")
	auth := middleware.RouteOpt{Auth: midsec.ServiceToken(cfg.Server.ServiceToken)}
	middleware.POST(internal, "/dispatch", in.HTTPHandler, auth)
	middleware.GET(internal, "/stats", gw.StatsHandler, auth)
	if presence != nil {
		middleware.GET(internal, "/presence/:userId", presence.PresenceHandler, auth)
	}

	if cfg.Nats.Subject != "" && len(cfg.Nats.Servers) > 0 {
		nc, err := natsx.NewNatsxClient(cfg.Nats.NatsxConfig)
		if err != nil {
			return err
		}
		cleanup.add(nc.Close)
		consumer := natsx.NewNatsxConsumer(nc,
			natsx.NatsxRecover(),
			natsx.NatsxLogErrors(logger.Named("natsx")),
			natsx.NatsxIdemMiddleware(natsx.NewMemIdem(0, 10*time.Minute)),
		)
		// No queue group: every gateway node needs every envelope.
		if err := consumer.Subscribe(cfg.Nats.Subject, "", in.NatsHandler()); err != nil {
			return err
		}
	}

	if cfg.Kafka.Enabled() {
		if cfg.Kafka.EnsureTopics {
			if err := kafka.EnsureTopics(cfg.Kafka, nil); err != nil {
				return err
			}
		}
		kc, err := kafka.NewConsumer(cfg.Kafka, cfg.Gateway.NodeID, in.KafkaHandler())
		if err != nil {
			return err
		}
		kc.Start(ctx)
		cleanup.add(kc.Close)
	}

	health := rpc.NewHealthServer(nil)
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}

	var registry *nacos.Registry
	var self nacos.Instance
	if cfg.Nacos.Enabled() && cfg.Server.AdvertiseIP != "" {
		naming, err := nacos.NewNamingClient(cfg.Nacos)
		if err != nil {
			return err
		}
		registry = nacos.NewRegistry(naming, cfg.Nacos)
		self = nacos.Instance{IP: cfg.Server.AdvertiseIP, Port: httpPort(cfg.Server.HTTPAddr), NodeID: cfg.Gateway.NodeID}
		for _, v := range gw.Options().Variants {
			self.Variants = append(self.Variants, v.Path)
		}
	}

	gw.Start()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error { return health.Serve(grpcLis) })
	if registry != nil {
		if err := registry.Register(self); err != nil {
			logger.Warn("nacos register failed", zap.Error(err))
		}
	}

	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down")
		health.SetServing(false)
		draining.Add(middleware.Unavailable())

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var err error
		if registry != nil {
			err = multierr.Append(err, registry.Deregister(self))
		}
		err = multierr.Append(err, gw.Shutdown(sctx))
		err = multierr.Append(err, srv.Shutdown(sctx))
		health.Stop()
		return err
	})
	return eg.Wait()
}

func httpPort(addr string) uint64 {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	p, _ := strconv.ParseUint(port, 10, 64)
	return p
}
