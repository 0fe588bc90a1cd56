package nacos

import (
	"strings"

	"PPKitchen/logger"
	"PPKitchen/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// Instance describes this gateway node in the naming service.
type Instance struct {
	IP       string
	Port     uint64
	NodeID   string
	Variants []string // websocket paths served
}

// Registry announces the node so domain services can find gateway instances.
type Registry struct {
	cli     naming_client.INamingClient
	service string
	group   string
	log     *zap.Logger
}

func NewRegistry(cli naming_client.INamingClient, c Config) *Registry {
	service := c.ServiceName
	if service == "" {
		service = "kitchen-gateway"
	}
	return &Registry{cli: cli, service: service, group: c.group(), log: logger.Named("nacos")}
}

func (r *Registry) Register(inst Instance) error {
	ok, err := r.cli.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          inst.IP,
		Port:        inst.Port,
		ServiceName: r.service,
		GroupName:   r.group,
		ClusterName: "DEFAULT",
		Weight:      1,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		Metadata: map[string]string{
			"nodeId":   inst.NodeID,
			"protocol": "websocket",
			"paths":    strings.Join(inst.Variants, ","),
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos register", "service", r.service)
	}
	if !ok {
		return errs.New("nacos register returned false", "service", r.service)
	}
	r.log.Info("instance registered", zap.String("service", r.service), zap.String("ip", inst.IP), zap.Uint64("port", inst.Port))
	return nil
}

func (r *Registry) Deregister(inst Instance) error {
	_, err := r.cli.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          inst.IP,
		Port:        inst.Port,
		ServiceName: r.service,
		GroupName:   r.group,
		Cluster:     "DEFAULT",
		Ephemeral:   true,
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos deregister", "service", r.service)
	}
	return nil
}
