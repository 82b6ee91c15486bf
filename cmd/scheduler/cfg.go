package main

import (
	"fmt"
	"time"

	"github.com/galdor/go-election/pkg/election"
	jsonvalidator "github.com/galdor/go-json-validator"
	"github.com/galdor/go-service/pkg/service"
)

type ServiceCfg struct {
	Service service.ServiceCfg `json:"service"`
	Cluster ClusterCfg         `json:"cluster"`
}

type ClusterCfg struct {
	Instances []InstanceCfg `json:"instances"`

	Strategy string `json:"strategy,omitempty"`

	HeartbeatIntervalMs int `json:"heartbeatIntervalMs,omitempty"`
	WorkIntervalMs      int `json:"workIntervalMs,omitempty"`
	LeaseDurationMs     int `json:"leaseDurationMs,omitempty"`

	FailureDetection bool `json:"failureDetection,omitempty"`

	// When set, the service fails the elected leader after this delay,
	// re-triggers elections and later recovers it, demonstrating failover.
	FailoverDemoDelayMs int `json:"failoverDemoDelayMs,omitempty"`
}

type InstanceCfg struct {
	// Generated if empty
	Id string `json:"id,omitempty"`

	Priority int `json:"priority"`
}

func (cfg *ServiceCfg) ValidateJSON(v *jsonvalidator.Validator) {
	v.CheckObject("service", &cfg.Service)

	v.CheckObject("cluster", &cfg.Cluster)
}

func (cfg *ClusterCfg) ValidateJSON(v *jsonvalidator.Validator) {
	v.WithChild("instances", func() {
		for _, instance := range cfg.Instances {
			v.CheckIntMin("priority", instance.Priority, 1)
		}
	})
}

func (cfg *ClusterCfg) Check() error {
	switch election.Strategy(cfg.Strategy) {
	case "", election.StrategyPriorityBully, election.StrategyLeaseBased:

	default:
		return fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}

	priorities := make(map[int]string)

	for _, instance := range cfg.Instances {
		if id, found := priorities[instance.Priority]; found {
			return fmt.Errorf("instances %q and %q have the same "+
				"priority %d", id, instance.Id, instance.Priority)
		}

		priorities[instance.Priority] = instance.Id
	}

	return nil
}

func (cfg *ClusterCfg) HeartbeatInterval() time.Duration {
	if cfg.HeartbeatIntervalMs == 0 {
		return 2 * time.Second
	}

	return time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond
}

func (cfg *ClusterCfg) WorkInterval() time.Duration {
	if cfg.WorkIntervalMs == 0 {
		return 3 * time.Second
	}

	return time.Duration(cfg.WorkIntervalMs) * time.Millisecond
}

func (cfg *ClusterCfg) LeaseDuration() time.Duration {
	if cfg.LeaseDurationMs == 0 {
		return 5 * time.Second
	}

	return time.Duration(cfg.LeaseDurationMs) * time.Millisecond
}
