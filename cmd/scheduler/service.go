package main

import (
	"fmt"
	"time"

	"github.com/galdor/go-election/pkg/election"
	"github.com/galdor/go-log"
	"github.com/galdor/go-program"
	"github.com/galdor/go-service/pkg/service"
	"github.com/google/uuid"
)

type Service struct {
	Cfg     ServiceCfg
	Program *program.Program
	Service *service.Service
	Log     *log.Logger

	cluster []*election.Coordinator

	stopChan chan struct{}
}

func NewService() *Service {
	return &Service{
		stopChan: make(chan struct{}),
	}
}

func (s *Service) InitProgram(p *program.Program) {
	s.Program = p
}

func (s *Service) DefaultCfg() interface{} {
	return &s.Cfg
}

func (s *Service) ValidateCfg() error {
	return s.Cfg.Cluster.Check()
}

func (s *Service) ServiceCfg() *service.ServiceCfg {
	return &s.Cfg.Service
}

func (s *Service) Init(ss *service.Service) error {
	s.Service = ss
	s.Log = ss.Log

	if err := s.initCluster(); err != nil {
		return err
	}

	return nil
}

func (s *Service) initCluster() error {
	cfg := s.Cfg.Cluster

	instances := cfg.Instances
	if len(instances) == 0 {
		instances = []InstanceCfg{
			{Priority: 10},
			{Priority: 20},
			{Priority: 30},
		}
	}

	strategy := election.Strategy(cfg.Strategy)
	if strategy == "" {
		strategy = election.StrategyPriorityBully
	}

	var lease *election.Lease
	if strategy == election.StrategyLeaseBased {
		lease = election.NewLease(cfg.LeaseDuration())
	}

	for _, instance := range instances {
		id := election.NodeId(instance.Id)
		if id == "" {
			id = election.NodeId(uuid.NewString())
		}

		logger := s.Log.Child("node", log.Data{
			"node": string(id),
		})

		coordinatorCfg := election.CoordinatorCfg{
			Node: election.NodeCfg{
				Id:       id,
				Priority: instance.Priority,

				Logger: logger,

				Strategy: strategy,
				Lease:    lease,

				HeartbeatInterval: cfg.HeartbeatInterval(),

				FailureDetection: cfg.FailureDetection,

				OnPromote: func(_ election.NodeId, term election.Term) {
					logger.Info("promoted to leader (term %d)", term)
				},

				OnDemote: func(_ election.NodeId, term election.Term) {
					logger.Info("demoted to follower (term %d)", term)
				},
			},

			Work: func() {
				logger.Info("executing scheduled work")
			},
			WorkInterval: cfg.WorkInterval(),
		}

		coordinator, err := election.NewCoordinator(coordinatorCfg)
		if err != nil {
			return fmt.Errorf("cannot create coordinator %q: %w", id, err)
		}

		s.cluster = append(s.cluster, coordinator)
	}

	// Every instance observes every other one
	for _, coordinator := range s.cluster {
		for _, other := range s.cluster {
			if other == coordinator {
				continue
			}

			if err := coordinator.AddPeer(other); err != nil {
				return fmt.Errorf("cannot register peer: %w", err)
			}
		}
	}

	return nil
}

func (s *Service) Start(ss *service.Service) error {
	for _, coordinator := range s.cluster {
		if err := coordinator.Start(ss.ErrorChan()); err != nil {
			return fmt.Errorf("cannot start coordinator %q: %w",
				coordinator.Node().Id(), err)
		}
	}

	if delayMs := s.Cfg.Cluster.FailoverDemoDelayMs; delayMs > 0 {
		go s.runFailoverDemo(time.Duration(delayMs) * time.Millisecond)
	}

	return nil
}

func (s *Service) Stop(ss *service.Service) {
	close(s.stopChan)

	for _, coordinator := range s.cluster {
		coordinator.Shutdown()
	}
}

func (s *Service) Terminate(ss *service.Service) {
}

func (s *Service) leader() *election.Coordinator {
	for _, coordinator := range s.cluster {
		if coordinator.IsLeader() {
			return coordinator
		}
	}

	return nil
}

func (s *Service) logClusterStatus() {
	leaderId := "none"
	if leader := s.leader(); leader != nil {
		leaderId = string(leader.Node().Id())
	}

	s.Log.Info("cluster status: leader %q", leaderId)

	for _, coordinator := range s.cluster {
		status := coordinator.Status()

		s.Log.Info("node %q: priority %d, role %v, term %d, leader %q, "+
			"healthy %v, work executed %d",
			status.Node.Id, status.Node.Priority, status.Node.Role,
			status.Node.CurrentTerm, status.Node.KnownLeader,
			status.Node.Healthy, status.WorkExecuted)
	}
}

func (s *Service) runFailoverDemo(delay time.Duration) {
	interval := s.Cfg.Cluster.HeartbeatInterval()

	if !s.sleep(delay) {
		return
	}

	s.logClusterStatus()

	leader := s.leader()
	if leader == nil {
		s.Log.Error("failover demo: no elected leader")
		return
	}

	s.Log.Info("failover demo: failing leader %q", leader.Node().Id())
	leader.SimulateFailure()

	if !s.sleep(2 * interval) {
		return
	}

	for _, coordinator := range s.cluster {
		if coordinator == leader {
			continue
		}

		coordinator.TriggerElection()
	}

	if newLeader := s.leader(); newLeader != nil {
		s.Log.Info("failover demo: new leader %q", newLeader.Node().Id())
	}

	s.logClusterStatus()

	if !s.sleep(2 * interval) {
		return
	}

	s.Log.Info("failover demo: recovering node %q", leader.Node().Id())
	leader.SimulateRecovery()

	s.logClusterStatus()
}

func (s *Service) sleep(d time.Duration) bool {
	select {
	case <-s.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}
