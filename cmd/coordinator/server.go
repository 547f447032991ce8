package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/clusterstate/internal/audit"
	"github.com/dreamware/clusterstate/internal/config"
	"github.com/dreamware/clusterstate/internal/coordinator"
	"github.com/dreamware/clusterstate/internal/logging"
	"github.com/dreamware/clusterstate/internal/master"
	"github.com/dreamware/clusterstate/internal/metrics"
	"github.com/dreamware/clusterstate/internal/restapi"
	"github.com/dreamware/clusterstate/internal/store"
)

const shutdownTimeout = 5 * time.Second

// server is one coordinator process: the registries of the configured
// clusters with their listeners, health monitors and the HTTP surface.
type server struct {
	cfg        *config.Config
	log        *logrus.Logger
	store      *store.Store
	metrics    *metrics.Metrics
	controller *coordinator.Controller
	monitors   map[string]*coordinator.HealthMonitor
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Listen)
	}
	return srv.run(ctx, ln)
}

// newServer opens the store and builds one registry per configured cluster.
// Wanted states persisted by an earlier run are restored before anything is
// served.
func newServer(cfg *config.Config, logger *logrus.Logger) (*server, error) {
	st, err := store.Open(cfg.DataDir, logger.WithField("component", "store"))
	if err != nil {
		return nil, err
	}
	s := &server{
		cfg:        cfg,
		log:        logger,
		store:      st,
		metrics:    metrics.New(),
		controller: coordinator.NewController(),
		monitors:   make(map[string]*coordinator.HealthMonitor),
	}
	auditLog := audit.New(logger.WithField("component", "audit"))

	for _, cc := range cfg.Clusters {
		reg, err := coordinator.NewRegistry(cc.Name, cc.Topology(), cc.GroupPolicy(), st, auditLog, s.metrics)
		if err != nil {
			s.close()
			return nil, err
		}
		reg.OnPublish(s.metrics.VersionRecorder(cc.Name))
		wanted, err := st.Load(cc.Name)
		if err != nil {
			s.close()
			return nil, err
		}
		if n := reg.Restore(wanted); n > 0 {
			logger.WithFields(logrus.Fields{"cluster": cc.Name, "nodes": n}).Info("restored wanted states")
		}

		tracker, err := master.Static(cfg.Master.IsSelf(), cfg.Master.Address)
		if err != nil {
			s.close()
			return nil, err
		}
		if err := s.controller.Add(reg, tracker); err != nil {
			s.close()
			return nil, err
		}
		s.monitors[cc.Name] = coordinator.NewHealthMonitor(reg, cfg.HealthInterval, logger.WithField("cluster", cc.Name))
	}
	return s, nil
}

func (s *server) close() {
	if err := s.store.Close(); err != nil {
		s.log.WithError(err).Warn("closing store")
	}
}

func (s *server) routes() http.Handler {
	router := httprouter.New()
	svc := restapi.NewService(s.controller, restapi.Options{
		SafeWaitTimeout: s.cfg.SafeWaitTimeout,
		Metrics:         s.metrics,
		Logger:          s.log.WithField("component", "restapi"),
	})
	restapi.NewHandler(svc).Register(router)

	router.GET("/health", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})
	router.GET("/health/nodes", s.handleNodeHealth)
	router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	return s.metrics.Instrument(router)
}

type nodeHealth struct {
	Node             string    `json:"node"`
	Reported         string    `json:"reported"`
	Healthy          bool      `json:"healthy"`
	ConsecutiveFails int       `json:"consecutive-fails"`
	LastCheck        time.Time `json:"last-check"`
	LastHealthy      time.Time `json:"last-healthy"`
}

// handleNodeHealth lists the probe status of every probed node by cluster.
func (s *server) handleNodeHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	out := make(map[string][]nodeHealth, len(s.monitors))
	for name, mon := range s.monitors {
		list := []nodeHealth{}
		for n, h := range mon.GetAllNodeHealth() {
			list = append(list, nodeHealth{
				Node:             n.String(),
				Reported:         h.Reported.String(),
				Healthy:          mon.IsHealthy(n),
				ConsecutiveFails: h.ConsecutiveFails,
				LastCheck:        h.LastCheck,
				LastHealthy:      h.LastHealthy,
			})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Node < list[j].Node })
		out[name] = list
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// run serves on ln and runs the health monitors until ctx is done, then
// shuts the HTTP server down gracefully.
func (s *server) run(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("addr", ln.Addr().String()).Info("coordinator listening")
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	for _, mon := range s.monitors {
		mon := mon
		g.Go(func() error {
			mon.Start(ctx)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		s.log.Info("coordinator stopped")
		return err
	})
	return g.Wait()
}
