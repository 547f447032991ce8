package restapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/clusterstate/internal/cluster"
	"github.com/dreamware/clusterstate/internal/coordinator"
	"github.com/dreamware/clusterstate/internal/master"
	"github.com/dreamware/clusterstate/internal/metrics"
	"github.com/dreamware/clusterstate/internal/safety"
)

// DefaultSafeWaitTimeout bounds the convergence wait of SAFE requests when
// neither the request nor the service configure one.
const DefaultSafeWaitTimeout = 5 * time.Second

// Options configures a Service. All fields are optional.
type Options struct {
	SafeWaitTimeout time.Duration
	Metrics         *metrics.Metrics
	Logger          logrus.FieldLogger
}

// Service answers state queries and mutations independent of HTTP framing.
//
// Thread Safety:
// A Service holds no mutable state of its own and may serve any number of
// requests concurrently. Per-cluster consistency is provided by the
// coordinator.Registry of each cluster.
//
// Example:
//
//	svc := restapi.NewService(ctrl, restapi.Options{Metrics: m, Logger: log})
//	router := httprouter.New()
//	restapi.NewHandler(svc).Register(router)
type Service struct {
	controller *coordinator.Controller
	timeout    time.Duration
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
}

// NewService returns a service over the clusters of controller.
func NewService(controller *coordinator.Controller, opts Options) *Service {
	s := &Service{
		controller: controller,
		timeout:    opts.SafeWaitTimeout,
		metrics:    opts.Metrics,
		log:        opts.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultSafeWaitTimeout
	}
	if s.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		s.log = l
	}
	return s
}

func (s *Service) lookup(unit []string) (coordinator.Cluster, error) {
	cl, ok := s.controller.Cluster(unit[0])
	if !ok {
		return coordinator.Cluster{}, missingUnit(unit[:1], "no such cluster")
	}
	return cl, nil
}

// GetState renders the unit tree below req.Unit. Recursive queries are
// served by the master only; a non-recursive query is answered from the
// local view.
func (s *Service) GetState(ctx context.Context, req GetRequest) (*UnitResponse, error) {
	needsMaster := req.Recursive > 0
	if len(req.Unit) == 0 {
		var views []clusterView
		for _, name := range s.controller.Names() {
			cl, _ := s.controller.Cluster(name)
			if err := master.Check(cl.Master, needsMaster); err != nil {
				return nil, err
			}
			views = append(views, clusterView{name: name, snap: cl.Registry.Snapshot()})
		}
		return renderRoot(views, req.Recursive), nil
	}

	cl, err := s.lookup(req.Unit)
	if err != nil {
		return nil, err
	}
	if err := master.Check(cl.Master, needsMaster); err != nil {
		return nil, err
	}
	v := clusterView{name: cl.Registry.Name(), snap: cl.Registry.Snapshot()}

	switch len(req.Unit) {
	case 1:
		return renderCluster(v, req.Recursive), nil
	case 2:
		t, err := cluster.ParseNodeType(req.Unit[1])
		if err != nil {
			return nil, missingUnit(req.Unit, "no such service")
		}
		return renderService(v, t, req.Recursive), nil
	case 3:
		n, err := parseNode(req.Unit)
		if err != nil {
			return nil, err
		}
		ni, ok := v.snap.Info(n)
		if !ok {
			return nil, missingUnit(req.Unit, "no such node")
		}
		return renderNode(v, ni), nil
	default:
		return nil, missingUnit(req.Unit, "no such unit")
	}
}

func parseNode(unit []string) (cluster.Node, error) {
	t, err := cluster.ParseNodeType(unit[1])
	if err != nil {
		return cluster.Node{}, missingUnit(unit, "no such service")
	}
	index, err := strconv.Atoi(unit[2])
	if err != nil {
		return cluster.Node{}, missingUnit(unit, "node index must be a non-negative integer")
	}
	n, err := cluster.NewNode(t, index)
	if err != nil {
		return cluster.Node{}, missingUnit(unit, "node index must be a non-negative integer")
	}
	return n, nil
}

// SetUnitState sets the wanted state of a storage node. Only the master
// processes mutations. A disallowed request is not an error: it is answered
// with WasModified false and the policy reason.
//
// A SAFE request that changed something waits, unless ResponseWait is
// NoWait, until the nodes acknowledged the new cluster state. A wait that
// runs out returns a DeadlineExceeded error; repeating the request is safe
// because the state is already set.
//
// Parameters:
//   - ctx: bounds the convergence wait together with req.Timeout
//   - req.Unit: cluster, service and index of a storage node
//   - req.States: must hold exactly the "user" state
//   - req.Timeout: zero selects the service default
//
// Errors are *Error values carrying their HTTP status, or master errors
// that the handler turns into redirects.
func (s *Service) SetUnitState(ctx context.Context, req SetRequest) (SetResponse, error) {
	if len(req.Unit) == 0 {
		return SetResponse{}, notSupported(req.Unit, "setting state is only supported for storage nodes")
	}
	cl, err := s.lookup(req.Unit)
	if err != nil {
		return SetResponse{}, err
	}
	if err := master.Check(cl.Master, true); err != nil {
		return SetResponse{}, err
	}
	if len(req.Unit) != 3 {
		return SetResponse{}, notSupported(req.Unit, "setting state is only supported for storage nodes")
	}
	n, err := parseNode(req.Unit)
	if err != nil {
		return SetResponse{}, err
	}
	if n.Type != cluster.Storage {
		return SetResponse{}, notSupported(req.Unit, "setting state is only supported for storage nodes")
	}
	if !cl.Registry.HasConfiguredNode(n.Index) {
		return SetResponse{}, missingUnit(req.Unit, "no such node")
	}

	if len(req.States) == 0 {
		return SetResponse{}, invalidContent("set state request must contain a state")
	}
	var want UnitState
	for typ, us := range req.States {
		if typ != UserState {
			return SetResponse{}, invalidContent("only the %s state can be set, not %q", UserState, typ)
		}
		want = us
	}

	res, err := cl.Registry.EvaluateAndApply(req.Condition, n, want.State, want.Reason, nil)
	if errors.Is(err, coordinator.ErrNodeNotFound) {
		return SetResponse{}, missingUnit(req.Unit, "no such node")
	}
	if err != nil {
		return SetResponse{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDecision(cl.Registry.Name(), req.Condition, res.Outcome.String())
	}
	s.log.WithFields(logrus.Fields{
		"cluster":   cl.Registry.Name(),
		"node":      n.String(),
		"state":     want.State.String(),
		"condition": req.Condition.String(),
		"outcome":   res.Outcome.String(),
		"version":   res.Version,
	}).Debug("processed set state request")

	if req.Condition == cluster.Safe && req.ResponseWait == cluster.WaitUntilClusterAcked && res.Pending() {
		if err := s.waitConverged(ctx, cl.Registry, res.Version, req.Timeout); err != nil {
			return SetResponse{}, err
		}
	}
	return setResponse(res.Decision), nil
}

func (s *Service) waitConverged(ctx context.Context, reg *coordinator.Registry, version uint64, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.timeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := reg.WaitConverged(wctx, version)
	if errors.Is(err, context.DeadlineExceeded) {
		return deadlineExceeded("timed out after %s waiting for cluster %s to acknowledge cluster state version %d", timeout, reg.Name(), version)
	}
	return err
}

func setResponse(d safety.Decision) SetResponse {
	switch d.Outcome {
	case safety.Allow:
		return SetResponse{WasModified: true, Reason: safety.ReasonAllowed}
	case safety.AlreadySet:
		return SetResponse{WasModified: false, Reason: safety.ReasonAlreadySet}
	default:
		return SetResponse{WasModified: false, Reason: d.Reason}
	}
}
