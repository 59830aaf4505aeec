// Package service wires the grid-core components (C1-C6) together with
// the ambient diagnostics, snapshot, telemetry and transport layers into
// one running processor.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/griddist/core/internal/diagnostics"
	"github.com/griddist/core/internal/handlers"
	"github.com/griddist/core/internal/iface"
	"github.com/griddist/core/internal/lowcomm"
	"github.com/griddist/core/internal/mesh"
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/internal/refine"
	"github.com/griddist/core/internal/snapshot"
	"github.com/griddist/core/internal/xfer"
	"github.com/griddist/core/pkg/config"
	"github.com/griddist/core/pkg/telemetry"
	"github.com/griddist/core/pkg/timeutil"
	"github.com/griddist/core/pkg/xlog"
)

// Service is the main application service: one simulated processor's
// object manager, multigrid, refine/transfer engines, low-comm
// transport and ambient observability, bound together per config.
type Service struct {
	config *config.Config
	logger xlog.Logger

	diagnostics *diagnostics.Store
	snapStore   snapshot.Storage
	census      *snapshot.CensusWriter

	objMgr    *objmgr.Manager
	multigrid *mesh.Multigrid
	ifBuilder *iface.Builder
	handlers  *handlers.Registry
	transport lowcomm.Transport
	layer     *lowcomm.Layer
	xferEng   *xfer.Engine
	refineEng *refine.Engine

	telemetryShutdown telemetry.ShutdownFunc

	running bool
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithTransport injects the low-comm transport a Service uses for
// XferEnd's connect/communicate rounds. Without one, Initialize
// defaults to an in-process loopback network sized to
// config.Runtime.NumProcs, suitable for tests and single-machine runs;
// a real multi-host deployment (cmd/gridctl serve) supplies a
// *lowcomm.GRPCTransport here instead.
func WithTransport(t lowcomm.Transport) Option {
	return func(s *Service) { s.transport = t }
}

// New creates a Service for the local processor described by
// cfg.Runtime. Call Initialize before Start.
func New(cfg *config.Config, logger xlog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = xlog.NewDefaultLogger(xlog.LevelInfo, nil)
	}

	s := &Service{config: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize wires every component: diagnostics store, snapshot
// storage, telemetry, the distributed object manager and multigrid,
// the low-comm transport, and the transfer/refine engines.
func (s *Service) Initialize(ctx context.Context) error {
	s.logger.Info("initializing service components...")

	if err := s.initDiagnostics(); err != nil {
		return fmt.Errorf("failed to initialize diagnostics: %w", err)
	}
	if err := s.initSnapshot(); err != nil {
		return fmt.Errorf("failed to initialize snapshot export: %w", err)
	}
	if err := s.initTelemetry(ctx); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if err := s.initCore(); err != nil {
		return fmt.Errorf("failed to initialize grid core: %w", err)
	}

	s.logger.Info("service components initialized successfully")
	return nil
}

func (s *Service) initDiagnostics() error {
	s.logger.Info("connecting to diagnostics store (%s)...", s.config.Diagnostics.Type)

	store, err := diagnostics.NewStore(&s.config.Diagnostics)
	if err != nil {
		return err
	}
	s.diagnostics = store
	s.logger.Info("diagnostics store connected")
	return nil
}

func (s *Service) initSnapshot() error {
	s.logger.Info("initializing snapshot export (%s)...", s.config.Snapshot.Type)

	store, err := snapshot.NewStorage(&s.config.Snapshot)
	if err != nil {
		return err
	}
	s.snapStore = store
	s.census = snapshot.NewCensusWriter(store, fmt.Sprintf("census/proc-%d", s.config.Runtime.Rank))
	s.logger.Info("snapshot export initialized")
	return nil
}

func (s *Service) initTelemetry(ctx context.Context) error {
	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		return err
	}
	s.telemetryShutdown = shutdown
	return nil
}

// initCore builds the distributed object manager, the multigrid, the
// per-type handler/descriptor registries, the transfer engine and the
// refinement engine, in that dependency order.
func (s *Service) initCore() error {
	rt := s.config.Runtime
	s.logger.Info("initializing grid core (proc %d of %d, dim %d)...", rt.Rank, rt.NumProcs, rt.Dim)

	s.objMgr = objmgr.New(rt.Rank,
		objmgr.WithLogger(s.logger),
		objmgr.WithFreelist(s.config.Xfer.CplMgrUseFreelist),
	)
	s.multigrid = mesh.NewMultigrid(rt.Dim, s.objMgr, mesh.WithLogger(s.logger))
	s.ifBuilder = iface.NewBuilder(s.objMgr)

	reg, err := buildHandlers(s.multigrid)
	if err != nil {
		return err
	}
	s.handlers = reg

	if s.transport == nil {
		s.transport = lowcomm.NewLoopbackNetwork(rt.NumProcs).Transport(rt.Rank)
	}
	s.layer = lowcomm.NewLayer(rt.Rank, s.transport)

	s.xferEng = xfer.NewEngine(s.objMgr, s.handlers, buildDescriptors(), s.layer, xfer.DefaultPriorityMerge, xfer.Options{
		Logger:           s.logger,
		PruneDelete:      s.config.Xfer.PruneDelete,
		WarnRefCollision: s.config.Xfer.WarnRefCollision,
		WarnVarSizeObj:   s.config.Xfer.WarnVarSizeObj,
		Interfaces:       s.ifBuilder,
		TypeOf:           typeOf,
		HeaderOf:         hdrOf,
	})

	s.refineEng = refine.NewEngine(s.multigrid, refine.Options{
		Logger:     s.logger,
		Interfaces: s.ifBuilder,
		TypeOf:     typeOf,
		Transfer:   s.xferEng,
	})

	s.logger.Info("grid core initialized")
	return nil
}

// AdaptStep runs one refine/coarsen pass at level, then closes the
// transfer bracket it opens, recording a diagnostics summary of both.
func (s *Service) AdaptStep(ctx context.Context, level int) (*refine.Stats, *xfer.Stats, error) {
	timer := timeutil.NewTimer("adapt-step", timeutil.WithLogger(s.logger))

	if err := s.xferEng.XferBegin(); err != nil {
		return nil, nil, fmt.Errorf("xfer begin: %w", err)
	}

	refinePhase := timer.Start("refine")
	refineStats, err := s.refineEng.AdaptStep(level)
	refinePhase.Stop()
	if err != nil {
		return nil, nil, fmt.Errorf("adapt step: %w", err)
	}

	xferPhase := timer.Start("xfer")
	xferStats, err := s.xferEng.XferEnd(ctx)
	xferDuration := xferPhase.Stop()
	if err != nil {
		return refineStats, nil, fmt.Errorf("xfer end: %w", err)
	}

	s.recordAdaptStep(ctx, level, refineStats)
	s.recordXferStep(ctx, xferStats, xferDuration)

	return refineStats, xferStats, nil
}

func (s *Service) recordAdaptStep(ctx context.Context, level int, stats *refine.Stats) {
	if s.diagnostics == nil || stats == nil {
		return
	}
	markCount, realCount, p0, p1, p2, ok := s.refineEng.Info().Last()
	summary := diagnostics.AdaptStepSummary{
		Proc:              s.config.Runtime.Rank,
		Level:             level,
		SonsCreated:       stats.SonsCreated,
		ElementsRefined:   stats.ElementsRefined,
		ElementsCoarsened: stats.ElementsCoarsened,
	}
	if ok {
		summary.MarkCount, summary.RealCount = markCount, realCount
		summary.PredictedNew = [3]int{p0, p1, p2}
	}
	if err := s.diagnostics.RecordAdaptStep(ctx, summary); err != nil {
		s.logger.Warn("failed to record adapt step", "error", err)
	}
}

func (s *Service) recordXferStep(ctx context.Context, stats *xfer.Stats, duration time.Duration) {
	if s.diagnostics == nil || stats == nil {
		return
	}
	summary := diagnostics.XferStepSummary{
		Proc:        s.config.Runtime.Rank,
		Sent:        stats.Sent,
		Received:    stats.Received,
		Deleted:     stats.Deleted,
		PrioChanged: stats.PrioChanged,
		Pruned:      stats.Pruned,
		Duration:    duration,
	}
	if err := s.diagnostics.RecordXferStep(ctx, summary); err != nil {
		s.logger.Warn("failed to record xfer step", "error", err)
	}
}

// TakeCensus builds and uploads a grid census snapshot through the
// configured snapshot store.
func (s *Service) TakeCensus(ctx context.Context, takenAt time.Time) error {
	c := BuildCensusFromService(s, takenAt)
	return s.census.Write(ctx, c)
}

// BuildCensusFromService is split out from TakeCensus so callers (and
// gridctl inspect) can build a Census without also uploading it.
func BuildCensusFromService(s *Service, takenAt time.Time) *snapshot.Census {
	return snapshot.BuildCensus(s.multigrid, takenAt)
}

// Multigrid returns the service's multigrid, for callers (gridctl
// commands) that need direct access to mark elements or inspect grids.
func (s *Service) Multigrid() *mesh.Multigrid { return s.multigrid }

// ObjManager returns the service's distributed object manager.
func (s *Service) ObjManager() *objmgr.Manager { return s.objMgr }

// RefineEngine returns the service's refinement engine.
func (s *Service) RefineEngine() *refine.Engine { return s.refineEng }

// TransferEngine returns the service's transfer engine.
func (s *Service) TransferEngine() *xfer.Engine { return s.xferEng }

// Diagnostics returns the service's diagnostics recorder, for gridctl
// inspect to read recent step summaries back.
func (s *Service) Diagnostics() *diagnostics.Store { return s.diagnostics }

// Start marks the service as running. The actual transport listener
// (for a gRPC-backed service) is started by the caller (cmd/gridctl
// serve) before Start is called, since only it knows the listen
// address; Start's job is limited to the service's own lifecycle flag.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting service...")
	s.running = true
	s.logger.Info("service started successfully")
	return nil
}

// Stop cleans up the transport, then shuts down telemetry, then closes
// the diagnostics store, in that order. An error from either of the
// last two steps is logged, not returned, and does not stop the rest.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("stopping service...")

	if s.transport != nil {
		s.transport.Cleanup()
	}

	if s.telemetryShutdown != nil {
		if err := s.telemetryShutdown(ctx); err != nil {
			s.logger.Error("failed to shut down telemetry: %v", err)
		}
	}

	if s.diagnostics != nil {
		if err := s.diagnostics.Close(); err != nil {
			s.logger.Error("failed to close diagnostics store: %v", err)
		}
	}

	s.running = false
	s.logger.Info("service stopped")
	return nil
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running
}

// Stats holds service-level statistics.
type Stats struct {
	Running bool `json:"running"`
	Rank    int  `json:"rank"`
}

// Stats returns service statistics.
func (s *Service) Stats() Stats {
	return Stats{Running: s.running, Rank: s.config.Runtime.Rank}
}

// HealthCheck verifies the diagnostics store connection is alive.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.diagnostics != nil {
		if err := s.diagnostics.HealthCheck(ctx); err != nil {
			return fmt.Errorf("diagnostics health check failed: %w", err)
		}
	}
	return nil
}
