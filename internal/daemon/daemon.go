// Package daemon assembles the registry from configuration: store, event
// bus, services, HTTP server and the shutdown sequence that tears them down.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/ans/api"
	"github.com/vinayprograms/ans/attestation"
	"github.com/vinayprograms/ans/bus"
	"github.com/vinayprograms/ans/config"
	"github.com/vinayprograms/ans/discovery"
	"github.com/vinayprograms/ans/logging"
	"github.com/vinayprograms/ans/ratelimit"
	"github.com/vinayprograms/ans/registration"
	"github.com/vinayprograms/ans/registry"
	"github.com/vinayprograms/ans/resolver"
	"github.com/vinayprograms/ans/shutdown"
	"github.com/vinayprograms/ans/stream"
	"github.com/vinayprograms/ans/telemetry"
)

// phaseConnections closes what the storage phase still depends on.
const phaseConnections = shutdown.PhaseStorage + 5

// Daemon is a fully wired registry.
type Daemon struct {
	cfg *config.Config
	log *logging.Logger

	provider *telemetry.Provider
	conn     *nats.Conn
	store    registry.Store
	broker   *bus.Broker
	emitter  *bus.Emitter
	events   *stream.Handler
	api      *api.Server
	server   *http.Server

	coord *shutdown.Coordinator
}

// New builds every component named by cfg. Components already opened are
// closed again when a later one fails.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Daemon, error) {
	if log == nil {
		log = logging.Nop()
	}
	d := &Daemon{
		cfg: cfg,
		log: log.WithComponent("daemon"),
		coord: shutdown.NewCoordinator(shutdown.Config{
			Timeout:         cfg.Server.ShutdownTimeout.Duration,
			ContinueOnError: true,
			Logger:          log,
		}),
	}
	if err := d.init(ctx); err != nil {
		d.coord.ShutdownWithTimeout(0)
		return nil, err
	}
	return d, nil
}

func (d *Daemon) init(ctx context.Context) error {
	if err := d.initTelemetry(ctx); err != nil {
		return err
	}
	if d.cfg.UsesNATS() {
		conn, err := bus.Connect(d.natsConfig())
		if err != nil {
			return err
		}
		d.conn = conn
		d.coord.Register("nats", phaseConnections, shutdown.CloserFunc(conn.Drain))
	}
	if err := d.initStore(ctx); err != nil {
		return err
	}
	if err := d.initEvents(ctx); err != nil {
		return err
	}
	d.initAPI()
	return nil
}

func (d *Daemon) initTelemetry(ctx context.Context) error {
	tc := d.cfg.Telemetry
	if !tc.Enabled {
		return nil
	}
	provider, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName: telemetry.DefaultServiceName,
		Endpoint:    tc.Endpoint,
		Protocol:    tc.Protocol,
		Insecure:    tc.Insecure,
		Debug:       tc.Debug,
		SampleRatio: tc.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	d.provider = provider
	d.coord.RegisterFunc("telemetry", phaseConnections, provider.Shutdown)
	return nil
}

func (d *Daemon) natsConfig() bus.NATSConfig {
	nc := bus.DefaultNATSConfig()
	nc.URL = d.cfg.NATS.URL
	if d.cfg.NATS.Name != "" {
		nc.Name = d.cfg.NATS.Name
	}
	nc.Token = d.cfg.NATS.Token
	nc.User = d.cfg.NATS.User
	nc.Password = d.cfg.NATS.Password
	return nc
}

func (d *Daemon) initStore(ctx context.Context) error {
	sc := d.cfg.Store
	var store registry.Store
	switch sc.Backend {
	case config.BackendBadger:
		s, err := registry.NewBadgerStore(registry.BadgerConfig{
			Dir:        sc.DataDir,
			GCInterval: 10 * time.Minute,
		})
		if err != nil {
			return err
		}
		store = s
	case config.BackendNATS:
		nc := registry.DefaultNATSStoreConfig()
		if sc.Bucket != "" {
			nc.Bucket = sc.Bucket
		}
		s, err := registry.NewNATSStore(ctx, d.conn, nc)
		if err != nil {
			return err
		}
		store = s
	default:
		store = registry.NewMemoryStore()
	}

	if sc.Indexed {
		indexed, err := registry.NewIndexedStore(ctx, store)
		if err != nil {
			store.Close()
			return err
		}
		store = indexed
	}
	d.store = store
	d.coord.Register("store", shutdown.PhaseStorage, shutdown.CloserFunc(store.Close))
	d.log.Info("store_ready", map[string]interface{}{
		"backend": sc.Backend,
		"indexed": sc.Indexed,
	})
	return nil
}

func (d *Daemon) initEvents(ctx context.Context) error {
	ec := d.cfg.Events

	var mb bus.MessageBus
	if d.cfg.EventBus() == config.BusNATS {
		mb = bus.NewNATSBusFromConn(d.conn, d.natsConfig())
	} else {
		mb = bus.NewMemoryBus(bus.DefaultConfig())
	}
	d.broker = bus.NewBroker(mb, ec.Subject)
	d.coord.Register("bus", shutdown.PhaseStorage, shutdown.CloserFunc(d.broker.Close))

	d.emitter = bus.NewEmitter(d.broker, bus.EmitterConfig{
		QueueSize:      ec.QueueSize,
		PublishTimeout: ec.PublishTimeout.Duration,
	}, d.log)
	d.coord.RegisterFunc("emitter", shutdown.PhaseEvents, d.emitter.Close)

	streamCfg := stream.DefaultConfig()
	streamCfg.HeartbeatInterval = ec.Heartbeat.Duration
	d.events = stream.NewHandler(d.broker, streamCfg, stream.WithLogger(d.log))
	d.coord.Register("streams", shutdown.PhaseStreams, shutdown.CloserFunc(d.events.Close))

	return d.startAudit(ctx)
}

// startAudit copies every event on the subject to the audit exporter.
func (d *Daemon) startAudit(ctx context.Context) error {
	ec := d.cfg.Events
	if ec.AuditProtocol == "" || ec.AuditProtocol == "noop" {
		return nil
	}
	exp, err := telemetry.NewExporter(ec.AuditProtocol, ec.AuditEndpoint)
	if err != nil {
		return err
	}
	events, err := d.broker.Subscribe()
	if err != nil {
		exp.Close()
		return err
	}

	auditCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	go func() {
		done <- telemetry.ExportEvents(auditCtx, events.Events(), exp)
	}()

	d.coord.RegisterFunc("audit", shutdown.PhaseEvents, func(ctx context.Context) error {
		events.Close()
		var err error
		select {
		case err = <-done:
		case <-ctx.Done():
			cancel()
			err = <-done
		}
		cancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return errors.Join(err, exp.Close())
	})
	return nil
}

func (d *Daemon) initAPI() {
	regCfg := registration.Config{
		EstimatedVerificationTime: d.cfg.Registration.EstimatedVerificationTime,
	}
	lookupCfg := discovery.Config{
		DefaultLimit:    d.cfg.Lookup.DefaultLimit,
		MaxLimit:        d.cfg.Lookup.MaxLimit,
		OverfetchFactor: d.cfg.Lookup.OverfetchFactor,
		MaxStoreCalls:   d.cfg.Lookup.MaxStoreCalls,
	}

	svc := api.Services{
		Registration: registration.NewService(d.store, d.emitter, regCfg, registration.WithLogger(d.log)),
		Discovery:    discovery.NewEngine(d.store, lookupCfg, discovery.WithLogger(d.log)),
		Resolver:     resolver.New(d.store, resolver.WithLogger(d.log)),
		Attestation:  attestation.NewService(d.store, attestation.WithLogger(d.log)),
		Events:       d.events,
	}
	apiCfg := api.DefaultConfig()
	if d.cfg.Server.MaxBodyBytes > 0 {
		apiCfg.MaxBodyBytes = d.cfg.Server.MaxBodyBytes
	}
	if rl := d.cfg.RateLimit; rl.Capacity > 0 {
		apiCfg.Limiter = ratelimit.New(ratelimit.Config{
			Capacity: rl.Capacity,
			Window:   rl.Window.Duration,
		})
		d.coord.Register("ratelimit", shutdown.PhaseStorage, shutdown.CloserFunc(apiCfg.Limiter.Close))
	}
	d.api = api.NewServer(svc, apiCfg, d.log)
}

// Handler returns the HTTP handler of the registry API.
func (d *Daemon) Handler() http.Handler {
	return d.api.Handler()
}

// Store returns the agent store.
func (d *Daemon) Store() registry.Store {
	return d.store
}

// Serve accepts connections on ln until ctx is done, then runs the shutdown
// sequence. It returns the listener error, if any, joined with the
// shutdown error.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	d.server = &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: d.cfg.Server.ReadHeaderTimeout.Duration,
	}
	// SSE responses never go idle on their own; end them as soon as the
	// server starts draining.
	d.server.RegisterOnShutdown(func() { d.events.Close() })
	if err := d.coord.RegisterFunc("http", shutdown.PhaseHTTP, d.server.Shutdown); err != nil {
		ln.Close()
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- d.server.Serve(ln)
	}()
	d.log.Info("listening", map[string]interface{}{"addr": ln.Addr().String()})

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}
	return errors.Join(err, d.Shutdown(context.Background()))
}

// ListenAndServe listens on the configured address and calls Serve.
func (d *Daemon) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Server.Addr)
	if err != nil {
		d.Shutdown(context.Background())
		return err
	}
	return d.Serve(ctx, ln)
}

// Shutdown stops every component in phase order, bounded by the
// configured shutdown timeout.
func (d *Daemon) Shutdown(ctx context.Context) error {
	timeout := d.cfg.Server.ShutdownTimeout.Duration
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := d.coord.Shutdown(ctx)
	if res := d.coord.Result(); res != nil {
		d.log.Info("stopped", map[string]interface{}{
			"duration_ms": res.TotalDuration.Milliseconds(),
			"failed":      len(res.FailedHandlers()),
		})
	}
	return err
}
