package funcbundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/GoCodeAlone/blobrepo/deployment"
	"github.com/GoCodeAlone/blobrepo/pipeline"
)

// Spec describes the function bundle to provision.
type Spec struct {
	AppName        string
	ResourceGroup  string
	StorageAccount string
	// ContentContainer is the blob container the packaged artifact is
	// uploaded to before the app is pointed at it.
	ContentContainer string
	Parameters       deployment.Parameters
	// SourceDir holds bundle.yaml and the files it includes.
	SourceDir string
}

// TriggerMetadata identifies an event trigger registered by a deployed
// function.
type TriggerMetadata struct {
	Function string
	Name     string
	Kind     string
}

// EventGridTriggerKind is the binding type the wait barrier looks for.
const EventGridTriggerKind = "eventGridTrigger"

// PollResult is one observation of the deployed app's management plane.
type PollResult struct {
	// Functions is the number of function definitions the app reports.
	// Zero usually means the app has not finished indexing the package.
	Functions int
	Triggers  []TriggerMetadata
}

// Handle identifies one provisioning session held with the deploy
// service.
type Handle interface {
	App() string
}

// Service is the compute-bundle deploy collaborator.
type Service interface {
	// Begin uploads the packaged artifact and opens a provisioning
	// session for the app.
	Begin(ctx context.Context, spec Spec, art Artifact) (Handle, error)

	// Deploy points the app at the uploaded artifact and applies the
	// bundle parameters, blocking until the deployment is accepted.
	Deploy(ctx context.Context, h Handle, params deployment.Parameters) error

	// Poll reports the app's current function and trigger definitions.
	Poll(ctx context.Context, h Handle) (PollResult, error)

	// Release finalizes the session. Called exactly once per Begin.
	Release(ctx context.Context, h Handle) error
}

// WaitConfig bounds the trigger wait.
type WaitConfig struct {
	Timeout     time.Duration
	Interval    time.Duration
	MaxInterval time.Duration
}

// DefaultWait is used when the caller leaves WaitConfig fields zero.
var DefaultWait = WaitConfig{
	Timeout:     5 * time.Minute,
	Interval:    2 * time.Second,
	MaxInterval: 15 * time.Second,
}

func (w WaitConfig) withDefaults() WaitConfig {
	if w.Timeout <= 0 {
		w.Timeout = DefaultWait.Timeout
	}
	if w.Interval <= 0 {
		w.Interval = DefaultWait.Interval
	}
	if w.MaxInterval < w.Interval {
		w.MaxInterval = DefaultWait.MaxInterval
	}
	return w
}

// Session is a live bundle provisioning session. It is only valid
// inside the body passed to WithBundle.
type Session struct {
	spec   Spec
	svc    Service
	handle Handle
	wait   WaitConfig
	logger *slog.Logger
}

// WithBundle packages the bundle, opens a provisioning session, runs
// body with it, and releases the session on every exit path: body
// success, body error, panic, and context cancellation. The packaged
// artifact is removed together with the session.
func WithBundle(ctx context.Context, svc Service, spec Spec, wait WaitConfig, logger *slog.Logger, body func(*Session) error) (err error) {
	if logger == nil {
		logger = slog.Default()
	}

	manifest, err := LoadManifest(spec.SourceDir)
	if err != nil {
		return &pipeline.BundleDeployError{App: spec.AppName, Err: err}
	}
	art, err := packageBundle(spec.SourceDir, manifest)
	if err != nil {
		return &pipeline.BundleDeployError{App: spec.AppName, Err: err}
	}
	logger.Info("bundle packaged",
		"app", spec.AppName,
		"artifact", art.Path,
		"sha256", art.SHA256,
		"size", art.Size,
	)

	handle, err := svc.Begin(ctx, spec, art)
	if err != nil {
		_ = os.Remove(art.Path)
		return &pipeline.BundleDeployError{App: spec.AppName, Err: err}
	}

	s := &Session{
		spec:   spec,
		svc:    svc,
		handle: handle,
		wait:   wait.withDefaults(),
		logger: logger,
	}

	// Release must run even when ctx is already cancelled, so the
	// finalizer gets a detached context.
	defer func() {
		_ = os.Remove(art.Path)
		rctx := context.WithoutCancel(ctx)
		if rerr := svc.Release(rctx, handle); rerr != nil {
			if err == nil {
				err = &pipeline.BundleDeployError{App: spec.AppName, Err: fmt.Errorf("release session: %w", rerr)}
			} else {
				logger.Error("session release failed", "app", spec.AppName, "error", rerr)
			}
		}
	}()

	return body(s)
}

// Deploy triggers the bundle's infrastructure deployment with the
// spec's parameters.
func (s *Session) Deploy(ctx context.Context) error {
	s.logger.Info("deploying function bundle",
		"app", s.spec.AppName,
		"resource_group", s.spec.ResourceGroup,
		"storage_account", s.spec.StorageAccount,
	)
	if err := s.svc.Deploy(ctx, s.handle, s.spec.Parameters); err != nil {
		return &pipeline.BundleDeployError{App: s.spec.AppName, Err: err}
	}
	return nil
}

// WaitForEventTrigger polls the app's management plane until it reports
// an event grid trigger, the app settles with function definitions but
// no trigger (TriggerNotFoundError), or the wait bound elapses
// (TriggerTimeoutError). The poll interval grows toward MaxInterval so
// a slow app is not hammered.
func (s *Session) WaitForEventTrigger(ctx context.Context) (TriggerMetadata, error) {
	deadline := time.Now().Add(s.wait.Timeout)
	interval := s.wait.Interval

	for {
		result, err := s.svc.Poll(ctx, s.handle)
		if err != nil {
			return TriggerMetadata{}, &pipeline.BundleDeployError{App: s.spec.AppName, Err: fmt.Errorf("poll triggers: %w", err)}
		}

		for _, trig := range result.Triggers {
			if trig.Kind == EventGridTriggerKind {
				s.logger.Info("event trigger observed",
					"app", s.spec.AppName,
					"function", trig.Function,
					"trigger", trig.Name,
				)
				return trig, nil
			}
		}

		// Function definitions are visible but none carries a trigger
		// binding: the bundle itself has no trigger, so waiting longer
		// cannot succeed.
		if result.Functions > 0 && len(result.Triggers) == 0 {
			return TriggerMetadata{}, &pipeline.TriggerNotFoundError{App: s.spec.AppName}
		}

		if time.Now().After(deadline) {
			return TriggerMetadata{}, &pipeline.TriggerTimeoutError{App: s.spec.AppName, Waited: s.wait.Timeout}
		}

		s.logger.Debug("event trigger not registered yet",
			"app", s.spec.AppName,
			"functions", result.Functions,
			"next_poll", interval,
		)
		select {
		case <-ctx.Done():
			return TriggerMetadata{}, ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*3/2, s.wait.MaxInterval)
	}
}
