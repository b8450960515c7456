package funcbundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/GoCodeAlone/blobrepo/deployment"
	"github.com/GoCodeAlone/blobrepo/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeHandle struct{ app string }

func (h fakeHandle) App() string { return h.app }

// fakeService scripts the deploy collaborator. polls is consumed one
// entry per Poll call; the last entry repeats.
type fakeService struct {
	beginErr  error
	deployErr error
	pollErr   error
	polls     []PollResult
	pollCount int

	begun    int
	deployed int
	released int
}

func (f *fakeService) Begin(_ context.Context, spec Spec, _ Artifact) (Handle, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.begun++
	return fakeHandle{app: spec.AppName}, nil
}

func (f *fakeService) Deploy(_ context.Context, _ Handle, _ deployment.Parameters) error {
	f.deployed++
	return f.deployErr
}

func (f *fakeService) Poll(_ context.Context, _ Handle) (PollResult, error) {
	if f.pollErr != nil {
		return PollResult{}, f.pollErr
	}
	i := f.pollCount
	if i >= len(f.polls) {
		i = len(f.polls) - 1
	}
	f.pollCount++
	if i < 0 {
		return PollResult{}, nil
	}
	return f.polls[i], nil
}

func (f *fakeService) Release(_ context.Context, _ Handle) error {
	f.released++
	return nil
}

func testSpec(t *testing.T) Spec {
	dir := writeBundleDir(t, validManifest, map[string]string{
		"function_app.py": "def main(event): pass\n",
		"host.json":       "{}\n",
	})
	return Spec{
		AppName:          "funcapp1",
		ResourceGroup:    "repo1",
		StorageAccount:   "repo1store",
		ContentContainer: "python",
		Parameters:       deployment.Parameters{"repo_type": "distribution"},
		SourceDir:        dir,
	}
}

func fastWait() WaitConfig {
	return WaitConfig{Timeout: 50 * time.Millisecond, Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func eventTrigger() PollResult {
	return PollResult{
		Functions: 1,
		Triggers:  []TriggerMetadata{{Function: "rpmrepo", Name: "event", Kind: EventGridTriggerKind}},
	}
}

func TestWithBundleSuccessReleasesOnce(t *testing.T) {
	svc := &fakeService{polls: []PollResult{eventTrigger()}}
	err := WithBundle(context.Background(), svc, testSpec(t), fastWait(), testLogger(), func(s *Session) error {
		if err := s.Deploy(context.Background()); err != nil {
			return err
		}
		trig, err := s.WaitForEventTrigger(context.Background())
		if err != nil {
			return err
		}
		if trig.Kind != EventGridTriggerKind {
			t.Errorf("unexpected trigger kind %q", trig.Kind)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with bundle: %v", err)
	}
	if svc.begun != 1 || svc.deployed != 1 {
		t.Errorf("expected one begin and one deploy, got %d/%d", svc.begun, svc.deployed)
	}
	if svc.released != 1 {
		t.Errorf("session must be released exactly once, got %d", svc.released)
	}
}

func TestWithBundleReleasesOnBodyError(t *testing.T) {
	svc := &fakeService{}
	bodyErr := errors.New("wait failed")
	err := WithBundle(context.Background(), svc, testSpec(t), fastWait(), testLogger(), func(*Session) error {
		return bodyErr
	})
	if !errors.Is(err, bodyErr) {
		t.Fatalf("expected body error, got %v", err)
	}
	if svc.released != 1 {
		t.Errorf("session must be released exactly once, got %d", svc.released)
	}
}

func TestWithBundleReleasesOnPanic(t *testing.T) {
	svc := &fakeService{}
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = WithBundle(context.Background(), svc, testSpec(t), fastWait(), testLogger(), func(*Session) error {
			panic("boom")
		})
	}()
	if svc.released != 1 {
		t.Errorf("session must be released exactly once, got %d", svc.released)
	}
}

func TestWithBundleReleasesOnCancelledContext(t *testing.T) {
	svc := &fakeService{}
	ctx, cancel := context.WithCancel(context.Background())
	err := WithBundle(ctx, svc, testSpec(t), fastWait(), testLogger(), func(s *Session) error {
		cancel()
		_, werr := s.WaitForEventTrigger(ctx)
		return werr
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if svc.released != 1 {
		t.Errorf("session must be released even under cancellation, got %d releases", svc.released)
	}
}

func TestWithBundleBeginFailureDoesNotRelease(t *testing.T) {
	svc := &fakeService{beginErr: fmt.Errorf("upload refused")}
	ran := false
	err := WithBundle(context.Background(), svc, testSpec(t), fastWait(), testLogger(), func(*Session) error {
		ran = true
		return nil
	})
	var bde *pipeline.BundleDeployError
	if !errors.As(err, &bde) {
		t.Fatalf("expected BundleDeployError, got %v", err)
	}
	if ran {
		t.Error("body must not run when acquisition fails")
	}
	if svc.released != 0 {
		t.Errorf("nothing to release when Begin fails, got %d releases", svc.released)
	}
}

func TestWithBundlePackagingFailure(t *testing.T) {
	svc := &fakeService{}
	spec := testSpec(t)
	spec.SourceDir = t.TempDir() // no bundle.yaml
	err := WithBundle(context.Background(), svc, spec, fastWait(), testLogger(), func(*Session) error {
		return nil
	})
	var bde *pipeline.BundleDeployError
	if !errors.As(err, &bde) {
		t.Fatalf("expected BundleDeployError, got %v", err)
	}
	if svc.begun != 0 {
		t.Error("no session should open when packaging fails")
	}
}

func TestWaitForEventTriggerEventualSuccess(t *testing.T) {
	svc := &fakeService{polls: []PollResult{
		{}, // app not indexed yet
		{}, // still nothing
		eventTrigger(),
	}}
	err := WithBundle(context.Background(), svc, testSpec(t), fastWait(), testLogger(), func(s *Session) error {
		trig, err := s.WaitForEventTrigger(context.Background())
		if err != nil {
			return err
		}
		if trig.Function != "rpmrepo" || trig.Name != "event" {
			t.Errorf("unexpected trigger metadata %+v", trig)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if svc.pollCount != 3 {
		t.Errorf("expected 3 polls, got %d", svc.pollCount)
	}
}

func TestWaitForEventTriggerTimeout(t *testing.T) {
	svc := &fakeService{polls: []PollResult{{}}}
	err := WithBundle(context.Background(), svc, testSpec(t), fastWait(), testLogger(), func(s *Session) error {
		_, werr := s.WaitForEventTrigger(context.Background())
		return werr
	})
	var tte *pipeline.TriggerTimeoutError
	if !errors.As(err, &tte) {
		t.Fatalf("expected TriggerTimeoutError, got %v", err)
	}
	if tte.App != "funcapp1" {
		t.Errorf("error should name the app, got %q", tte.App)
	}
	if svc.released != 1 {
		t.Errorf("session must be released after timeout, got %d releases", svc.released)
	}
}

func TestWaitForEventTriggerNotFound(t *testing.T) {
	// Functions are visible but none declares a trigger binding:
	// waiting longer cannot help.
	svc := &fakeService{polls: []PollResult{{Functions: 2}}}
	err := WithBundle(context.Background(), svc, testSpec(t), fastWait(), testLogger(), func(s *Session) error {
		_, werr := s.WaitForEventTrigger(context.Background())
		return werr
	})
	var tnf *pipeline.TriggerNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("expected TriggerNotFoundError, got %v", err)
	}
	if svc.pollCount != 1 {
		t.Errorf("no-trigger verdict should be immediate, got %d polls", svc.pollCount)
	}
}

func TestDeployFailureWrapped(t *testing.T) {
	svc := &fakeService{deployErr: fmt.Errorf("bad parameters")}
	err := WithBundle(context.Background(), svc, testSpec(t), fastWait(), testLogger(), func(s *Session) error {
		return s.Deploy(context.Background())
	})
	var bde *pipeline.BundleDeployError
	if !errors.As(err, &bde) {
		t.Fatalf("expected BundleDeployError, got %v", err)
	}
	if svc.released != 1 {
		t.Errorf("session must be released after deploy failure, got %d releases", svc.released)
	}
}
