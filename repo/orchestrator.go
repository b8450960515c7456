package repo

import (
	"context"
	"log/slog"
	"time"

	"github.com/GoCodeAlone/blobrepo/deployment"
	"github.com/GoCodeAlone/blobrepo/funcbundle"
	"github.com/GoCodeAlone/blobrepo/pipeline"
)

// ContainerService creates the resource group that scopes everything
// else the pipeline provisions.
type ContainerService interface {
	Create(ctx context.Context, name, location string) error
}

// EventRoutingSuffix is appended to the resource group name to form the
// event-routing deployment's stable name.
const EventRoutingSuffix = "_eg"

// Orchestrator runs the four provisioning stages in fixed order,
// threading each stage's outputs into the parameters of the next.
type Orchestrator struct {
	Groups    ContainerService
	Deployer  deployment.Deployer
	Bundles   funcbundle.Service
	Presenter Presenter

	// InitialTemplate provisions storage, containers, and the function
	// app shell. EventRoutingTemplate wires blob events to the app's
	// trigger and can only run once the trigger exists.
	InitialTemplate      string
	EventRoutingTemplate string

	// BundleDir holds the function bundle source and its manifest.
	BundleDir string

	TriggerWait funcbundle.WaitConfig
	Logger      *slog.Logger
}

// Run validates the request and executes the pipeline: resource group,
// initial deployment, function bundle (with the trigger barrier), event
// routing, then the advisory. Any stage failure halts the run;
// re-running is safe because every deployment name is stable.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := req.Validate(); err != nil {
		return err
	}
	suffix, err := ResolveSuffix(req.Suffix)
	if err != nil {
		return err
	}

	common := deployment.Parameters{"suffix": suffix}

	// Outputs of the initial deployment, threaded into later stages.
	var (
		baseURL          string
		functionAppName  string
		packageContainer string
		pythonContainer  string
		storageAccount   string
	)

	runner := pipeline.NewRunner(logger,
		pipeline.Func("resource-group", func(ctx context.Context) error {
			if err := o.Groups.Create(ctx, req.ResourceGroup, req.Location); err != nil {
				return &pipeline.ContainerCreationError{Name: req.ResourceGroup, Err: err}
			}
			return nil
		}),

		pipeline.Func("initial-deployment", func(ctx context.Context) error {
			params := deployment.Parameters{
				"use_shared_keys":  false,
				"repo_type":        string(req.RepoType),
				"upload_directory": req.UploadDirectory,
			}.Merge(common)

			outputs, err := deployment.Submit(ctx, o.Deployer, deployment.Descriptor{
				Name:          req.ResourceGroup,
				ResourceGroup: req.ResourceGroup,
				Template:      o.InitialTemplate,
				Parameters:    params,
				Description:   "initial resources",
			}, logger)
			if err != nil {
				return err
			}

			for _, bind := range []struct {
				key string
				dst *string
			}{
				{"base_url", &baseURL},
				{"function_app_name", &functionAppName},
				{"package_container", &packageContainer},
				{"python_container", &pythonContainer},
				{"storage_account", &storageAccount},
			} {
				v, err := outputs.String(bind.key)
				if err != nil {
					return err
				}
				*bind.dst = v
			}
			return nil
		}),

		pipeline.Func("function-bundle", func(ctx context.Context) error {
			params := deployment.Parameters{
				"repo_type":        string(req.RepoType),
				"upload_directory": req.UploadDirectory,
			}.Merge(common)

			spec := funcbundle.Spec{
				AppName:          functionAppName,
				ResourceGroup:    req.ResourceGroup,
				StorageAccount:   storageAccount,
				ContentContainer: pythonContainer,
				Parameters:       params,
				SourceDir:        o.BundleDir,
			}
			return funcbundle.WithBundle(ctx, o.Bundles, spec, o.TriggerWait, logger, func(s *funcbundle.Session) error {
				if err := s.Deploy(ctx); err != nil {
					return err
				}
				_, err := s.WaitForEventTrigger(ctx)
				return err
			})
		}),

		pipeline.Func("event-routing", func(ctx context.Context) error {
			_, err := deployment.Submit(ctx, o.Deployer, deployment.Descriptor{
				Name:          req.ResourceGroup + EventRoutingSuffix,
				ResourceGroup: req.ResourceGroup,
				Template:      o.EventRoutingTemplate,
				Parameters:    common,
				Description:   "event trigger configuration",
			}, logger)
			return err
		}),

		pipeline.Func("advisory", func(context.Context) error {
			advice := Advice{
				UploadDirectory:  req.UploadDirectory,
				PackageContainer: packageContainer,
				StorageAccount:   storageAccount,
				FunctionApp:      functionAppName,
				BaseURL:          baseURL,
			}
			switch req.RepoType {
			case RepoDistribution, RepoFlat:
				return o.Presenter.Present(req.RepoType, advice)
			default:
				// Input validation already rejected anything else; this
				// guards the advisory selection if a new type is added
				// without one.
				return &pipeline.ConfigurationError{Reason: "unknown repository type " + string(req.RepoType)}
			}
		}),
	)

	start := time.Now()
	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("provisioning complete",
		"resource_group", req.ResourceGroup,
		"repo_type", req.RepoType,
		"elapsed", time.Since(start),
	)
	return nil
}
