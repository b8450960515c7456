package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/blobrepo/azure"
	"github.com/GoCodeAlone/blobrepo/funcbundle"
	"github.com/GoCodeAlone/blobrepo/repo"
)

type createOptions struct {
	request         repo.Request
	initialTemplate string
	routingTemplate string
	bundleDir       string
	triggerTimeout  time.Duration
	verbose         bool
}

// parseCreateFlags parses the create command line. Split out from
// runCreate so it is testable without Azure credentials.
func parseCreateFlags(args []string) (createOptions, error) {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	location := fs.String("location", "eastus", "Location to create resources in (see 'az account list-locations')")
	suffix := fs.String("suffix", "", "Unique suffix for resource names, 14 characters or fewer (default: random)")
	uploadDir := fs.String("upload-directory", "upload", "Path within the storage container to upload packages to")
	repoType := fs.String("repo-type", "distribution", "Repository type: flat or distribution")
	initialTemplate := fs.String("template", "rg.json", "Initial resources template")
	routingTemplate := fs.String("eventgrid-template", "rg_add_eventgrid.json", "Event routing template")
	bundleDir := fs.String("bundle-dir", "funcapp", "Directory holding the function bundle and its bundle.yaml")
	triggerTimeout := fs.Duration("trigger-timeout", funcbundle.DefaultWait.Timeout, "How long to wait for the event trigger to register")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: blobrepoctl create [options] <resource-group>\n\nProvision a blob-backed RPM repository.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return createOptions{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return createOptions{}, fmt.Errorf("exactly one resource-group argument is required")
	}

	repoKind, err := repo.ParseRepoType(*repoType)
	if err != nil {
		return createOptions{}, err
	}

	return createOptions{
		request: repo.Request{
			ResourceGroup:   fs.Arg(0),
			Location:        *location,
			Suffix:          *suffix,
			UploadDirectory: *uploadDir,
			RepoType:        repoKind,
		},
		initialTemplate: *initialTemplate,
		routingTemplate: *routingTemplate,
		bundleDir:       *bundleDir,
		triggerTimeout:  *triggerTimeout,
		verbose:         *verbose,
	}, nil
}

func runCreate(args []string) error {
	opts, err := parseCreateFlags(args)
	if err != nil {
		return err
	}
	if err := opts.request.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cred, err := azure.NewCredential()
	if err != nil {
		return err
	}
	subscriptionID, err := azure.SubscriptionID()
	if err != nil {
		return err
	}

	groups, err := azure.NewGroupsClient(subscriptionID, cred, logger)
	if err != nil {
		return err
	}
	deployer, err := azure.NewTemplateDeployer(subscriptionID, cred, logger)
	if err != nil {
		return err
	}
	functions, err := azure.NewFunctionService(subscriptionID, cred, logger)
	if err != nil {
		return err
	}

	orch := &repo.Orchestrator{
		Groups:               groups,
		Deployer:             deployer,
		Bundles:              functions,
		Presenter:            &repo.WriterPresenter{Out: os.Stdout},
		InitialTemplate:      opts.initialTemplate,
		EventRoutingTemplate: opts.routingTemplate,
		BundleDir:            opts.bundleDir,
		TriggerWait:          funcbundle.WaitConfig{Timeout: opts.triggerTimeout},
		Logger:               logger,
	}

	// An interrupt cancels the run; the bundle stage still releases its
	// session on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return orch.Run(ctx, opts.request)
}
