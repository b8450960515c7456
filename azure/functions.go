package azure

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/GoCodeAlone/blobrepo/deployment"
	"github.com/GoCodeAlone/blobrepo/funcbundle"
)

// FunctionService provisions function app bundles: it uploads the
// packaged artifact to blob storage, points the app at it, and reports
// the app's registered triggers.
type FunctionService struct {
	web    *armappservice.WebAppsClient
	cred   azcore.TokenCredential
	logger *slog.Logger
}

var _ funcbundle.Service = (*FunctionService)(nil)

// NewFunctionService creates a FunctionService for the subscription.
func NewFunctionService(subscriptionID string, cred azcore.TokenCredential, logger *slog.Logger) (*FunctionService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	web, err := armappservice.NewWebAppsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("web apps client: %w", err)
	}
	return &FunctionService{web: web, cred: cred, logger: logger}, nil
}

type functionSession struct {
	spec       funcbundle.Spec
	packageURL string
}

func (s *functionSession) App() string { return s.spec.AppName }

// Begin uploads the packaged artifact to the spec's content container.
// The blob name embeds the artifact digest so distinct bundle contents
// never overwrite each other.
func (s *FunctionService) Begin(ctx context.Context, spec funcbundle.Spec, art funcbundle.Artifact) (funcbundle.Handle, error) {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", spec.StorageAccount)
	client, err := azblob.NewClient(serviceURL, s.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("blob client for %s: %w", spec.StorageAccount, err)
	}

	f, err := os.Open(art.Path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	blobName := fmt.Sprintf("%s-%s.zip", spec.AppName, art.SHA256[:12])
	s.logger.Info("uploading bundle artifact",
		"app", spec.AppName,
		"container", spec.ContentContainer,
		"blob", blobName,
		"size", art.Size,
	)
	if _, err := client.UploadFile(ctx, spec.ContentContainer, blobName, f, nil); err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}

	return &functionSession{
		spec:       spec,
		packageURL: fmt.Sprintf("%s/%s/%s", serviceURL, spec.ContentContainer, blobName),
	}, nil
}

// Deploy points the app at the uploaded package and applies the bundle
// parameters as app settings.
func (s *FunctionService) Deploy(ctx context.Context, h funcbundle.Handle, params deployment.Parameters) error {
	sess, ok := h.(*functionSession)
	if !ok {
		return fmt.Errorf("foreign session handle %T", h)
	}

	settings := map[string]*string{
		"WEBSITE_RUN_FROM_PACKAGE": &sess.packageURL,
	}
	for _, name := range params.Keys() {
		value := fmt.Sprint(params[name])
		settings[strings.ToUpper(name)] = &value
	}

	_, err := s.web.UpdateApplicationSettings(ctx, sess.spec.ResourceGroup, sess.spec.AppName,
		armappservice.StringDictionary{Properties: settings}, nil)
	if err != nil {
		return fmt.Errorf("update app settings: %w", err)
	}

	if _, err := s.web.Restart(ctx, sess.spec.ResourceGroup, sess.spec.AppName, nil); err != nil {
		return fmt.Errorf("restart app: %w", err)
	}
	return nil
}

// Poll lists the app's function definitions and extracts their trigger
// bindings.
func (s *FunctionService) Poll(ctx context.Context, h funcbundle.Handle) (funcbundle.PollResult, error) {
	sess, ok := h.(*functionSession)
	if !ok {
		return funcbundle.PollResult{}, fmt.Errorf("foreign session handle %T", h)
	}

	var result funcbundle.PollResult
	pager := s.web.NewListFunctionsPager(sess.spec.ResourceGroup, sess.spec.AppName, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return funcbundle.PollResult{}, fmt.Errorf("list functions: %w", err)
		}
		for _, fn := range page.Value {
			if fn == nil || fn.Properties == nil {
				continue
			}
			result.Functions++
			name := functionName(fn)
			for _, binding := range triggerBindings(fn.Properties.Config) {
				binding.Function = name
				result.Triggers = append(result.Triggers, binding)
			}
		}
	}
	return result, nil
}

// Release finalizes the session by asking the platform to re-index the
// app's triggers. Upload cleanup is not needed: the digest-named blob
// is the app's live package.
func (s *FunctionService) Release(ctx context.Context, h funcbundle.Handle) error {
	sess, ok := h.(*functionSession)
	if !ok {
		return fmt.Errorf("foreign session handle %T", h)
	}
	if _, err := s.web.SyncFunctionTriggers(ctx, sess.spec.ResourceGroup, sess.spec.AppName, nil); err != nil {
		return fmt.Errorf("sync triggers: %w", err)
	}
	return nil
}

// functionName strips the "app/" prefix the API uses in envelope names.
func functionName(fn *armappservice.FunctionEnvelope) string {
	if fn.Name == nil {
		return ""
	}
	if _, short, ok := strings.Cut(*fn.Name, "/"); ok {
		return short
	}
	return *fn.Name
}

// triggerBindings extracts trigger-direction bindings from a function's
// config document.
func triggerBindings(config any) []funcbundle.TriggerMetadata {
	doc, ok := config.(map[string]any)
	if !ok {
		return nil
	}
	rawBindings, ok := doc["bindings"].([]any)
	if !ok {
		return nil
	}

	var triggers []funcbundle.TriggerMetadata
	for _, raw := range rawBindings {
		binding, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := binding["type"].(string)
		if !strings.HasSuffix(kind, "Trigger") {
			continue
		}
		name, _ := binding["name"].(string)
		triggers = append(triggers, funcbundle.TriggerMetadata{Name: name, Kind: kind})
	}
	return triggers
}
