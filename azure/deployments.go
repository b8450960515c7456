package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/GoCodeAlone/blobrepo/deployment"
)

// TemplateDeployer runs ARM template deployments in incremental mode,
// blocking until the deployment reaches a terminal state.
type TemplateDeployer struct {
	client *armresources.DeploymentsClient
	logger *slog.Logger
}

var _ deployment.Deployer = (*TemplateDeployer)(nil)

// NewTemplateDeployer creates a TemplateDeployer for the subscription.
func NewTemplateDeployer(subscriptionID string, cred azcore.TokenCredential, logger *slog.Logger) (*TemplateDeployer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := armresources.NewDeploymentsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("deployments client: %w", err)
	}
	return &TemplateDeployer{client: client, logger: logger}, nil
}

// Deploy submits a create-or-update deployment named d.Name in
// d.ResourceGroup and polls it to completion, returning the declared
// output values.
func (t *TemplateDeployer) Deploy(ctx context.Context, d deployment.Descriptor) (map[string]any, error) {
	data, err := os.ReadFile(d.Template)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", d.Template, err)
	}
	var template map[string]any
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", d.Template, err)
	}

	// ARM wants each parameter wrapped in a value envelope.
	params := make(map[string]any, len(d.Parameters))
	for name, value := range d.Parameters {
		params[name] = map[string]any{"value": value}
	}

	poller, err := t.client.BeginCreateOrUpdate(ctx, d.ResourceGroup, d.Name, armresources.Deployment{
		Properties: &armresources.DeploymentProperties{
			Mode:       to.Ptr(armresources.DeploymentModeIncremental),
			Template:   template,
			Parameters: params,
		},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("submit deployment: %w", err)
	}

	t.logger.Info("waiting for deployment", "deployment", d.Name, "resource_group", d.ResourceGroup)
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("deployment did not complete: %w", err)
	}

	return flattenOutputs(resp.Properties), nil
}

// flattenOutputs unwraps ARM's {"name": {"type": ..., "value": ...}}
// output envelopes into a plain name-to-value map.
func flattenOutputs(props *armresources.DeploymentPropertiesExtended) map[string]any {
	values := make(map[string]any)
	if props == nil || props.Outputs == nil {
		return values
	}
	raw, ok := props.Outputs.(map[string]any)
	if !ok {
		return values
	}
	for name, envelope := range raw {
		entry, ok := envelope.(map[string]any)
		if !ok {
			continue
		}
		values[name] = entry["value"]
	}
	return values
}
