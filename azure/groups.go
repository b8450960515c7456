package azure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/GoCodeAlone/blobrepo/repo"
)

// GroupsClient creates resource groups.
type GroupsClient struct {
	client *armresources.ResourceGroupsClient
	logger *slog.Logger
}

var _ repo.ContainerService = (*GroupsClient)(nil)

// NewGroupsClient creates a GroupsClient for the subscription.
func NewGroupsClient(subscriptionID string, cred azcore.TokenCredential, logger *slog.Logger) (*GroupsClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := armresources.NewResourceGroupsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("resource groups client: %w", err)
	}
	return &GroupsClient{client: client, logger: logger}, nil
}

// Create creates or updates the named resource group. Create-or-update
// semantics keep re-runs of the pipeline safe.
func (c *GroupsClient) Create(ctx context.Context, name, location string) error {
	c.logger.Info("creating resource group", "name", name, "location", location)
	_, err := c.client.CreateOrUpdate(ctx, name, armresources.ResourceGroup{
		Location: to.Ptr(location),
	}, nil)
	if err != nil {
		return fmt.Errorf("create resource group: %w", err)
	}
	return nil
}
