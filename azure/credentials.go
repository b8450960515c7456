// Package azure implements the pipeline's collaborators against the
// Azure SDK: resource groups, ARM template deployments, and the
// function app surface the bundle stage drives.
package azure

import (
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// NewCredential resolves a token credential. A service principal in the
// environment wins; otherwise the default chain handles managed
// identity and az-login sessions.
func NewCredential() (azcore.TokenCredential, error) {
	tenantID := os.Getenv("AZURE_TENANT_ID")
	clientID := os.Getenv("AZURE_CLIENT_ID")
	clientSecret := os.Getenv("AZURE_CLIENT_SECRET")
	if tenantID != "" && clientID != "" && clientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("client secret credential: %w", err)
		}
		return cred, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default credential chain: %w", err)
	}
	return cred, nil
}

// SubscriptionID reads the target subscription from the environment.
func SubscriptionID() (string, error) {
	id := os.Getenv("AZURE_SUBSCRIPTION_ID")
	if id == "" {
		return "", fmt.Errorf("AZURE_SUBSCRIPTION_ID is not set")
	}
	return id, nil
}
