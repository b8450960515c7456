// Package repo provisions an RPM package repository backed by blob
// storage: a resource group, the initial infrastructure template, a
// packaging function app, and the event wiring that connects uploads
// to it.
package repo

import (
	"fmt"
	"strings"

	"github.com/GoCodeAlone/blobrepo/pipeline"
	"github.com/google/uuid"
)

// RepoType selects the repository layout the provisioned system serves.
type RepoType string

const (
	RepoFlat         RepoType = "flat"
	RepoDistribution RepoType = "distribution"
)

// RepoTypes lists the recognized repository types.
var RepoTypes = []RepoType{RepoFlat, RepoDistribution}

// ParseRepoType validates a repository type string.
func ParseRepoType(s string) (RepoType, error) {
	for _, t := range RepoTypes {
		if s == string(t) {
			return t, nil
		}
	}
	return "", &pipeline.ConfigurationError{Reason: fmt.Sprintf("unknown repository type %q", s)}
}

// MaxSuffixLen bounds the resource name suffix. Azure storage account
// names cap at 24 characters and the templates reserve 10 for their
// own prefixes.
const MaxSuffixLen = 14

// ResolveSuffix validates a user-supplied suffix or generates one. A
// supplied suffix is returned unchanged when it fits the length bound.
// A generated suffix is lowercase hex, safe in every resource name
// position the templates use.
func ResolveSuffix(user string) (string, error) {
	if user != "" {
		if len(user) > MaxSuffixLen {
			return "", &pipeline.ValidationError{
				Field:  "suffix",
				Reason: fmt.Sprintf("must be %d characters or fewer", MaxSuffixLen),
			}
		}
		return user, nil
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return token[:MaxSuffixLen-1], nil
}

// Request is the immutable input to one provisioning run.
type Request struct {
	// ResourceGroup names the resource container; it doubles as the
	// initial deployment name so re-runs update rather than duplicate.
	ResourceGroup string
	Location      string
	// Suffix keeps resource names collision-free. Empty means a random
	// one is derived before the first stage runs.
	Suffix          string
	UploadDirectory string
	RepoType        RepoType
}

// Validate rejects a malformed request before any resource is touched.
func (r Request) Validate() error {
	if r.ResourceGroup == "" {
		return &pipeline.ValidationError{Field: "resource group", Reason: "must not be empty"}
	}
	if r.Location == "" {
		return &pipeline.ValidationError{Field: "location", Reason: "must not be empty"}
	}
	if len(r.Suffix) > MaxSuffixLen {
		return &pipeline.ValidationError{
			Field:  "suffix",
			Reason: fmt.Sprintf("must be %d characters or fewer", MaxSuffixLen),
		}
	}
	if _, err := ParseRepoType(string(r.RepoType)); err != nil {
		return err
	}
	return nil
}
