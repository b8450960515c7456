// Package deployment models a single templated infrastructure
// deployment: the descriptor that identifies it, the parameter sets
// handed to it, and the outputs it declares on success.
package deployment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/GoCodeAlone/blobrepo/pipeline"
)

// Parameters is a named set of scalar template parameters. A set is
// never mutated after being handed to a stage; Merge produces a new
// set instead.
type Parameters map[string]any

// Merge returns a new set containing p's entries with overrides applied
// on top. Later keys win. Neither input is modified.
func (p Parameters) Merge(overrides Parameters) Parameters {
	out := make(Parameters, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Descriptor identifies one deployment.
type Descriptor struct {
	// Name is the deployment name. It must be stable across re-runs of
	// the same logical invocation: the deployment service treats a
	// same-name submission as an update, which is what makes re-running
	// the pipeline safe.
	Name          string
	ResourceGroup string
	Template      string
	Parameters    Parameters
	Description   string
}

func (d Descriptor) validate() error {
	switch {
	case d.Name == "":
		return &pipeline.ConfigurationError{Reason: "deployment name is empty"}
	case d.ResourceGroup == "":
		return &pipeline.ConfigurationError{Reason: fmt.Sprintf("deployment %q has no resource group", d.Name)}
	case d.Template == "":
		return &pipeline.ConfigurationError{Reason: fmt.Sprintf("deployment %q has no template reference", d.Name)}
	}
	return nil
}

// Outputs holds the named outputs a completed deployment declared. It
// exists only after the deployment reached terminal success.
type Outputs struct {
	Deployment string
	Values     map[string]any
}

// String returns the named output as a string. An absent key is a
// MissingOutputError: downstream stages depend on these values and must
// never proceed with a default.
func (o Outputs) String(key string) (string, error) {
	v, ok := o.Values[key]
	if !ok {
		return "", &pipeline.MissingOutputError{Deployment: o.Deployment, Key: key}
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("deployment %q output %q is %T, not a string", o.Deployment, key, v)
	}
	return s, nil
}

// Deployer submits a create-or-update deployment keyed by
// (resource group, deployment name) and blocks until it reaches a
// terminal state, returning the declared output values.
type Deployer interface {
	Deploy(ctx context.Context, d Descriptor) (map[string]any, error)
}

// Submit validates the descriptor, runs the deployment through the
// deployer, and wraps terminal failure in a DeploymentFailedError. It
// never retries: the caller re-runs the whole pipeline instead, which
// the stable deployment name makes idempotent.
func Submit(ctx context.Context, dep Deployer, d Descriptor, logger *slog.Logger) (Outputs, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := d.validate(); err != nil {
		return Outputs{}, err
	}

	logger.Info("submitting deployment",
		"deployment", d.Name,
		"resource_group", d.ResourceGroup,
		"template", d.Template,
		"description", d.Description,
	)

	values, err := dep.Deploy(ctx, d)
	if err != nil {
		return Outputs{}, &pipeline.DeploymentFailedError{Deployment: d.Name, Err: err}
	}

	logger.Debug("deployment outputs", "deployment", d.Name, "keys", Parameters(values).Keys())
	return Outputs{Deployment: d.Name, Values: values}, nil
}
