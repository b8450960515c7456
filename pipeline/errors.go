package pipeline

import (
	"fmt"
	"time"
)

// ValidationError reports bad operator input, caught before any resource
// is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports a malformed stage descriptor or an
// unrecognized repository type.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ContainerCreationError reports that the resource group could not be
// created. Nothing downstream can run without it.
type ContainerCreationError struct {
	Name string
	Err  error
}

func (e *ContainerCreationError) Error() string {
	return fmt.Sprintf("create resource group %q: %v", e.Name, e.Err)
}

func (e *ContainerCreationError) Unwrap() error { return e.Err }

// DeploymentFailedError reports a template deployment that reached a
// terminal failure state.
type DeploymentFailedError struct {
	Deployment string
	Err        error
}

func (e *DeploymentFailedError) Error() string {
	return fmt.Sprintf("deployment %q failed: %v", e.Deployment, e.Err)
}

func (e *DeploymentFailedError) Unwrap() error { return e.Err }

// MissingOutputError reports that a completed deployment did not declare
// an output a later stage depends on. Never defaulted; always fatal.
type MissingOutputError struct {
	Deployment string
	Key        string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("deployment %q declared no output %q", e.Deployment, e.Key)
}

// BundleDeployError reports a failure while packaging, uploading, or
// deploying the function bundle.
type BundleDeployError struct {
	App string
	Err error
}

func (e *BundleDeployError) Error() string {
	return fmt.Sprintf("function bundle %q: %v", e.App, e.Err)
}

func (e *BundleDeployError) Unwrap() error { return e.Err }

// TriggerTimeoutError reports that the deployed bundle did not register
// its event trigger within the wait bound.
type TriggerTimeoutError struct {
	App    string
	Waited time.Duration
}

func (e *TriggerTimeoutError) Error() string {
	return fmt.Sprintf("function app %q reported no event trigger after %s", e.App, e.Waited)
}

// TriggerNotFoundError reports that the deployed bundle exposes function
// definitions but none of them is an event trigger, so waiting longer
// cannot help.
type TriggerNotFoundError struct {
	App string
}

func (e *TriggerNotFoundError) Error() string {
	return fmt.Sprintf("function app %q defines no event trigger", e.App)
}
