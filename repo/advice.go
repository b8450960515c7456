package repo

import (
	"fmt"
	"io"
)

// Advice carries the resolved identifiers the operator needs to start
// using the provisioned repository.
type Advice struct {
	UploadDirectory  string
	PackageContainer string
	StorageAccount   string
	FunctionApp      string
	BaseURL          string
}

// Presenter renders operator-facing guidance for a provisioned
// repository. Purely presentation; no state.
type Presenter interface {
	Present(t RepoType, a Advice) error
}

// WriterPresenter writes advisory text to an io.Writer.
type WriterPresenter struct {
	Out io.Writer
}

// Present renders the advisory for the given repository type.
func (p *WriterPresenter) Present(t RepoType, a Advice) error {
	switch t {
	case RepoDistribution:
		return p.distribution(a)
	case RepoFlat:
		return p.flat(a)
	default:
		return fmt.Errorf("no advisory for repository type %q", t)
	}
}

func (p *WriterPresenter) distribution(a Advice) error {
	_, err := fmt.Fprintf(p.Out, `Repository created.

Upload packages to the %q directory of the %q container in storage
account %q. The %q function app indexes them into
per-distribution repositories.

Configure clients with a .repo file such as:

    [myrepo]
    name=My Repository
    baseurl=%s/$releasever/$basearch
    enabled=1
    gpgcheck=0
`, a.UploadDirectory, a.PackageContainer, a.StorageAccount, a.FunctionApp, a.BaseURL)
	return err
}

func (p *WriterPresenter) flat(a Advice) error {
	_, err := fmt.Fprintf(p.Out, `Repository created.

Upload packages to the %q directory of the %q container in storage
account %q. The %q function app indexes them into a single
flat repository.

Configure clients with a .repo file such as:

    [myrepo]
    name=My Repository
    baseurl=%s
    enabled=1
    gpgcheck=0
`, a.UploadDirectory, a.PackageContainer, a.StorageAccount, a.FunctionApp, a.BaseURL)
	return err
}
