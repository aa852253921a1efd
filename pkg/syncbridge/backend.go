package syncbridge

import (
	"github.com/jvs-project/syncbridge/internal/vcs"
	"github.com/jvs-project/syncbridge/internal/vcs/gitvcs"
	"github.com/jvs-project/syncbridge/internal/vcs/p4"
	"github.com/jvs-project/syncbridge/pkg/config"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// Backends lists the supported runtime backends.
func Backends() []model.BackendType {
	return []model.BackendType{model.BackendP4, model.BackendGit, model.BackendNoop}
}

// newLibrary builds the runtime for cfg.Backend. cfg must be validated.
func newLibrary(cfg *config.Config, log *logging.Logger) vcs.Library {
	switch cfg.Backend {
	case model.BackendGit:
		return &gitvcs.Library{URL: cfg.Git.URL, InsecureSkipTLS: cfg.Git.InsecureSkipTLS}
	case model.BackendNoop:
		return vcs.Noop{}
	default:
		return p4.New(cfg.P4.Executable, log)
	}
}
