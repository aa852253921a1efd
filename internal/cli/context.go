package cli

import (
	"fmt"
	"os"

	"github.com/jvs-project/syncbridge/pkg/color"
	"github.com/jvs-project/syncbridge/pkg/config"
	"github.com/jvs-project/syncbridge/pkg/syncbridge"
)

// exitError ends the process with code. Its message has already been
// printed.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// loadConfig reads the file named by --config, or the resolved default.
func loadConfig() (*config.Config, string, error) {
	path := config.Resolve(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func openClient() (*syncbridge.Client, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return syncbridge.Open(cfg, syncbridge.Options{})
}

func fmtErr(format string, args ...any) {
	prefix := "syncbridge: "
	if color.Enabled() {
		prefix = color.Error("syncbridge:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
