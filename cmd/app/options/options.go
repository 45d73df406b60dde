package options

import (
	"flag"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"streamq/pkg/apiserver/config"
	"streamq/pkg/apiserver/utils/profiling"
)

// RunOptions contains everything necessary to run the streamq CLI.
type RunOptions struct {
	GenericOptions *config.Config
}

// NewRunOptions creates a new RunOptions object with default parameters
func NewRunOptions() *RunOptions {
	return &RunOptions{
		GenericOptions: config.NewConfig(),
	}
}

// AddFlags registers the config and klog flags on the given flag set.
func (o *RunOptions) AddFlags(fs *pflag.FlagSet) {
	o.GenericOptions.AddFlags(fs, o.GenericOptions)
	profiling.AddFlags(fs)
	local := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(local)
	fs.AddGoFlagSet(local)
}

// Validate checks the assembled configuration.
func (o *RunOptions) Validate() error {
	for _, err := range o.GenericOptions.Validate() {
		return err
	}
	return nil
}
