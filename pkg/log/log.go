package log

import (
	"flag"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// BindFlags registers the zap flags on fs. Development mode is the default.
func BindFlags(fs *flag.FlagSet) *zap.Options {
	opts := &zap.Options{Development: true}
	opts.BindFlags(fs)
	return opts
}

// Setup installs a zap logger built from opts as the global logger and returns it.
func Setup(opts *zap.Options) logr.Logger {
	logger := zap.New(zap.UseFlagOptions(opts))
	log.SetLogger(logger)
	return logger
}
