package main

import (
	"flag"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/apollo/ackstep/backend"
	"github.com/apollo/ackstep/controller/reconcilers"
	"github.com/apollo/ackstep/pkg/config"
	"github.com/apollo/ackstep/pkg/log"
)

type rootOptions struct {
	envFile string
	zapOpts *zap.Options
	cfg     config.Config
}

// Injection point for tests.
var clusterBackend = func(cfg config.Config) (*backend.Kubernetes, error) {
	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, err
	}
	scheme, err := backend.NewScheme()
	if err != nil {
		return nil, err
	}
	return backend.NewForConfig(restCfg, scheme, cfg.FieldOwner)
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ackstep",
		Short:         "Drive ACK SageMaker resources to completion from a pipeline step",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.Setup(o.zapOpts)
			cfg, err := config.Load(o.envFile)
			if err != nil {
				return &reconcilers.InitError{Err: err}
			}
			if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
				return &reconcilers.InitError{Err: err}
			}
			o.cfg = cfg
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &reconcilers.InitError{Err: err}
	})

	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	o.zapOpts = log.BindFlags(goFlags)
	cmd.PersistentFlags().AddGoFlagSet(goFlags)
	cmd.PersistentFlags().StringVar(&o.envFile, "env-file", "", "Dotenv file to load before reading ACKSTEP_* variables")
	config.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd(o), newDeleteCmd(o), newVersionCmd())
	return cmd
}
