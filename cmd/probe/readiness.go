package probe

import (
	"context"

	"github.com/kashguard/go-waas-device/internal/config"
	"github.com/kashguard/go-waas-device/internal/mpc/storage"
	"github.com/kashguard/go-waas-device/internal/util"
	"github.com/kashguard/go-waas-device/internal/util/cert"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type ReadinessFlags struct {
	Verbose bool
}

func newReadiness() *cobra.Command {
	var flags ReadinessFlags

	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Runs readiness probes",
		Long: `Runs readiness probes

Checks the local requirements of the device SDK: the identity
store is reachable and, with TLS enabled, the configured device
certificate chains to the CA. Fails with non zero exitcode on
encountered errors.`,
		Run: func(_ *cobra.Command, _ []string) {
			readinessCmdFunc(flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.Verbose, verboseFlag, "v", false, "Show verbose output.")

	return cmd
}

func readinessCmdFunc(flags ReadinessFlags) {
	errs := RunReadiness(context.Background(), config.DefaultDeviceConfigFromEnv(), flags)
	if len(errs) > 0 {
		log.Fatal().Errs("errs", errs).Msg("Unhealthy.")
	}
}

// RunReadiness returns every failed check.
func RunReadiness(ctx context.Context, cfg config.DeviceConfig, flags ReadinessFlags) []error {
	log := util.LogFromContext(ctx)

	var errs []error

	store, err := storage.NewIdentityStore(cfg.Identity.Options())
	if err != nil {
		errs = append(errs, errors.Wrap(err, "failed to open identity store"))
	} else {
		readinessCtx, cancel := context.WithTimeout(ctx, cfg.WaaS.Timeout)
		if _, _, err := store.Get(readinessCtx, storage.DeviceNameKey); err != nil {
			errs = append(errs, errors.Wrap(err, "identity store is not readable"))
		}
		cancel()
		if c, ok := store.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}

	if cfg.WaaS.TLSEnabled && cfg.WaaS.TLSCertFile != "" {
		if err := cert.VerifyKeyPair(cfg.WaaS.TLSCertFile, cfg.WaaS.TLSKeyFile, cfg.WaaS.TLSCACertFile); err != nil {
			errs = append(errs, err)
		}
	}

	if flags.Verbose {
		if len(errs) == 0 {
			log.Info().Msg("Readiness check passed")
		} else {
			log.Info().Int("failed", len(errs)).Msg("Readiness check failed")
		}
	}

	return errs
}
