package probe

import (
	"context"

	"github.com/kashguard/go-waas-device/internal/config"
	"github.com/kashguard/go-waas-device/internal/util"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type LivenessFlags struct {
	Verbose bool
	Pool    string
}

func newLiveness() *cobra.Command {
	var flags LivenessFlags

	cmd := &cobra.Command{
		Use:   "liveness",
		Short: "Runs liveness probes",
		Long: `Runs liveness probes

Dials the configured WaaS endpoint and fetches the probe pool.
Fails with non zero exitcode when the backend is unreachable.`,
		Run: func(_ *cobra.Command, _ []string) {
			livenessCmdFunc(flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.Verbose, verboseFlag, "v", false, "Show verbose output.")
	cmd.Flags().StringVar(&flags.Pool, "pool", "", "Pool resource name to fetch (defaults to WAAS_PROBE_POOL).")

	return cmd
}

func livenessCmdFunc(flags LivenessFlags) {
	cfg := config.DefaultDeviceConfigFromEnv()
	if flags.Pool != "" {
		cfg.WaaS.ProbePool = flags.Pool
	}

	if err := RunLiveness(context.Background(), cfg, flags); err != nil {
		log.Fatal().Err(err).Msg("Unhealthy.")
	}
}

// RunLiveness checks that the WaaS backend answers GetPool.
func RunLiveness(ctx context.Context, cfg config.DeviceConfig, flags LivenessFlags) error {
	log := util.LogFromContext(ctx)

	if cfg.WaaS.ProbePool == "" {
		return errors.New("no probe pool configured")
	}

	conn, err := waas.Dial(cfg.WaaS.ClientConfig())
	if err != nil {
		return err
	}
	defer conn.Close()

	probeCtx, cancel := context.WithTimeout(ctx, cfg.WaaS.Timeout)
	defer cancel()

	pool, err := waas.NewClient(conn).GetPool(probeCtx, cfg.WaaS.ProbePool)
	if err != nil {
		return errors.Wrapf(err, "failed to get pool %s", cfg.WaaS.ProbePool)
	}

	if flags.Verbose {
		log.Info().Str("endpoint", cfg.WaaS.Endpoint).Str("pool", pool.Name).Msg("Liveness check passed")
	}
	return nil
}
