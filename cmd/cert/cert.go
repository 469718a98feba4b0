package cert

import (
	"time"

	"github.com/kashguard/go-waas-device/internal/config"
	"github.com/kashguard/go-waas-device/internal/util/cert"
	"github.com/kashguard/go-waas-device/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("cert",
		newGenCmd(),
		newVerifyCmd(),
	)
}

func newGenCmd() *cobra.Command {
	var outDir string
	var hostnames []string
	var validity time.Duration

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate development certificates (CA, gateway, device client)",
		Run: func(_ *cobra.Command, _ []string) {
			if err := cert.Generate(outDir, hostnames, validity); err != nil {
				log.Fatal().Err(err).Msg("Failed to generate certificates")
			}
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "certs", "Output directory for certificates")
	cmd.Flags().StringSliceVar(&hostnames, "host", []string{"localhost", "127.0.0.1"}, "Hostnames/IPs for the gateway certificate")
	cmd.Flags().DurationVar(&validity, "validity", 365*24*time.Hour, "Validity of the leaf certificates")

	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the configured device client certificate against the CA",
		Run: func(_ *cobra.Command, _ []string) {
			w := config.DefaultDeviceConfigFromEnv().WaaS
			if err := cert.VerifyKeyPair(w.TLSCertFile, w.TLSKeyFile, w.TLSCACertFile); err != nil {
				log.Fatal().Err(err).Msg("Device certificate is invalid")
			}
			log.Info().Str("cert", w.TLSCertFile).Msg("Device certificate is valid")
		},
	}
}
