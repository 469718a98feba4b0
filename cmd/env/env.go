package env

import (
	"encoding/json"
	"fmt"

	"github.com/kashguard/go-waas-device/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Prints the env",
		Long: `Prints the currently applied env

The output is the effective configuration after ENV parsing,
marshalled as JSON. Secrets are omitted.`,
		Run: func(_ *cobra.Command, _ []string) {
			envCmdFunc()
		},
	}
}

func envCmdFunc() {
	cfg := config.DefaultDeviceConfigFromEnv()
	c, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to marshal the env")
	}

	fmt.Println(string(c))
}
