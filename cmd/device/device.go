package device

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/kashguard/go-waas-device/internal/config"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/storage"
	"github.com/kashguard/go-waas-device/internal/util/command"
	"github.com/kashguard/go-waas-device/internal/waas"
	sdk "github.com/kashguard/go-waas-device/pkg/sdk/device"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("device",
		newPendingCmd(),
		newGroupCmd(),
	)
}

func newPendingCmd() *cobra.Command {
	var group string
	var kind string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Poll a device group until operations of a kind are pending and print them",
		Run: func(_ *cobra.Command, _ []string) {
			k, err := protocol.ParseKind(kind)
			if err != nil {
				log.Fatal().Err(err).Msg("Invalid operation kind")
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			client, closeFn, err := newClient(config.DefaultDeviceConfigFromEnv())
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create device client")
			}
			defer closeFn()

			p := sdk.NewPromise[[]sdk.Value]()
			client.PollPendingOperations(ctx, group, k, p)
			values, err := p.Await(context.Background())
			printResult(values, err)
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Device group resource name")
	cmd.Flags().StringVar(&kind, "kind", string(protocol.KindCreateSignature), "Operation kind to wait for")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Give up after this long")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}

func newGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group <name>",
		Short: "Print a device group",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			client, closeFn, err := newClient(config.DefaultDeviceConfigFromEnv())
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create device client")
			}
			defer closeFn()

			p := sdk.NewPromise[sdk.Value]()
			client.GetDeviceGroup(context.Background(), args[0], p)
			group, err := p.Await(context.Background())
			printResult(group, err)
		},
	}
}

func newClient(cfg config.DeviceConfig) (*sdk.Client, func(), error) {
	conn, err := waas.Dial(cfg.WaaS.ClientConfig())
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewIdentityStore(cfg.Identity.Options())
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "failed to open identity store")
	}

	client := sdk.NewClient(sdk.Config{
		PollInterval:       cfg.Poll.Interval,
		PollConcurrency:    cfg.Lanes.Poll,
		ComputeConcurrency: cfg.Lanes.Compute,
	})
	client.InitFromConn(conn)
	client.InitIdentityStore(store)
	client.InitChain(big.NewInt(cfg.Chain.ChainID))

	return client, func() {
		client.Wait()
		_ = conn.Close()
	}, nil
}

func printResult[R any](v R, err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("Call rejected")
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to marshal result")
	}
	fmt.Println(string(b))
}
