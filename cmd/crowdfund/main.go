// Command crowdfund is a small operator CLI over the crowdfunding client:
// inspect program state and campaigns, create campaigns, donate, and
// withdraw.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/willmadison/crowdfund"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	rpcURL    string
	keypair   string
	programID string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:           "crowdfund",
		Short:         "Interact with the on-ledger crowdfunding program",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; flags beat env.
			_ = godotenv.Load()
			if cfg.rpcURL == "" {
				cfg.rpcURL = os.Getenv("CROWDFUND_RPC_URL")
			}
			if cfg.keypair == "" {
				cfg.keypair = os.Getenv("CROWDFUND_KEYPAIR")
			}
			if cfg.programID == "" {
				cfg.programID = os.Getenv("CROWDFUND_PROGRAM_ID")
			}
		},
	}

	root.PersistentFlags().StringVar(&cfg.rpcURL, "url", "", "ledger node RPC endpoint (env CROWDFUND_RPC_URL)")
	root.PersistentFlags().StringVar(&cfg.keypair, "keypair", "", "path to the signer keypair file (env CROWDFUND_KEYPAIR)")
	root.PersistentFlags().StringVar(&cfg.programID, "program", "", "crowdfunding program id (env CROWDFUND_PROGRAM_ID)")
	root.PersistentFlags().BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStateCmd(cfg),
		newCampaignsCmd(cfg),
		newCreateCmd(cfg),
		newDonateCmd(cfg),
		newWithdrawCmd(cfg),
		newBalanceCmd(cfg),
	)

	return root
}

func (cfg *cliConfig) logger() zerolog.Logger {
	if !cfg.verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

func (cfg *cliConfig) client(needSigner bool) (crowdfund.Client, error) {
	if cfg.programID == "" {
		return nil, errors.New("no program id: pass --program or set CROWDFUND_PROGRAM_ID")
	}
	program, err := crowdfund.ParsePublicKey(cfg.programID)
	if err != nil {
		return nil, err
	}

	options := []crowdfund.ClientOption{
		crowdfund.WithEndpoint(cfg.rpcURL),
		crowdfund.WithProgramID(program),
		crowdfund.WithLogger(cfg.logger()),
		crowdfund.WithRetry(),
	}

	if cfg.keypair != "" {
		signer, err := crowdfund.LoadKeypair(cfg.keypair)
		if err != nil {
			return nil, err
		}
		options = append(options, crowdfund.WithSigner(signer))
	} else if needSigner {
		return nil, errors.New("no keypair: pass --keypair or set CROWDFUND_KEYPAIR")
	}

	return crowdfund.NewClient(options...)
}

func newStateCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the program's global counter record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.client(false)
			if err != nil {
				return err
			}

			state, present, err := client.ProgramState(cmd.Context())
			if err != nil {
				return err
			}
			if !present {
				fmt.Println("program state not initialized yet (no campaigns created)")
				return nil
			}

			fmt.Printf("campaigns created: %d\n", state.CampaignCount)
			return nil
		},
	}
}

func newCampaignsCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "campaigns",
		Short: "List all readable campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.client(false)
			if err != nil {
				return err
			}

			snapshot, err := client.RefreshSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			if len(snapshot.Campaigns) == 0 {
				fmt.Println("no campaigns yet")
				return nil
			}

			for _, c := range snapshot.Campaigns {
				status := "active"
				if !c.Active {
					status = "closed"
				}
				fmt.Printf("#%d  %-24q  raised %s / %s SOL  (%.1f%%, %d donations, %s)\n",
					c.CampaignID, c.Title,
					crowdfund.ToSOL(c.AmountRaised), crowdfund.ToSOL(c.Goal),
					c.PercentFunded(), c.Donors, status)
			}
			fmt.Printf("total raised: %s SOL across %d campaigns\n",
				crowdfund.ToSOL(snapshot.TotalRaised()), len(snapshot.Campaigns))
			return nil
		},
	}
}

func newCreateCmd(cfg *cliConfig) *cobra.Command {
	var title, description, imageURL, goal string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new campaign",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.client(true)
			if err != nil {
				return err
			}

			goalLamports, err := crowdfund.ParseSOL(goal)
			if err != nil {
				return err
			}

			receipt, err := client.CreateCampaign(cmd.Context(), crowdfund.CampaignParams{
				Title:       title,
				Description: description,
				ImageURL:    imageURL,
				Goal:        goalLamports,
			})
			if err != nil {
				return err
			}

			fmt.Printf("campaign created: %s (slot %d)\n", receipt.Signature, receipt.Slot)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "campaign title (required)")
	cmd.Flags().StringVar(&description, "description", "", "campaign description (required)")
	cmd.Flags().StringVar(&imageURL, "image", "", "campaign image URL")
	cmd.Flags().StringVar(&goal, "goal", "", "funding goal in SOL (required)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("goal")

	return cmd
}

func newDonateCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "donate <campaign-id> <amount-sol>",
		Short: "Donate to a campaign (minimum 1 SOL)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.client(true)
			if err != nil {
				return err
			}

			campaignID, err := parseCampaignID(args[0])
			if err != nil {
				return err
			}
			lamports, err := crowdfund.ParseSOL(args[1])
			if err != nil {
				return err
			}

			receipt, err := client.Donate(cmd.Context(), campaignID, lamports)
			if err != nil {
				return err
			}

			fmt.Printf("donation confirmed: %s (slot %d)\n", receipt.Signature, receipt.Slot)
			return nil
		},
	}
}

func newWithdrawCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <campaign-id> <amount-sol>",
		Short: "Withdraw from a campaign you created",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.client(true)
			if err != nil {
				return err
			}

			campaignID, err := parseCampaignID(args[0])
			if err != nil {
				return err
			}
			lamports, err := crowdfund.ParseSOL(args[1])
			if err != nil {
				return err
			}

			receipt, err := client.Withdraw(cmd.Context(), campaignID, lamports)
			if err != nil {
				return err
			}

			fmt.Printf("withdrawal confirmed: %s (slot %d)\n", receipt.Signature, receipt.Slot)
			return nil
		},
	}
}

func newBalanceCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the signer's balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.client(true)
			if err != nil {
				return err
			}

			lamports, err := client.Balance(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("%s SOL (%d lamports)\n", crowdfund.ToSOL(lamports), lamports)
			return nil
		},
	}
}

func parseCampaignID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("bad campaign id %q: want a positive integer", s)
	}
	return id, nil
}
