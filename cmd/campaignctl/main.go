// cmd/campaignctl is the operator CLI for campaign delivery.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/unclebandit/garage-campaigns/internal/config"
	"github.com/unclebandit/garage-campaigns/internal/db"
	"github.com/unclebandit/garage-campaigns/internal/email"
	"github.com/unclebandit/garage-campaigns/internal/logger"
	"github.com/unclebandit/garage-campaigns/internal/queue"
	"github.com/unclebandit/garage-campaigns/internal/repository"
	"github.com/unclebandit/garage-campaigns/internal/service"
)

// env is what a command needs once flags are validated.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	conn    *sqlx.DB
	service *service.CampaignService
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// opener builds an env; publish reports whether the command needs the broker.
type opener func(ctx context.Context, publish bool) (*env, error)

func openEnv(ctx context.Context, publish bool) (*env, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.App)
	conn, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log, conn: conn, closers: []func(){func() { _ = conn.Close() }}}

	e.service = &service.CampaignService{
		CampaignRepo: &repository.CampaignRepository{DB: conn},
		CustomerRepo: &repository.CustomerRepository{DB: conn},
		Contacts:     &repository.ContactRepository{DB: conn},
		SendContext:  &repository.TenantRepository{DB: conn},
		Topic:        cfg.Queue.Topic,
		Logger:       log,
	}
	if publish {
		q, err := queue.NewAMQPQueue(cfg.Queue.AMQPURL, cfg.Worker.MaxAttempts, log)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.service.Queue = q
		e.closers = append(e.closers, func() { _ = q.Close() })
	}
	return e, nil
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	var tenant string

	root := &cobra.Command{
		Use:           "campaignctl",
		Short:         "Operate campaign delivery: enqueue, requeue, inspect and run campaigns",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&tenant, "tenant", "", "tenant id the campaign belongs to (required)")
	_ = root.MarkPersistentFlagRequired("tenant")

	// scope parses --tenant and the campaign id argument.
	scope := func(args []string) (uuid.UUID, uuid.UUID, error) {
		tenantID, err := uuid.Parse(tenant)
		if err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --tenant: %w", err)
		}
		campaignID, err := uuid.Parse(args[0])
		if err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("invalid campaign id: %w", err)
		}
		return tenantID, campaignID, nil
	}

	printJSON := func(cmd *cobra.Command, v any) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enqueueCmd := &cobra.Command{
		Use:   "enqueue [campaign-id]",
		Short: "Queue a draft or scheduled campaign for sending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, campaignID, err := scope(args)
			if err != nil {
				return err
			}
			e, err := open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()
			res, err := e.service.Enqueue(cmd.Context(), tenantID, campaignID)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	requeueCmd := &cobra.Command{
		Use:   "requeue [campaign-id]",
		Short: "Hand a campaign stuck in processing back to the workers",
		Long: `Moves a campaign from processing back to queued and publishes a new job.
Only pending contacts are sent again; contacts already sent or failed keep
their recorded outcome. Use this when a worker died mid-run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, campaignID, err := scope(args)
			if err != nil {
				return err
			}
			e, err := open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()
			res, err := e.service.RequeueStuck(cmd.Context(), tenantID, campaignID)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status [campaign-id]",
		Short: "Show campaign status and contact counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, campaignID, err := scope(args)
			if err != nil {
				return err
			}
			e, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()
			details, err := e.service.GetCampaignDetailsWithStats(cmd.Context(), tenantID, campaignID)
			if err != nil {
				return err
			}
			return printJSON(cmd, details)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [campaign-id]",
		Short: "Send a queued campaign in this process, bypassing the broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, campaignID, err := scope(args)
			if err != nil {
				return err
			}
			e, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()
			d := service.NewDispatcher(
				e.service.CampaignRepo, e.service.Contacts, e.service.SendContext,
				email.NewRouter(e.cfg.Email, e.log), e.cfg.Worker, e.cfg.Email.DefaultFrom, e.log,
			)
			if err := d.Run(cmd.Context(), tenantID, campaignID); err != nil {
				return err
			}
			details, err := e.service.GetCampaignDetailsWithStats(cmd.Context(), tenantID, campaignID)
			if err != nil {
				return err
			}
			return printJSON(cmd, details)
		},
	}

	root.AddCommand(enqueueCmd, requeueCmd, statusCmd, runCmd)
	return root
}

func main() {
	if err := newRootCmd(openEnv, os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
