// Command ledgerctl inspects and repairs the audit ledger outside the server:
// verify the hash chain, list blocks, and rebuild the access-log projection.
// It reads the same environment as the server and needs a durable ledger
// (LEDGER_BACKEND=postgres or leveldb).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rekamed/internal/audit"
	auditstore "rekamed/internal/audit/store"
	identityservice "rekamed/internal/identity/service"
	identitystore "rekamed/internal/identity/store"
	"rekamed/internal/ledger"
	ledgerstore "rekamed/internal/ledger/store"
	"rekamed/internal/platform/config"
	"rekamed/internal/platform/database"
	"rekamed/internal/platform/logger"
	"rekamed/internal/platform/redis"
)

var errChainInvalid = errors.New("ledger verification failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Inspect and verify the RekamedChain audit ledger",
		SilenceUsage: true,
	}
	root.AddCommand(verifyCmd(), listCmd(), rebuildCmd())
	return root
}

// env holds what a single command invocation opened.
type env struct {
	cfg     *config.Config
	log     *slog.Logger
	pool    *database.Pool
	leveldb *ledgerstore.LevelDBStore
	redis   *redis.Client
	ledger  ledger.Store
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: logger.NewWithWriter(os.Stderr, cfg.LogLevel)}

	switch cfg.Ledger.Backend {
	case config.LedgerPostgres:
		pool, err := database.New(ctx, cfg.Database, nil)
		if err != nil {
			return nil, err
		}
		e.pool = pool
		e.ledger = ledgerstore.NewPostgres(pool.DB())
	case config.LedgerLevelDB:
		ldb, err := ledgerstore.OpenLevelDB(cfg.Ledger.LevelDBPath)
		if err != nil {
			return nil, err
		}
		e.leveldb = ldb
		e.ledger = ldb
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND=%s is not durable; nothing to inspect", cfg.Ledger.Backend)
	}
	return e, nil
}

func (e *env) Close() {
	if e.leveldb != nil {
		_ = e.leveldb.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.pool != nil {
		_ = e.pool.Close()
	}
}

func verifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute every block hash and check the chain links",
		Long:  "Exits non-zero when any block fails; the report names the first bad block.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			return runVerify(cmd.Context(), e.ledger, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runVerify(ctx context.Context, chain ledger.Reader, out io.Writer, asJSON bool) error {
	report, err := ledger.Verify(ctx, chain, time.Now().UTC())
	if err != nil {
		return err
	}
	if asJSON {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else if report.OK {
		fmt.Fprintf(out, "ok: %d blocks verified\n", report.Checked)
	} else {
		fmt.Fprintf(out, "FAILED at block %d: %s (%d blocks checked)\n", *report.FirstBadBlockID, report.Reason, report.Checked)
	}
	if !report.OK {
		return errChainInvalid
	}
	return nil
}

func listCmd() *cobra.Command {
	var (
		limit  int
		offset int
		desc   bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List blocks by block id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			filter := ledger.ListFilter{Limit: limit, Offset: offset, Order: ledger.OrderAsc}
			if desc {
				filter.Order = ledger.OrderDesc
			}
			return runList(cmd.Context(), e.ledger, filter, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "blocks to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "blocks to skip")
	cmd.Flags().BoolVar(&desc, "desc", false, "newest first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func runList(ctx context.Context, chain ledger.Reader, filter ledger.ListFilter, out io.Writer, asJSON bool) error {
	blocks, err := chain.List(ctx, filter.Normalize())
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, blocks)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tKIND\tRECORD\tCREATED\tHASH")
	for _, b := range blocks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", b.BlockID, b.Kind, b.RecordID, b.CreatedAt.Format(time.RFC3339), ledger.ChainHash(b)[:16])
	}
	return tw.Flush()
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Replay the ledger into the access-log projection",
		Long: `Truncates the configured access-log projection (ACCESS_LOG_BACKEND) and
replays every block into it. Run it after restoring the ledger from backup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			var opts []audit.Option
			var projection audit.Projection
			switch e.cfg.Ledger.Projection {
			case config.ProjectionPostgres:
				projection = auditstore.NewPostgres(e.pool.DB())
			case config.ProjectionRedis:
				rc, err := redis.New(ctx, e.cfg.Redis, nil)
				if err != nil {
					return err
				}
				e.redis = rc
				projection = auditstore.NewRedis(rc.Client, auditstore.DefaultRedisPrefix)
			default:
				return fmt.Errorf("ACCESS_LOG_BACKEND=%s is rebuilt by the server at startup", e.cfg.Ledger.Projection)
			}
			if e.pool != nil {
				opts = append(opts, audit.WithNames(identityservice.New(identitystore.NewPostgres(e.pool.DB()), e.log)))
			}

			recorder := audit.NewRecorder(e.ledger, projection, e.log, opts...)
			defer recorder.Close()
			n, err := recorder.Rebuild(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d blocks into %s\n", n, e.cfg.Ledger.Projection)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
