// Package main runs reefctl, Reef's operator command-line tool. Each
// subcommand opens the catalog directly and performs a single action, the
// way cmd/seed does a one-shot admin bootstrap, rather than talking to a
// running reefd over a network API.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/delta"
	"github.com/reefdata/reef/internal/destination"
	"github.com/reefdata/reef/internal/encryption"
	"github.com/reefdata/reef/internal/importpipeline"
	"github.com/reefdata/reef/internal/profilepipeline"
	"github.com/reefdata/reef/internal/source"
	"github.com/reefdata/reef/internal/sqlclient"
)

// keyFiles are the file names encryption.Open persists under its key
// directory (recovery.baklz4, snapshot_blob.bin, store.jsonc), duplicated
// here since they are unexported there.
var keyFiles = []string{"recovery.baklz4", "snapshot_blob.bin", "store.jsonc"}

type globalFlags struct {
	dbDriver, dbDSN, dataDir, masterSecret string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "reefctl",
		Short: "reefctl — Reef operator CLI",
		Long: `reefctl performs one-shot operator actions directly against the
catalog database: running a profile or job outside its schedule, resetting
delta-sync state, and rotating the encryption key directory.`,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&g.dbDriver, "db-driver", envOrDefault("REEF_DB_DRIVER", "sqlite"), "catalog database driver (sqlite, postgres)")
	flags.StringVar(&g.dbDSN, "db-dsn", envOrDefault("REEF_DB_DSN", "./reef.db"), "catalog database DSN")
	flags.StringVar(&g.dataDir, "data-dir", envOrDefault("REEF_DATA_DIR", "./data"), "directory holding the encryption key material")
	flags.StringVar(&g.masterSecret, "master-secret", envOrDefault("REEF_MASTER_SECRET", ""), "master secret wrapping the encryption key (falls back to REEF_ENCRYPTION_KEY / .env)")

	root.AddCommand(newTriggerCmd(g))
	root.AddCommand(newDeltaCmd(g))
	root.AddCommand(newKeysCmd(g))
	return root
}

// --- trigger ---------------------------------------------------------------

func newTriggerCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "run a profile, import profile, or job immediately, outside its schedule",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "profile <id>",
		Short: "run an export profile now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), g, func(ctx context.Context, env *env) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("reefctl: invalid profile id %q: %w", args[0], err)
				}
				profile, err := env.store.Profiles.GetByID(ctx, id)
				if err != nil {
					return fmt.Errorf("reefctl: load profile: %w", err)
				}
				result := env.profiles.Run(ctx, profile, catalog.TriggerManual)
				return reportResult(result.Execution, result.Err)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "import <id>",
		Short: "run an import profile now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), g, func(ctx context.Context, env *env) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("reefctl: invalid import profile id %q: %w", args[0], err)
				}
				profile, err := env.store.ImportProfiles.GetByID(ctx, id)
				if err != nil {
					return fmt.Errorf("reefctl: load import profile: %w", err)
				}
				result := env.imports.Run(ctx, profile, catalog.TriggerManual)
				return reportResult(result.Execution, result.Err)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "job <id>",
		Short: "run every profile and import profile in a job, in order, now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), g, func(ctx context.Context, env *env) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("reefctl: invalid job id %q: %w", args[0], err)
				}
				job, err := env.store.Jobs.GetByID(ctx, id)
				if err != nil {
					return fmt.Errorf("reefctl: load job: %w", err)
				}
				for _, memberID := range splitCSVIDs(job.ProfileIDsCSV) {
					if err := env.runByID(ctx, memberID); err != nil {
						return fmt.Errorf("reefctl: job %s: member %s: %w", job.Name, memberID, err)
					}
				}
				fmt.Printf("job %q: all members ran\n", job.Name)
				return nil
			})
		},
	})
	return cmd
}

func (e *env) runByID(ctx context.Context, id uuid.UUID) error {
	if profile, err := e.store.Profiles.GetByID(ctx, id); err == nil {
		result := e.profiles.Run(ctx, profile, catalog.TriggerManual)
		return reportResult(result.Execution, result.Err)
	}
	importProfile, err := e.store.ImportProfiles.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("no profile or import profile with id %s", id)
	}
	result := e.imports.Run(ctx, importProfile, catalog.TriggerManual)
	return reportResult(result.Execution, result.Err)
}

func reportResult(execution *catalog.Execution, err error) error {
	if execution != nil {
		fmt.Printf("execution %s finished with status %s (rows read %d)\n", execution.ID, execution.Status, execution.RowsRead)
	}
	return err
}

// --- delta -------------------------------------------------------------

func newDeltaCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delta",
		Short: "inspect and reset delta-sync state for a profile",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <profile-id>",
		Short: "drop all tracked row state for a profile, forcing a full resync on its next run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), g, func(ctx context.Context, env *env) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("reefctl: invalid profile id %q: %w", args[0], err)
				}
				if err := env.delta.ResetAll(ctx, id); err != nil {
					return fmt.Errorf("reefctl: reset delta state: %w", err)
				}
				fmt.Printf("delta state reset for profile %s\n", id)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset-rows <profile-id> <row-id>...",
		Short: "drop tracked state for specific rows, forcing them to resync",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), g, func(ctx context.Context, env *env) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("reefctl: invalid profile id %q: %w", args[0], err)
				}
				if err := env.delta.ResetRows(ctx, id, args[1:]); err != nil {
					return fmt.Errorf("reefctl: reset delta rows: %w", err)
				}
				fmt.Printf("delta state reset for %d row(s) on profile %s\n", len(args[1:]), id)
				return nil
			})
		},
	})
	return cmd
}

// --- keys ----------------------------------------------------------------

func newKeysCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "manage the encryption key directory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "generate a fresh keypair and re-encrypt every stored secret under it",
		Long: `rotate decrypts every Connection.ConnectionString and Destination
secret field under the current key, moves the key directory's recovery and
snapshot files aside, generates a new keypair, and re-encrypts every value
under it. Run it offline: stop reefd first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), g, func(ctx context.Context, env *env) error {
				return rotateKeys(ctx, env)
			})
		},
	})
	return cmd
}

func rotateKeys(ctx context.Context, env *env) error {
	oldSvc := env.encSvc

	connections, _, err := env.store.Connections.List(ctx, catalog.ListOptions{Limit: 1 << 20})
	if err != nil {
		return fmt.Errorf("reefctl: list connections: %w", err)
	}
	destinations, _, err := env.store.Destinations.List(ctx, catalog.ListOptions{Limit: 1 << 20})
	if err != nil {
		return fmt.Errorf("reefctl: list destinations: %w", err)
	}

	plainConnStrings := make([]string, len(connections))
	for i, c := range connections {
		plainConnStrings[i] = string(c.ConnectionString)
	}
	plainDestConfigs := make([]string, len(destinations))
	for i, d := range destinations {
		plain, err := oldSvc.DecryptSecrets(d.Configuration, string(d.Kind))
		if err != nil {
			return fmt.Errorf("reefctl: decrypt destination %s secrets: %w", d.ID, err)
		}
		plainDestConfigs[i] = plain
	}

	backupDir, err := backupKeyDir(env.dataDir)
	if err != nil {
		return fmt.Errorf("reefctl: back up key directory: %w", err)
	}

	newSvc, err := encryption.Open(env.dataDir, randomMasterSecretOrKeep(env.masterSecret))
	if err != nil {
		return fmt.Errorf("reefctl: generate new keypair: %w", err)
	}
	catalog.SetEncryptionService(newSvc)

	for i, c := range connections {
		c.ConnectionString = catalog.EncryptedString(plainConnStrings[i])
		if err := env.store.Connections.Update(ctx, &c); err != nil {
			return fmt.Errorf("reefctl: re-encrypt connection %s: %w", c.ID, err)
		}
	}
	for i, d := range destinations {
		cipher, err := newSvc.EncryptSecrets(plainDestConfigs[i], string(d.Kind))
		if err != nil {
			return fmt.Errorf("reefctl: re-encrypt destination %s secrets: %w", d.ID, err)
		}
		d.Configuration = cipher
		if err := env.store.Destinations.Update(ctx, &d); err != nil {
			return fmt.Errorf("reefctl: save destination %s: %w", d.ID, err)
		}
	}

	fmt.Printf("rotated key directory %s (previous key backed up to %s); re-encrypted %d connection(s) and %d destination(s)\n",
		env.dataDir, backupDir, len(connections), len(destinations))
	return nil
}

// randomMasterSecretOrKeep keeps the operator-supplied master secret if one
// was given (it still has to be entered again on the next boot), otherwise
// resolves one from REEF_ENCRYPTION_KEY or .env the same way reefd does.
func randomMasterSecretOrKeep(masterSecret string) string {
	if masterSecret == "" {
		return encryption.LoadMasterSecret("", os.Getenv("REEF_ENCRYPTION_KEY"), ".env")
	}
	return masterSecret
}

// --- shared wiring -----------------------------------------------------

type env struct {
	store    *catalog.Store
	encSvc   *encryption.Service
	delta    *delta.Engine
	profiles *profilepipeline.Pipeline
	imports  *importpipeline.Pipeline
	dataDir  string
	masterSecret string
}

func withEnv(ctx context.Context, g *globalFlags, fn func(context.Context, *env) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("reefctl: build logger: %w", err)
	}
	defer logger.Sync()

	masterSecret := g.masterSecret
	if masterSecret == "" {
		masterSecret = encryption.LoadMasterSecret("", os.Getenv("REEF_ENCRYPTION_KEY"), ".env")
	}
	encSvc, err := encryption.Open(g.dataDir, masterSecret)
	if err != nil {
		return fmt.Errorf("reefctl: open encryption service: %w", err)
	}
	catalog.SetEncryptionService(encSvc)

	store, err := catalog.NewStore(catalog.Config{Driver: g.dbDriver, DSN: g.dbDSN, Logger: logger})
	if err != nil {
		return fmt.Errorf("reefctl: open catalog: %w", err)
	}
	defer func() {
		if sqlDB, err := store.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	deltaEngine := delta.NewEngine(store.DeltaState)
	destinations := destination.NewRegistry(logger)
	sources := source.NewRegistry(logger)

	e := &env{
		store:        store,
		encSvc:       encSvc,
		delta:        deltaEngine,
		profiles:     profilepipeline.New(store, deltaEngine, destinations, noopNotifier{}, logger, openConnection),
		imports:      importpipeline.New(store, deltaEngine, sources, noopNotifier{}, logger, openConnection),
		dataDir:      g.dataDir,
		masterSecret: g.masterSecret,
	}
	return fn(ctx, e)
}

// noopNotifier satisfies both profilepipeline.Notifier and
// importpipeline.Notifier: a manually triggered run reports its result on
// the terminal, it does not need an email or webhook fired on its behalf.
type noopNotifier struct{}

func (noopNotifier) NotifyExecutionTerminal(context.Context, *catalog.Execution, *catalog.Profile) error {
	return nil
}

func (noopNotifier) NotifyImportExecutionTerminal(context.Context, *catalog.Execution, *catalog.ImportProfile) error {
	return nil
}

func openConnection(ctx context.Context, conn *catalog.Connection) (sqlclient.Client, error) {
	var dialect sqlclient.Dialect
	switch conn.Kind {
	case catalog.ConnectionSqlServer:
		dialect = sqlclient.DialectSQLServer
	case catalog.ConnectionMySQL:
		dialect = sqlclient.DialectMySQL
	default:
		dialect = sqlclient.DialectPostgres
	}
	return sqlclient.Open(sqlclient.Config{Dialect: dialect, DSN: string(conn.ConnectionString)})
}

func splitCSVIDs(csv string) []uuid.UUID {
	if csv == "" {
		return nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := uuid.Parse(part); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// backupKeyDir moves the current key material aside into a sibling
// directory named after the rotation time, so a botched rotation can be
// recovered from by hand.
func backupKeyDir(dataDir string) (string, error) {
	backupDir := filepath.Join(dataDir, "key-backup-"+time.Now().UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	for _, name := range keyFiles {
		src := filepath.Join(dataDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(src, filepath.Join(backupDir, name)); err != nil {
			return "", fmt.Errorf("move %s aside: %w", name, err)
		}
	}
	return backupDir, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
