package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/omnilypro/omnily/internal/config"
	"github.com/omnilypro/omnily/internal/permissions"
	"github.com/omnilypro/omnily/internal/team"
)

var (
	seedConfigPath string
	seedAdminEmail string
	seedAdminName  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Initialize the database: org, role permission defaults, first admin",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "", "email for the initial admin staff member")
	seedCmd.Flags().StringVar(&seedAdminName, "admin-name", "Admin", "name for the initial admin staff member")
}

// runSeed prepares a fresh deployment: runs migrations, materializes the
// built-in role permission matrices, and optionally creates the first admin
// staff member so an API key can be mapped to someone.
func runSeed(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("OMNILY_CONFIG", seedConfigPath))
	if err != nil {
		return err
	}

	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	ctx := context.Background()

	store, err := initStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	orgName := cfg.Org.OrgName()
	orgID, err := store.EnsureOrg(ctx, orgName)
	if err != nil {
		return fmt.Errorf("ensuring org %q: %w", orgName, err)
	}
	logger.Info("org ready", slog.String("org_name", orgName), slog.String("org_id", orgID.String()))

	// Materialize the built-in default matrix for every role so admins
	// edit stored rows rather than implicit built-ins.
	resolver := permissions.NewResolver(store.Permissions(), orgID, logger)
	for _, role := range []permissions.Role{
		permissions.RoleAdmin, permissions.RoleManager, permissions.RoleCashier, permissions.RoleStaff,
	} {
		if _, err := resolver.RoleDefaults(ctx, role); err != nil {
			return fmt.Errorf("seeding %s permission defaults: %w", role, err)
		}
	}
	logger.Info("role permission defaults seeded")

	if seedAdminEmail != "" {
		teamSvc := team.NewService(store.Staff(), resolver, orgID, logger)
		member, err := teamSvc.Create(ctx, seedAdminName, seedAdminEmail, permissions.RoleAdmin)
		switch {
		case errors.Is(err, team.ErrDuplicateEmail):
			logger.Info("admin already exists", slog.String("email", seedAdminEmail))
		case err != nil:
			return fmt.Errorf("creating admin %q: %w", seedAdminEmail, err)
		default:
			logger.Info("admin created",
				slog.String("email", member.Email),
				slog.String("staff_id", member.ID.String()),
			)
		}
	}

	return nil
}
