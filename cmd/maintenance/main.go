// Command maintenance runs one-off operational tasks against the booking
// service storage: migrations, session sweeps, admin provisioning and refund
// draining.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/bootstrap"
	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/service"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "booking-maintenance",
		Usage: "Operational tasks for the booking service",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 2 * time.Minute,
				Usage: "Overall deadline for the command",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply SQL migrations",
				Action: runMigrate,
			},
			{
				Name:   "sweep-tokens",
				Usage:  "Remove expired session tokens of every account kind",
				Action: runSweep,
			},
			{
				Name:  "create-admin",
				Usage: "Provision an admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"ADMIN_PASSWORD"}},
					&cli.StringSliceFlag{Name: "role", Usage: "superuser or support; repeatable"},
				},
				Action: runCreateAdmin,
			},
			{
				Name:  "process-refunds",
				Usage: "Drain due refund jobs once",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "requeue", Usage: "Re-enqueue every booking whose refund is still pending first"},
					&cli.IntFlag{Name: "limit", Value: 500, Usage: "Maximum bookings to requeue"},
				},
				Action: runProcessRefunds,
			},
		},
	}
}

// withContainer wires the application for a single command run.
func withContainer(c *cli.Context, fn func(ctx context.Context, container *bootstrap.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	container, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()
	if !container.Postgres.Enabled() {
		logger.Warn("POSTGRES_DSN is empty; the command runs against empty in-memory stores")
	}
	return fn(ctx, container)
}

func runMigrate(c *cli.Context) error {
	return withContainer(c, func(ctx context.Context, container *bootstrap.Container) error {
		applied, err := container.Migrate(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("applied %d migration files\n", applied)
		return nil
	})
}

func runSweep(c *cli.Context) error {
	return withContainer(c, func(ctx context.Context, container *bootstrap.Container) error {
		removed, err := container.Sweeper.RunOnce(ctx)
		fmt.Printf("removed %d expired sessions\n", removed)
		return err
	})
}

func runCreateAdmin(c *cli.Context) error {
	roles := make([]domain.AdminRole, 0, len(c.StringSlice("role")))
	for _, role := range c.StringSlice("role") {
		roles = append(roles, domain.AdminRole(strings.TrimSpace(role)))
	}
	return withContainer(c, func(ctx context.Context, container *bootstrap.Container) error {
		admin, err := container.Auth.CreateAdmin(ctx, service.AdminInput{
			Name:     c.String("name"),
			Email:    c.String("email"),
			Password: c.String("password"),
			Roles:    roles,
		})
		if err != nil {
			return err
		}
		container.Logger.Info("admin created", zap.String("id", admin.ID), zap.String("email", admin.Email))
		fmt.Printf("created admin %s (%s)\n", admin.Email, admin.ID)
		return nil
	})
}

func runProcessRefunds(c *cli.Context) error {
	return withContainer(c, func(ctx context.Context, container *bootstrap.Container) error {
		if c.Bool("requeue") {
			queued, err := container.Refunds.Requeue(ctx, c.Int("limit"))
			if err != nil {
				return err
			}
			fmt.Printf("requeued %d refunds\n", queued)
		}
		total := 0
		for {
			n, err := container.Refunds.ProcessDue(ctx)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			total += n
		}
		fmt.Printf("processed %d refund jobs\n", total)
		return nil
	})
}
