// main.go - Admin control tool for pagelens
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pagelens/internal"
	"pagelens/internal/events"
	"pagelens/internal/jobs"
	"pagelens/internal/seeder"
	"pagelens/internal/targets"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&GeoIPUpdateCommand{},
	&HelpCommand{},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	cmdName, args := parseArgs(os.Args[1:])
	cmd := findCommand(cmdName)
	if cmd == nil {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if _, ok := cmd.(*HelpCommand); ok {
		printUsage(os.Stdout)
		return
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	err = cmd.Execute(ctx, app, args)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()
	if cerr := app.Shutdown(shutdownCtx); cerr != nil {
		log.Printf("Warning: Cleanup error: %v", cerr)
	}

	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}
	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with demo traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string { return "seed" }
func (c *SeedCommand) Description() string {
	return "Seeds demo traffic (-events N -days N -businesses a,b -seed N)"
}

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	count := fs.Int("events", 10000, "number of events to generate")
	days := fs.Int("days", 30, "how many days back the traffic reaches")
	businesses := fs.String("businesses", "demo-business", "comma separated business ids")
	seed := fs.Uint64("seed", 0, "random seed for reproducible traffic (0 = random)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := app.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	se := seeder.NewSeeder(app.DBManager.GetConnection(), app.Logger, *count)
	se.Days = *days
	if *seed != 0 {
		se.WithSeed(*seed)
	}

	var ids []string
	for _, id := range strings.Split(*businesses, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	summary, err := se.Run(ctx, ids...)
	if err != nil {
		return err
	}
	log.Printf("Seeded %d events in %d sessions for %s", summary.Events, summary.Sessions, strings.Join(summary.Targets, ", "))
	return nil
}

// StatusCommand reports store and connection statistics
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()

	eventCount, err := events.CountAll(ctx, db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	var businessCount int64
	if err := db.WithContext(ctx).Model(&targets.Business{}).Count(&businessCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()

	log.Println("System Status:")
	log.Printf("- Database: %s", app.Config.GetDatabasePath())
	log.Printf("- Events: %d", eventCount)
	log.Printf("- Businesses: %d", businessCount)
	log.Printf("- Counter backend: %s", app.Config.CounterBackend)
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)
	return nil
}

// GeoIPUpdateCommand downloads the GeoLite2 City database right away
type GeoIPUpdateCommand struct{}

func (c *GeoIPUpdateCommand) Name() string { return "geoip-update" }
func (c *GeoIPUpdateCommand) Description() string {
	return "Downloads the GeoLite2 City database (needs PAGELENS_MAXMIND_LICENSE_KEY)"
}

func (c *GeoIPUpdateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	app.Logger.Info("Updating GeoLite database", slog.String("path", app.Config.GeoDBPath))
	return jobs.NewGeoLiteUpdaterJob(app.Config, app.Logger).Update(ctx)
}

// HelpCommand shows usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(os.Stdout)
	return nil
}

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: plctl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}
