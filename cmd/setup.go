package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/vqa/internal/formatter"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the default configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = defaultConfigPath
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)
	return r.writePlain("✓ Config written to %s\n", path)
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, closeDB, err := r.migrationDB()
	if err != nil {
		return err
	}
	defer closeDB()

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// SetupStatus lists the embedded migrations and whether each one is applied.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	db, closeDB, err := r.migrationDB()
	if err != nil {
		return err
	}
	defer closeDB()

	statuses, err := shared.Migrations(db)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		type row struct {
			Version int    `json:"version"`
			Name    string `json:"name"`
			Applied bool   `json:"applied"`
		}
		rows := make([]row, len(statuses))
		for i, s := range statuses {
			rows[i] = row{Version: s.Version, Name: s.Name, Applied: s.Applied}
		}
		return r.writeJSON(rows, true)
	}

	t := formatter.Table{Title: "Migrations", Headers: []string{"Version", "Name", "Applied"}, RightAligned: []int{0}}
	for _, s := range statuses {
		applied := "no"
		if s.Applied {
			applied = "yes"
		}
		t.Rows = append(t.Rows, []string{fmt.Sprintf("%04d", s.Version), s.Name, applied})
	}
	return formatter.Write(r.output, formatter.DetectFormat(r.output), t)
}

// SetupRollback rolls back the most recently applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, closeDB, err := r.migrationDB()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.logger.Warn("rolled back latest migration", "path", r.config.Database.Path)
	return r.writePlain("✓ Rolled back the latest migration\n")
}

// migrationDB returns the runner's database, or opens the configured one without migrating it.
func (r *Runner) migrationDB() (*sql.DB, func(), error) {
	if r.db != nil {
		return r.db, func() {}, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, func() { db.Close() }, nil
}
