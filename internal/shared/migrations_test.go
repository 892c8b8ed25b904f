package shared

import (
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("parseMigrationName", func(t *testing.T) {
		tc := []struct {
			file      string
			version   int
			name      string
			direction string
			ok        bool
		}{
			{"0000_create_kv_store_up.sql", 0, "create_kv_store", "up", true},
			{"0001_create_task_events_down.sql", 1, "create_task_events", "down", true},
			{"0001_create_task_events.sql", 0, "", "", false},
			{"readme.md", 0, "", "", false},
			{"abc_thing_up.sql", 0, "", "", false},
		}

		for _, tt := range tc {
			t.Run(tt.file, func(t *testing.T) {
				version, name, direction, ok := parseMigrationName(tt.file)
				if ok != tt.ok {
					t.Fatalf("ok = %v, want %v", ok, tt.ok)
				}
				if version != tt.version || name != tt.name || direction != tt.direction {
					t.Errorf("got (%d, %q, %q), want (%d, %q, %q)", version, name, direction, tt.version, tt.name, tt.direction)
				}
			})
		}
	})

	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" || m.Down == "" {
				t.Errorf("migration version %d missing SQL", m.Version)
			}
			if m.Name == "" {
				t.Errorf("migration version %d missing name", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		for _, table := range []string{"kv_store", "task_events"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		if _, err := db.Exec("SELECT 1 FROM task_events LIMIT 1"); err == nil {
			t.Error("task_events should be dropped after rollback")
		}
		if _, err := db.Exec("SELECT 1 FROM kv_store LIMIT 1"); err != nil {
			t.Errorf("kv_store should survive a single rollback: %v", err)
		}

		statuses, err := Migrations(db)
		if err != nil {
			t.Fatalf("failed to list migrations: %v", err)
		}
		if statuses[len(statuses)-1].Applied {
			t.Error("last migration should be pending after rollback")
		}
	})

	t.Run("Rollback Without Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RollbackMigration(db); err == nil {
			t.Error("expected error rolling back an empty database")
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})
}
