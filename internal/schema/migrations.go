package schema

import "github.com/mverte/equipcore/internal/migrate"

// TargetVersion is the schema version this build of the application
// requires. Startup migrates the database to exactly this version.
const TargetVersion = 6

// Migrations returns the released migration set. Keys are release-frozen.
func Migrations() migrate.Set {
	return migrate.Set{
		1: migrate.SQL(`
			CREATE TABLE equipment (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				serial_number TEXT NOT NULL UNIQUE,
				category TEXT NOT NULL,
				location TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'active'
					CHECK (status IN ('active', 'maintenance', 'retired')),
				purchase_date TEXT,
				created_at TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`,
		),
		2: migrate.SQL(`
			CREATE TABLE inspections (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				equipment_id INTEGER NOT NULL
					REFERENCES equipment(id) ON DELETE CASCADE,
				inspected_at TEXT NOT NULL,
				inspector TEXT NOT NULL,
				result TEXT NOT NULL CHECK (result IN ('pass', 'fail')),
				priority TEXT CHECK (priority IN ('low', 'medium', 'high')),
				component TEXT,
				notes TEXT,
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`,
			`CREATE INDEX idx_inspections_equipment ON inspections(equipment_id)`,
		),
		3: migrate.SQL(`
			CREATE TABLE documents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				equipment_id INTEGER NOT NULL
					REFERENCES equipment(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				file_path TEXT NOT NULL UNIQUE,
				kind TEXT NOT NULL
					CHECK (kind IN ('manual', 'certificate', 'report', 'photo')),
				added_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`,
			`CREATE INDEX idx_documents_equipment ON documents(equipment_id)`,
		),
		4: migrate.SQL(`
			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		),
		// 5 reserved, never shipped.
		6: migrate.SQL(
			`ALTER TABLE equipment ADD COLUMN next_due TEXT`,
			`CREATE INDEX idx_inspections_result ON inspections(result)`,
		),
	}
}
