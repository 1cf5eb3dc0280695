package schema

import "github.com/mverte/equipcore/internal/registry"

// Domain enums. These are the only values the catalog validators accept;
// the table CHECK constraints are the backstop, not the gate.
var (
	EquipmentStatuses    = []string{"active", "maintenance", "retired"}
	InspectionResults    = []string{"pass", "fail"}
	InspectionPriorities = []string{"low", "medium", "high"}
	DocumentKinds        = []string{"manual", "certificate", "report", "photo"}
)

// Catalog returns the full operation catalog. managedDocsDir, when
// non-empty, restricts documents.create to paths inside the managed
// documents directory.
func Catalog(managedDocsDir string) []registry.Operation {
	ops := equipmentOps()
	ops = append(ops, inspectionOps()...)
	ops = append(ops, documentOps(managedDocsDir)...)
	ops = append(ops, settingsOps()...)
	return ops
}

// optional applies pred only when the argument is present and non-nil.
func optional(v any, pred func(any) bool) bool {
	if v == nil {
		return true
	}
	return pred(v)
}

func equipmentOps() []registry.Operation {
	return []registry.Operation{
		{
			Domain: "equipment",
			Name:   "create",
			Statement: `INSERT INTO equipment
				(name, serial_number, category, location, status, purchase_date, next_due)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
			Params: []string{"name", "serial_number", "category", "location", "status", "purchase_date", "next_due"},
			Shape:  registry.ShapeWrite,
			Validate: func(a registry.Args) bool {
				return registry.NonEmptyString(a["name"]) &&
					registry.NonEmptyString(a["serial_number"]) &&
					registry.ValidIdentifier(asString(a["serial_number"])) &&
					registry.NonEmptyString(a["category"]) &&
					registry.OneOf(a["status"], EquipmentStatuses...) &&
					optional(a["purchase_date"], isDate) &&
					optional(a["next_due"], isDate)
			},
		},
		{
			Domain: "equipment",
			Name:   "update",
			Statement: `UPDATE equipment
				SET name = ?, category = ?, location = ?, status = ?, next_due = ?,
					updated_at = datetime('now')
				WHERE id = ?`,
			Params: []string{"name", "category", "location", "status", "next_due", "id"},
			Shape:  registry.ShapeWrite,
			Validate: func(a registry.Args) bool {
				return registry.NonEmptyString(a["name"]) &&
					registry.NonEmptyString(a["category"]) &&
					registry.OneOf(a["status"], EquipmentStatuses...) &&
					optional(a["next_due"], isDate) &&
					registry.PositiveInt(a["id"])
			},
		},
		{
			Domain:    "equipment",
			Name:      "delete",
			Statement: `DELETE FROM equipment WHERE id = ?`,
			Params:    []string{"id"},
			Shape:     registry.ShapeWrite,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["id"])
			},
		},
		{
			Domain: "equipment",
			Name:   "get",
			Statement: `SELECT id, name, serial_number, category, location, status,
					purchase_date, next_due, created_at, updated_at
				FROM equipment WHERE id = ?`,
			Params: []string{"id"},
			Shape:  registry.ShapeOne,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["id"])
			},
		},
		{
			Domain: "equipment",
			Name:   "list",
			Statement: `SELECT id, name, serial_number, category, location, status,
					purchase_date, next_due, created_at, updated_at
				FROM equipment ORDER BY name, id`,
			Params:   []string{},
			Shape:    registry.ShapeMany,
			Validate: func(registry.Args) bool { return true },
		},
		{
			Domain: "equipment",
			Name:   "list_by_status",
			Statement: `SELECT id, name, serial_number, category, location, status,
					purchase_date, next_due, created_at, updated_at
				FROM equipment WHERE status = ? ORDER BY name, id`,
			Params: []string{"status"},
			Shape:  registry.ShapeMany,
			Validate: func(a registry.Args) bool {
				return registry.OneOf(a["status"], EquipmentStatuses...)
			},
		},
		{
			Domain:    "equipment",
			Name:      "count",
			Statement: `SELECT COUNT(*) FROM equipment`,
			Params:    []string{},
			Shape:     registry.ShapeScalar,
			Validate:  func(registry.Args) bool { return true },
		},
	}
}

func inspectionOps() []registry.Operation {
	return []registry.Operation{
		{
			Domain: "inspections",
			Name:   "create",
			Statement: `INSERT INTO inspections
				(equipment_id, inspected_at, inspector, result, priority, component, notes)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
			Params: []string{"equipment_id", "inspected_at", "inspector", "result", "priority", "component", "notes"},
			Shape:  registry.ShapeWrite,
			Validate: func(a registry.Args) bool {
				// Priority, component and notes only carry meaning on a
				// failed inspection; whether they are required then is
				// the caller's rule. Format is checked here either way.
				return registry.PositiveInt(a["equipment_id"]) &&
					registry.NonEmptyString(a["inspector"]) &&
					isDate(a["inspected_at"]) &&
					registry.OneOf(a["result"], InspectionResults...) &&
					optional(a["priority"], func(v any) bool {
						return registry.OneOf(v, InspectionPriorities...)
					}) &&
					optional(a["component"], registry.NonEmptyString)
			},
		},
		{
			Domain: "inspections",
			Name:   "list_for_equipment",
			Statement: `SELECT id, equipment_id, inspected_at, inspector, result,
					priority, component, notes, created_at
				FROM inspections WHERE equipment_id = ?
				ORDER BY inspected_at DESC, id DESC`,
			Params: []string{"equipment_id"},
			Shape:  registry.ShapeMany,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["equipment_id"])
			},
		},
		{
			Domain: "inspections",
			Name:   "latest_for_equipment",
			Statement: `SELECT id, equipment_id, inspected_at, inspector, result,
					priority, component, notes, created_at
				FROM inspections WHERE equipment_id = ?
				ORDER BY inspected_at DESC, id DESC LIMIT 1`,
			Params: []string{"equipment_id"},
			Shape:  registry.ShapeOne,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["equipment_id"])
			},
		},
		{
			Domain:    "inspections",
			Name:      "delete",
			Statement: `DELETE FROM inspections WHERE id = ?`,
			Params:    []string{"id"},
			Shape:     registry.ShapeWrite,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["id"])
			},
		},
	}
}

func documentOps(managedDocsDir string) []registry.Operation {
	return []registry.Operation{
		{
			Domain: "documents",
			Name:   "create",
			Statement: `INSERT INTO documents (equipment_id, title, file_path, kind)
				VALUES (?, ?, ?, ?)`,
			Params: []string{"equipment_id", "title", "file_path", "kind"},
			Shape:  registry.ShapeWrite,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["equipment_id"]) &&
					registry.NonEmptyString(a["title"]) &&
					registry.SafePath(asString(a["file_path"]), managedDocsDir) &&
					registry.OneOf(a["kind"], DocumentKinds...)
			},
		},
		{
			Domain: "documents",
			Name:   "list_for_equipment",
			Statement: `SELECT id, equipment_id, title, file_path, kind, added_at
				FROM documents WHERE equipment_id = ? ORDER BY added_at DESC, id DESC`,
			Params: []string{"equipment_id"},
			Shape:  registry.ShapeMany,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["equipment_id"])
			},
		},
		{
			Domain: "documents",
			Name:   "get",
			Statement: `SELECT id, equipment_id, title, file_path, kind, added_at
				FROM documents WHERE id = ?`,
			Params: []string{"id"},
			Shape:  registry.ShapeOne,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["id"])
			},
		},
		{
			Domain:    "documents",
			Name:      "delete",
			Statement: `DELETE FROM documents WHERE id = ?`,
			Params:    []string{"id"},
			Shape:     registry.ShapeWrite,
			Validate: func(a registry.Args) bool {
				return registry.PositiveInt(a["id"])
			},
		},
	}
}

func settingsOps() []registry.Operation {
	return []registry.Operation{
		{
			Domain:    "settings",
			Name:      "get",
			Statement: `SELECT value FROM settings WHERE key = ?`,
			Params:    []string{"key"},
			Shape:     registry.ShapeScalar,
			Validate: func(a registry.Args) bool {
				return registry.ValidIdentifier(asString(a["key"]))
			},
		},
		{
			Domain: "settings",
			Name:   "set",
			Statement: `INSERT INTO settings (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			Params: []string{"key", "value"},
			Shape:  registry.ShapeWrite,
			Validate: func(a registry.Args) bool {
				_, isStr := a["value"].(string)
				return registry.ValidIdentifier(asString(a["key"])) && isStr
			},
		},
	}
}

func isDate(v any) bool {
	s, ok := v.(string)
	return ok && registry.ValidDate(s)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
