package strategy

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// MigrationFunc transforms a document in place from one schema version
// to the next.
type MigrationFunc func(*Document) error

// Migration is a single schema migration step.
type Migration struct {
	FromVersion string
	ToVersion   string
	Name        string
	Migrate     MigrationFunc
}

// registeredMigrations holds every migration, oldest first. The chain
// must be contiguous: each step's ToVersion is the next step's
// FromVersion. Both properties are checked at init so a bad chain fails
// at startup rather than on the first import.
var registeredMigrations []Migration

func init() {
	registerMigrations()
}

func registerMigrations() {
	registeredMigrations = []Migration{
		{
			FromVersion: "1.0",
			ToVersion:   "1.1",
			Name:        "Split risk spec out of execution settings",
			Migrate:     migrateFrom10To11,
		},
	}

	for _, m := range registeredMigrations {
		if _, err := parseVersion(m.FromVersion); err != nil {
			panic(fmt.Sprintf("invalid FromVersion %q in migration %q: %v", m.FromVersion, m.Name, err))
		}
		if _, err := parseVersion(m.ToVersion); err != nil {
			panic(fmt.Sprintf("invalid ToVersion %q in migration %q: %v", m.ToVersion, m.Name, err))
		}
	}

	for i := 1; i < len(registeredMigrations); i++ {
		prevTo := registeredMigrations[i-1].ToVersion
		currFrom := registeredMigrations[i].FromVersion
		if prevTo != currFrom {
			panic(fmt.Sprintf("migration gap: %q ends at %s but %q starts at %s",
				registeredMigrations[i-1].Name, prevTo, registeredMigrations[i].Name, currFrom))
		}
	}
}

// migrateFrom10To11 upgrades a document from schema 1.0 to 1.1. 1.0
// documents carried max_positions inline with no cooldown support; 1.1
// introduced the dedicated risk spec with both. No field is moved:
// Document has no inline max_positions, so such a value in a 1.0 file is
// dropped when parsed. The step sets Source to "migrated" when empty and
// clamps negative risk values to zero.
func migrateFrom10To11(d *Document) error {
	if d.Metadata.Source == "" {
		d.Metadata.Source = "migrated"
	}
	if d.Risk.MaxPositions < 0 {
		d.Risk.MaxPositions = 0
	}
	if d.Risk.CooldownMinutes < 0 {
		d.Risk.CooldownMinutes = 0
	}
	return nil
}

// parseVersion parses a version string, tolerating major.minor form by
// appending a zero patch.
func parseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(v)
	if err == nil {
		return parsed, nil
	}
	parsed, err = semver.NewVersion(v + ".0")
	if err != nil {
		return nil, fmt.Errorf("invalid version: %s", v)
	}
	return parsed, nil
}

// GetMigrationPath returns the migrations needed to upgrade fromVersion
// to toVersion, in order. Nil means nothing to do.
func GetMigrationPath(fromVersion, toVersion string) ([]Migration, error) {
	from, err := parseVersion(fromVersion)
	if err != nil {
		return nil, err
	}
	to, err := parseVersion(toVersion)
	if err != nil {
		return nil, err
	}

	if !from.LessThan(to) {
		return nil, nil
	}

	var path []Migration
	for _, m := range registeredMigrations {
		// Versions are validated at init, so parsing cannot fail here.
		migFrom := semver.MustParse(mustPatch(m.FromVersion))
		migTo := semver.MustParse(mustPatch(m.ToVersion))

		startsAtOrAfter := !migFrom.LessThan(from)
		endsAtOrBefore := !migTo.GreaterThan(to)
		if startsAtOrAfter && endsAtOrBefore {
			path = append(path, m)
		}
	}

	sort.Slice(path, func(i, j int) bool {
		vi := semver.MustParse(mustPatch(path[i].FromVersion))
		vj := semver.MustParse(mustPatch(path[j].FromVersion))
		return vi.LessThan(vj)
	})

	return path, nil
}

func mustPatch(v string) string {
	if _, err := semver.NewVersion(v); err == nil {
		return v
	}
	return v + ".0"
}

// Migrate upgrades a document in place to the current schema version.
func Migrate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("strategy: document cannot be nil")
	}
	if doc.Metadata.SchemaVersion == SchemaVersion {
		return nil
	}

	current, err := parseVersion(doc.Metadata.SchemaVersion)
	if err != nil {
		return fmt.Errorf("strategy: invalid schema version: %s", doc.Metadata.SchemaVersion)
	}
	target, err := parseVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("strategy: invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("strategy: document schema version %s is newer than supported version %s",
			doc.Metadata.SchemaVersion, SchemaVersion)
	}

	path, err := GetMigrationPath(doc.Metadata.SchemaVersion, SchemaVersion)
	if err != nil {
		return err
	}
	for _, m := range path {
		if err := m.Migrate(doc); err != nil {
			return fmt.Errorf("strategy: migration %q failed: %w", m.Name, err)
		}
	}

	doc.Metadata.SchemaVersion = SchemaVersion
	return nil
}

// CheckCompatibility reports whether a document can be migrated to the
// current schema version.
func CheckCompatibility(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("strategy: document cannot be nil")
	}
	if doc.Metadata.SchemaVersion == "" {
		return fmt.Errorf("strategy: missing schema version")
	}

	current, err := parseVersion(doc.Metadata.SchemaVersion)
	if err != nil {
		return fmt.Errorf("strategy: invalid schema version: %s", doc.Metadata.SchemaVersion)
	}
	target, err := parseVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("strategy: invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("strategy: document requires schema version %s, but only %s is supported",
			doc.Metadata.SchemaVersion, SchemaVersion)
	}
	if current.LessThan(target) && current.Major() != target.Major() {
		return fmt.Errorf("strategy: no migration path from version %s to %s",
			doc.Metadata.SchemaVersion, SchemaVersion)
	}
	return nil
}

// CompareVersions compares two version strings: -1 if a < b, 0 if equal,
// 1 if a > b.
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// IsVersionSupported reports whether a schema version can be imported,
// matching on major.minor so patch releases stay compatible.
func IsVersionSupported(version string) bool {
	for _, v := range SupportedSchemaVersions {
		if v == version {
			return true
		}
	}

	v, err := parseVersion(version)
	if err != nil {
		return false
	}
	for _, supported := range SupportedSchemaVersions {
		sv, err := parseVersion(supported)
		if err != nil {
			continue
		}
		if v.Major() == sv.Major() && v.Minor() == sv.Minor() {
			return true
		}
	}
	return false
}

// VersionInfo summarizes a document's schema compatibility.
type VersionInfo struct {
	SchemaVersion     string `json:"schema_version"`
	StrategyVersion   string `json:"strategy_version,omitempty"`
	IsCompatible      bool   `json:"is_compatible"`
	RequiresMigration bool   `json:"requires_migration"`
	MigrationPath     string `json:"migration_path,omitempty"`
}

// GetVersionInfo returns version information for a document.
func GetVersionInfo(doc *Document) (*VersionInfo, error) {
	if doc == nil {
		return nil, fmt.Errorf("strategy: document cannot be nil")
	}

	info := &VersionInfo{
		SchemaVersion:   doc.Metadata.SchemaVersion,
		StrategyVersion: doc.Metadata.Version,
	}

	info.IsCompatible = CheckCompatibility(doc) == nil

	if doc.Metadata.SchemaVersion != SchemaVersion {
		cmp, err := CompareVersions(doc.Metadata.SchemaVersion, SchemaVersion)
		if err == nil && cmp < 0 {
			info.RequiresMigration = true
			info.MigrationPath = fmt.Sprintf("%s -> %s", doc.Metadata.SchemaVersion, SchemaVersion)
		}
	}

	return info, nil
}
