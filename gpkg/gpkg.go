// Package gpkg backs featnum.Layer with a GeoPackage file: a SQLite
// database following the gpkg_* metadata tables, with geometries stored
// as GeoPackage binary blobs. Attribute updates happen in place inside a
// single transaction.
package gpkg

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb/geojson"

	"github.com/gisops/featnum"
)

// Layer is a GeoPackage feature table opened for reading and numbering
// edits.
type Layer struct {
	db      *sql.DB
	path    string
	table   string
	geomCol string
	srsID   int32
	fields  []featnum.Field
}

// Open opens the feature table named table in the GeoPackage at path.
// When table is empty and the file holds exactly one feature table, that
// table is used.
func Open(path, table string) (*Layer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", featnum.ErrNoDataSource, err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("gpkg: open %s: %w", path, err)
	}

	l := &Layer{db: db, path: path, table: table}
	if err := l.loadMetadata(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// loadMetadata resolves the feature table, its geometry column, and the
// attribute schema from the gpkg_* tables.
func (l *Layer) loadMetadata() error {
	if l.table == "" {
		rows, err := l.db.Query(
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features'`)
		if err != nil {
			return fmt.Errorf("gpkg: read gpkg_contents: %w", err)
		}
		defer rows.Close()

		var tables []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			tables = append(tables, name)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(tables) != 1 {
			return fmt.Errorf("%w: %d feature tables in %s, layer name required",
				featnum.ErrLayerNotFound, len(tables), l.path)
		}
		l.table = tables[0]
	}

	err := l.db.QueryRow(
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`,
		l.table).Scan(&l.geomCol, &l.srsID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %q has no geometry column registered", featnum.ErrLayerNotFound, l.table)
	}
	if err != nil {
		return fmt.Errorf("gpkg: read gpkg_geometry_columns: %w", err)
	}

	return l.loadFields()
}

// loadFields reads the attribute schema via table_info, excluding the
// geometry column.
func (l *Layer) loadFields() error {
	rows, err := l.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(l.table)))
	if err != nil {
		return fmt.Errorf("gpkg: table_info %s: %w", l.table, err)
	}
	defer rows.Close()

	l.fields = l.fields[:0]
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == l.geomCol {
			continue
		}
		l.fields = append(l.fields, featnum.Field{Name: name, Type: fieldType(typ)})
	}
	return rows.Err()
}

// fieldType maps a SQLite declared type to the portable field type names.
func fieldType(declared string) featnum.FieldType {
	switch strings.ToUpper(declared) {
	case "BOOLEAN":
		return featnum.FieldBool
	case "SMALLINT":
		return featnum.FieldShort
	case "MEDIUMINT", "INT":
		return featnum.FieldInteger
	case "INTEGER", "BIGINT":
		return featnum.FieldLong
	case "FLOAT":
		return featnum.FieldFloat
	case "REAL", "DOUBLE":
		return featnum.FieldDouble
	case "DATE", "DATETIME":
		return featnum.FieldDate
	case "BLOB":
		return featnum.FieldBinary
	default:
		return featnum.FieldString
	}
}

// Name returns the feature table name.
func (l *Layer) Name() string {
	return l.table
}

// Fields returns the attribute schema.
func (l *Layer) Fields() ([]featnum.Field, error) {
	out := make([]featnum.Field, len(l.fields))
	copy(out, l.fields)
	return out, nil
}

// Select returns the features matched by sel, identified by idField, with
// every attribute loaded into Properties. Identifier and spatial filters
// both apply after decoding, against the canonical identifier form, so
// the same rendering matches regardless of the column's storage type.
func (l *Layer) Select(sel featnum.Selection, idField string) ([]featnum.Feature, error) {
	if !l.hasField(idField) {
		return nil, fmt.Errorf("%w: %q in %s", featnum.ErrMissingIDField, idField, l.table)
	}

	cols := make([]string, 0, len(l.fields)+1)
	cols = append(cols, quoteIdent(l.geomCol))
	for _, f := range l.fields {
		cols = append(cols, quoteIdent(f.Name))
	}

	var wanted map[string]bool
	if len(sel.IDs) > 0 {
		wanted = make(map[string]bool, len(sel.IDs))
		for _, id := range sel.IDs {
			wanted[id] = true
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(cols, ", "), quoteIdent(l.table))
	rows, err := l.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("gpkg: select %s: %w", l.table, err)
	}
	defer rows.Close()

	var features []featnum.Feature
	for rows.Next() {
		dest := make([]interface{}, len(cols))
		var blob []byte
		dest[0] = &blob
		values := make([]interface{}, len(l.fields))
		for i := range values {
			dest[i+1] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		props := make(geojson.Properties, len(l.fields))
		for i, f := range l.fields {
			// The driver surfaces TEXT as raw bytes.
			if b, ok := values[i].([]byte); ok {
				props[f.Name] = string(b)
			} else {
				props[f.Name] = values[i]
			}
		}

		id, ok := featnum.CanonicalID(props[idField])
		if !ok {
			return nil, fmt.Errorf("%w: %q has non-scalar value %T",
				featnum.ErrMissingIDField, idField, props[idField])
		}
		if wanted != nil && !wanted[id] {
			continue
		}

		g, _, err := DecodeGeometry(blob)
		if err != nil {
			return nil, err
		}
		if sel.Bound != nil && (g == nil || !sel.Bound.Intersects(g.Bound())) {
			continue
		}

		features = append(features, featnum.Feature{ID: id, Geometry: g, Properties: props})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return features, nil
}

// UpdateNumbering writes the assignments into field inside one
// transaction. Rows are resolved by canonicalizing the identifier column
// in Go and updating by rowid, so the match uses the same rendering
// Select produced regardless of the column's storage type. An assignment
// whose identifier matches no row aborts the transaction.
func (l *Layer) UpdateNumbering(field, idField string, assignments []featnum.Assignment) error {
	if !l.hasField(field) {
		return fmt.Errorf("%w: %q in %s", featnum.ErrFieldNotFound, field, l.table)
	}
	if !l.hasField(idField) {
		return fmt.Errorf("%w: %q in %s", featnum.ErrMissingIDField, idField, l.table)
	}

	rowids, err := l.rowidsByID(idField)
	if err != nil {
		return err
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", featnum.ErrWriteRejected, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`UPDATE %s SET %s = ? WHERE rowid = ?`,
		quoteIdent(l.table), quoteIdent(field)))
	if err != nil {
		return fmt.Errorf("%w: %v", featnum.ErrWriteRejected, err)
	}
	defer stmt.Close()

	for _, a := range assignments {
		rowid, ok := rowids[a.ID]
		if !ok {
			return fmt.Errorf("%w: no feature with %s = %q", featnum.ErrWriteRejected, idField, a.ID)
		}
		if _, err := stmt.Exec(a.Number, rowid); err != nil {
			return fmt.Errorf("%w: %s: %v", featnum.ErrWriteRejected, a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", featnum.ErrWriteRejected, err)
	}
	return nil
}

// rowidsByID maps each canonical identifier value to its rowid.
func (l *Layer) rowidsByID(idField string) (map[string]int64, error) {
	rows, err := l.db.Query(fmt.Sprintf(`SELECT rowid, %s FROM %s`,
		quoteIdent(idField), quoteIdent(l.table)))
	if err != nil {
		return nil, fmt.Errorf("gpkg: select %s: %w", l.table, err)
	}
	defer rows.Close()

	rowids := make(map[string]int64)
	for rows.Next() {
		var (
			rowid int64
			raw   interface{}
		)
		if err := rows.Scan(&rowid, &raw); err != nil {
			return nil, err
		}
		if id, ok := featnum.CanonicalID(raw); ok {
			rowids[id] = rowid
		}
	}
	return rowids, rows.Err()
}

// Close closes the underlying database.
func (l *Layer) Close() error {
	return l.db.Close()
}

func (l *Layer) hasField(name string) bool {
	for _, f := range l.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// quoteIdent quotes a SQL identifier so table and column names coming from
// user input cannot break out of their position.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// sqlType maps a portable field type back to a SQLite declared type.
func sqlType(t featnum.FieldType) string {
	switch t {
	case featnum.FieldBool:
		return "BOOLEAN"
	case featnum.FieldShort:
		return "SMALLINT"
	case featnum.FieldInteger:
		return "MEDIUMINT"
	case featnum.FieldLong:
		return "INTEGER"
	case featnum.FieldFloat:
		return "FLOAT"
	case featnum.FieldDouble:
		return "DOUBLE"
	case featnum.FieldDate:
		return "DATETIME"
	case featnum.FieldBinary:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Create builds a new single-table GeoPackage at path with the given
// attribute schema and features. Geometries are stored with the given
// srs_id. Each feature's attribute values are taken from its Properties
// by field name.
func Create(path, table string, srsID int32, fields []featnum.Field, features []featnum.Feature) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("gpkg: create %s: %w", path, err)
	}
	defer db.Close()

	if err := initSchema(db, table, srsID, fields); err != nil {
		return err
	}
	return insertFeatures(db, table, srsID, fields, features)
}

// initSchema creates the required gpkg_* tables, the spatial reference
// seed rows, and the feature table itself.
func initSchema(db *sql.DB, table string, srsID int32, fields []featnum.Field) error {
	schema := `
	PRAGMA application_id = 1196444487;
	PRAGMA user_version = 10300;

	CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	);

	CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
	);

	INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES
		('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
		('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
		('WGS 84', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]', 'WGS 84 geodetic'),
		('WGS 84 / Pseudo-Mercator', 3857, 'EPSG', 3857, 'PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]]],PROJECTION["Mercator_1SP"],UNIT["metre",1]]', 'Web mapping projection');
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("gpkg: init schema: %w", err)
	}

	cols := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT", "geom BLOB"}
	for _, f := range fields {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), sqlType(f.Type)))
	}
	create := fmt.Sprintf(`CREATE TABLE %s (%s)`, quoteIdent(table), strings.Join(cols, ", "))
	if _, err := db.Exec(create); err != nil {
		return fmt.Errorf("gpkg: create table %s: %w", table, err)
	}

	if _, err := db.Exec(
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, 'features', ?, ?)`,
		table, table, srsID); err != nil {
		return fmt.Errorf("gpkg: register contents: %w", err)
	}
	if _, err := db.Exec(
		`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'GEOMETRY', ?, 0, 0)`,
		table, srsID); err != nil {
		return fmt.Errorf("gpkg: register geometry column: %w", err)
	}
	return nil
}

func insertFeatures(db *sql.DB, table string, srsID int32, fields []featnum.Field, features []featnum.Feature) error {
	names := make([]string, 0, len(fields)+1)
	names = append(names, "geom")
	for _, f := range fields {
		names = append(names, quoteIdent(f.Name))
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(table), strings.Join(names, ", "), placeholders(len(names))))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range features {
		blob, err := EncodeGeometry(f.Geometry, srsID)
		if err != nil {
			return err
		}
		args := make([]interface{}, 0, len(names))
		args = append(args, blob)
		for _, fld := range fields {
			args = append(args, toSQLValue(f.Properties[fld.Name]))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("gpkg: insert feature: %w", err)
		}
	}

	return tx.Commit()
}

// toSQLValue narrows property values to types the driver accepts.
func toSQLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return fmt.Sprint(val)
	}
}

var _ featnum.Layer = (*Layer)(nil)
