// Package relational implements the relational-store simulator (spec §4.4
// preamble / §8-C "Relational batch with rollback"): statement pass-through
// against a minimal in-memory table engine. Per the Non-goals ("no
// schema-level query planning... beyond statement pass-through") this is
// deliberately not a query planner — it recognizes exactly the statement
// shapes a D1-style binding issues (CREATE TABLE, INSERT, SELECT, DELETE)
// and executes them literally.
package relational

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/localdev/hostd/internal/emuerr"
)

// Row is one table row keyed by column name.
type Row map[string]interface{}

// Table is one in-memory table: an ordered column list plus its rows.
type Table struct {
	Columns    []string
	PrimaryKey string
	Rows       []Row
}

func (t *Table) clone() *Table {
	cols := append([]string(nil), t.Columns...)
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		rc := make(Row, len(r))
		for k, v := range r {
			rc[k] = v
		}
		rows[i] = rc
	}
	return &Table{Columns: cols, PrimaryKey: t.PrimaryKey, Rows: rows}
}

// Database is one relational-store binding's state.
type Database struct {
	tables map[string]*Table
}

func NewDatabase() *Database {
	return &Database{tables: make(map[string]*Table)}
}

func (d *Database) snapshot() map[string]*Table {
	out := make(map[string]*Table, len(d.tables))
	for name, t := range d.tables {
		out[name] = t.clone()
	}
	return out
}

// Exec runs one statement against the live state (no rollback semantics;
// use Batch for atomic multi-statement execution).
func (d *Database) Exec(stmt string) error {
	return d.exec(stmt)
}

// Query runs a SELECT and returns the matching rows projected to the
// requested columns.
func (d *Database) Query(stmt string) ([]Row, error) {
	return d.query(stmt)
}

// Batch executes every statement in order against a private copy of the
// database state; if any statement fails, the whole batch is discarded and
// the database is left exactly as it was (spec §8-C).
func (d *Database) Batch(stmts []string) error {
	original := d.tables
	working := &Database{tables: d.snapshot()}

	for _, stmt := range stmts {
		if err := working.exec(stmt); err != nil {
			d.tables = original // discard the working copy entirely
			return emuerr.Wrap(emuerr.KindStorage, emuerr.CodeSchemaInvalid, err)
		}
	}
	d.tables = working.tables
	return nil
}

var (
	createTableRe = regexp.MustCompile(`(?i)^CREATE TABLE\s+(\w+)\s*\((.+)\)\s*$`)
	insertRe      = regexp.MustCompile(`(?i)^INSERT INTO\s+(\w+)\s*(?:\(([^)]*)\))?\s*VALUES\s*\((.+)\)\s*$`)
	deleteRe      = regexp.MustCompile(`(?i)^DELETE FROM\s+(\w+)\s*(?:WHERE\s+(\w+)\s*=\s*(.+))?\s*$`)
	selectRe      = regexp.MustCompile(`(?i)^SELECT\s+(.+?)\s+FROM\s+(\w+)\s*(?:WHERE\s+(\w+)\s*=\s*(.+))?\s*$`)
)

func (d *Database) exec(stmt string) error {
	stmt = strings.TrimSpace(stmt)

	if m := createTableRe.FindStringSubmatch(stmt); m != nil {
		return d.createTable(m[1], m[2])
	}
	if m := insertRe.FindStringSubmatch(stmt); m != nil {
		return d.insert(m[1], m[2], m[3])
	}
	if m := deleteRe.FindStringSubmatch(stmt); m != nil {
		return d.delete(m[1], m[2], m[3])
	}
	return fmt.Errorf("relational: unrecognized statement: %q", stmt)
}

func (d *Database) createTable(name, colsSpec string) error {
	if _, exists := d.tables[name]; exists {
		return fmt.Errorf("relational: table %q already exists", name)
	}
	var cols []string
	var pk string
	for _, part := range strings.Split(colsSpec, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		colName := fields[0]
		cols = append(cols, colName)
		if strings.Contains(strings.ToUpper(part), "PRIMARY KEY") {
			pk = colName
		}
	}
	d.tables[name] = &Table{Columns: cols, PrimaryKey: pk}
	return nil
}

func (d *Database) insert(name, colsSpec, valuesSpec string) error {
	table, ok := d.tables[name]
	if !ok {
		return fmt.Errorf("relational: no such table %q", name)
	}

	cols := table.Columns
	if strings.TrimSpace(colsSpec) != "" {
		cols = splitTrim(colsSpec)
	}
	values := splitValues(valuesSpec)
	if len(cols) != len(values) {
		return fmt.Errorf("relational: column/value count mismatch inserting into %q", name)
	}

	row := make(Row, len(cols))
	for i, c := range cols {
		row[c] = parseLiteral(values[i])
	}

	if table.PrimaryKey != "" {
		for _, existing := range table.Rows {
			if existing[table.PrimaryKey] == row[table.PrimaryKey] {
				return fmt.Errorf("relational: duplicate primary key %v in %q", row[table.PrimaryKey], name)
			}
		}
	}

	table.Rows = append(table.Rows, row)
	return nil
}

func (d *Database) delete(name, whereCol, whereVal string) error {
	table, ok := d.tables[name]
	if !ok {
		return fmt.Errorf("relational: no such table %q", name)
	}
	if whereCol == "" {
		table.Rows = nil
		return nil
	}
	val := parseLiteral(strings.TrimSpace(whereVal))
	kept := table.Rows[:0]
	for _, r := range table.Rows {
		if r[whereCol] != val {
			kept = append(kept, r)
		}
	}
	table.Rows = kept
	return nil
}

func (d *Database) query(stmt string) ([]Row, error) {
	m := selectRe.FindStringSubmatch(strings.TrimSpace(stmt))
	if m == nil {
		return nil, fmt.Errorf("relational: unrecognized statement: %q", stmt)
	}
	colsSpec, name, whereCol, whereVal := m[1], m[2], m[3], m[4]

	table, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("relational: no such table %q", name)
	}

	var cols []string
	if strings.TrimSpace(colsSpec) == "*" {
		cols = table.Columns
	} else {
		cols = splitTrim(colsSpec)
	}

	var whereValParsed interface{}
	if whereCol != "" {
		whereValParsed = parseLiteral(strings.TrimSpace(whereVal))
	}

	var out []Row
	for _, r := range table.Rows {
		if whereCol != "" && r[whereCol] != whereValParsed {
			continue
		}
		projected := make(Row, len(cols))
		for _, c := range cols {
			projected[c] = r[c]
		}
		out = append(out, projected)
	}
	return out, nil
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// splitValues splits a VALUES(...) payload on top-level commas, respecting
// single-quoted string literals that may themselves contain commas.
func splitValues(s string) []string {
	var out []string
	var cur strings.Builder
	inString := false
	for _, r := range s {
		switch {
		case r == '\'':
			inString = !inString
			cur.WriteRune(r)
		case r == ',' && !inString:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 || len(out) > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}

func parseLiteral(lit string) interface{} {
	lit = strings.TrimSpace(lit)
	if strings.HasPrefix(lit, "'") && strings.HasSuffix(lit, "'") && len(lit) >= 2 {
		return lit[1 : len(lit)-1]
	}
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		return f
	}
	return lit
}
