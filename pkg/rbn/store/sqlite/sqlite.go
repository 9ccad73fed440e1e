package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite dataset with WAL mode enabled. The path
// ":memory:" opens a private in-memory dataset.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS functor_ranges (
	functor TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	vals TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS populations (
	name TEXT NOT NULL,
	position INTEGER NOT NULL,
	constant TEXT NOT NULL,
	PRIMARY KEY(name, position)
);

CREATE TABLE IF NOT EXISTS facts (
	functor TEXT NOT NULL,
	args TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY(functor, args)
);

CREATE TABLE IF NOT EXISTS template_nodes (
	name TEXT PRIMARY KEY,
	functor TEXT NOT NULL,
	args TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS template_parents (
	node TEXT NOT NULL,
	parent TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY(node, parent),
	FOREIGN KEY(node) REFERENCES template_nodes(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	child TEXT NOT NULL,
	parents TEXT NOT NULL,
	prob REAL NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// PutRange declares a functor range
func (s *sqliteStore) PutRange(ctx context.Context, fr database.FunctorRange) error {
	vals, err := json.Marshal(fr.Values)
	if err != nil {
		return err
	}
	const stmt = `
INSERT INTO functor_ranges (functor, position, vals)
VALUES (?, (SELECT COUNT(*) FROM functor_ranges), ?)
ON CONFLICT(functor) DO UPDATE SET vals=excluded.vals;
`
	_, err = s.db.ExecContext(ctx, stmt, fr.Functor, string(vals))
	return err
}

// PutPopulation replaces a population's constants
func (s *sqliteStore) PutPopulation(ctx context.Context, name string, constants []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM populations WHERE name=?`, name); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO populations (name, position, constant) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range constants {
		if _, err := stmt.ExecContext(ctx, name, i, c); err != nil {
			return err
		}
	}
	if len(constants) == 0 {
		// an empty population is kept as a marker row
		if _, err := stmt.ExecContext(ctx, name, -1, ""); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutFact inserts or replaces a ground fact
func (s *sqliteStore) PutFact(ctx context.Context, f literal.Literal) error {
	if err := store.ValidateFact(f); err != nil {
		return err
	}
	args, err := json.Marshal(nonNil(f.Args))
	if err != nil {
		return err
	}
	v, _ := f.Value.Get()
	const stmt = `
INSERT INTO facts (functor, args, value) VALUES (?, ?, ?)
ON CONFLICT(functor, args) DO UPDATE SET value=excluded.value;
`
	_, err = s.db.ExecContext(ctx, stmt, f.Functor, string(args), v)
	return err
}

// PutNode inserts or replaces a template node and its parent list
func (s *sqliteStore) PutNode(ctx context.Context, name string, adj bayesnet.Adjacency) error {
	args, err := json.Marshal(nonNil(adj.Args))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsert = `
INSERT INTO template_nodes (name, functor, args) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET functor=excluded.functor, args=excluded.args;
`
	if _, err := tx.ExecContext(ctx, upsert, name, adj.Functor, string(args)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_parents WHERE node=?`, name); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO template_parents (node, parent, position) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, p := range adj.Parents {
		if _, err := stmt.ExecContext(ctx, name, p, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutRule appends a rule
func (s *sqliteStore) PutRule(ctx context.Context, cp cpt.CP) error {
	parents := make([]string, len(cp.Parents))
	for i, p := range cp.Parents {
		parents[i] = p.String()
	}
	pj, err := json.Marshal(parents)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules (child, parents, prob) VALUES (?, ?, ?)`,
		cp.Child.String(), string(pj), cp.Prob)
	return err
}

// Ranges returns the declared ranges in declaration order
func (s *sqliteStore) Ranges(ctx context.Context) ([]database.FunctorRange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT functor, vals FROM functor_ranges ORDER BY position, functor`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.FunctorRange
	for rows.Next() {
		var functor, vals string
		if err := rows.Scan(&functor, &vals); err != nil {
			return nil, err
		}
		fr := database.FunctorRange{Functor: functor}
		if err := json.Unmarshal([]byte(vals), &fr.Values); err != nil {
			return nil, fmt.Errorf("%w: range of %s: %v", internalerr.ErrIntegrity, functor, err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

// Populations reads every stored population
func (s *sqliteStore) Populations(ctx context.Context) (database.Populations, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, position, constant FROM populations ORDER BY name, position`)
	if err != nil {
		return database.Populations{}, err
	}
	defer rows.Close()

	pops := make(map[string][]string)
	for rows.Next() {
		var (
			name, constant string
			position       int
		)
		if err := rows.Scan(&name, &position, &constant); err != nil {
			return database.Populations{}, err
		}
		if position < 0 {
			if _, ok := pops[name]; !ok {
				pops[name] = []string{}
			}
			continue
		}
		pops[name] = append(pops[name], constant)
	}
	if err := rows.Err(); err != nil {
		return database.Populations{}, err
	}
	return store.BuildPopulations(pops)
}

// Facts returns the stored facts ordered by term
func (s *sqliteStore) Facts(ctx context.Context) ([]literal.Literal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT functor, args, value FROM facts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []literal.Literal
	for rows.Next() {
		var functor, args, value string
		if err := rows.Scan(&functor, &args, &value); err != nil {
			return nil, err
		}
		var as []string
		if err := json.Unmarshal([]byte(args), &as); err != nil {
			return nil, fmt.Errorf("%w: arguments of %s fact: %v", internalerr.ErrIntegrity, functor, err)
		}
		out = append(out, literal.New(functor, as...).With(value))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// Template reads the template nodes with their parent names
func (s *sqliteStore) Template(ctx context.Context) (map[string]bayesnet.Adjacency, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, functor, args FROM template_nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bayesnet.Adjacency)
	for rows.Next() {
		var name, functor, args string
		if err := rows.Scan(&name, &functor, &args); err != nil {
			return nil, err
		}
		adj := bayesnet.Adjacency{Functor: functor, Parents: []string{}}
		if err := json.Unmarshal([]byte(args), &adj.Args); err != nil {
			return nil, fmt.Errorf("%w: arguments of node %s: %v", internalerr.ErrIntegrity, name, err)
		}
		out[name] = adj
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx, `SELECT node, parent FROM template_parents ORDER BY node, position`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var node, parent string
		if err := prows.Scan(&node, &parent); err != nil {
			return nil, err
		}
		adj := out[node]
		adj.Parents = append(adj.Parents, parent)
		out[node] = adj
	}
	return out, prows.Err()
}

// Rules returns the rules in insertion order
func (s *sqliteStore) Rules(ctx context.Context) ([]cpt.CP, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT child, parents, prob FROM rules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cpt.CP
	for rows.Next() {
		var (
			child, parents string
			prob           float64
		)
		if err := rows.Scan(&child, &parents, &prob); err != nil {
			return nil, err
		}
		cp, err := decodeRule(child, parents, prob)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func decodeRule(child, parents string, prob float64) (cpt.CP, error) {
	c, err := literal.Parse(child)
	if err != nil {
		return cpt.CP{}, fmt.Errorf("rule child %q: %w", child, err)
	}
	var ps []string
	if err := json.Unmarshal([]byte(parents), &ps); err != nil {
		return cpt.CP{}, fmt.Errorf("%w: parents of rule %s: %v", internalerr.ErrIntegrity, child, err)
	}
	cp := cpt.CP{Child: c, Prob: prob}
	for _, p := range ps {
		l, err := literal.Parse(p)
		if err != nil {
			return cpt.CP{}, fmt.Errorf("rule parent %q: %w", p, err)
		}
		cp.Parents = append(cp.Parents, l)
	}
	return cp, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
