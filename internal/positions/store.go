// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package positions holds the facility / position / button configuration tree
// in an embedded DuckDB database and resolves claimed network identities to
// configured positions. The write model (editors, layouts) lives elsewhere;
// this store covers what the realtime core and the read API need.
package positions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/chiartcc/switchboard/internal/config"
	"github.com/chiartcc/switchboard/internal/logging"
	"github.com/chiartcc/switchboard/internal/metrics"
)

const schema = `
CREATE SEQUENCE IF NOT EXISTS position_id_seq;
CREATE SEQUENCE IF NOT EXISTS button_id_seq;

CREATE TABLE IF NOT EXISTS facility (
    id        VARCHAR PRIMARY KEY,
    parent_id VARCHAR
);

CREATE TABLE IF NOT EXISTS position (
    id              BIGINT PRIMARY KEY DEFAULT nextval('position_id_seq'),
    facility_id     VARCHAR NOT NULL,
    name            VARCHAR NOT NULL,
    sector          VARCHAR NOT NULL,
    callsign_prefix VARCHAR NOT NULL,
    callsign_suffix VARCHAR NOT NULL,
    frequency_hz    BIGINT  NOT NULL,
    dial_code       VARCHAR,
    panel_type      VARCHAR NOT NULL,
    UNIQUE (facility_id, name)
);

CREATE TABLE IF NOT EXISTS button (
    id          BIGINT PRIMARY KEY DEFAULT nextval('button_id_seq'),
    facility_id VARCHAR NOT NULL,
    short_name  VARCHAR NOT NULL,
    long_name   VARCHAR,
    target      VARCHAR NOT NULL,
    type        VARCHAR NOT NULL,
    dial_code   VARCHAR
);

CREATE TABLE IF NOT EXISTS position_button (
    position_id BIGINT NOT NULL,
    button_id   BIGINT NOT NULL,
    UNIQUE (position_id, button_id)
);
`

// Store wraps the DuckDB connection holding the configuration tree.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the configuration database and ensures the schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	conn, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb at %s: %w", cfg.Path, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging duckdb: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Msg("configuration store opened")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// observe records query duration under the given operation label.
func observe(op string, start time.Time) {
	metrics.DBQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CreateFacility inserts a facility node. parentID may be empty for roots.
func (s *Store) CreateFacility(ctx context.Context, id, parentID string) error {
	defer observe("create_facility", time.Now())

	var parent any
	if parentID != "" {
		parent = parentID
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO facility (id, parent_id) VALUES (?, ?)`, id, parent)
	if err != nil {
		return fmt.Errorf("inserting facility %s: %w", id, err)
	}
	return nil
}

// CreatePosition inserts a position and returns its generated id.
func (s *Store) CreatePosition(ctx context.Context, p *Position) (int64, error) {
	defer observe("create_position", time.Now())

	var dial any
	if p.DialCode != "" {
		dial = p.DialCode
	}
	row := s.conn.QueryRowContext(ctx, `
        INSERT INTO position (facility_id, name, sector, callsign_prefix,
                              callsign_suffix, frequency_hz, dial_code, panel_type)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id`,
		p.FacilityID, p.Name, p.Sector, p.CallsignPrefix,
		p.CallsignSuffix, p.FrequencyHz, dial, string(p.PanelType))

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting position %s: %w", p.Name, err)
	}
	return id, nil
}

// CreateButton inserts a button and returns its generated id.
func (s *Store) CreateButton(ctx context.Context, b *Button) (int64, error) {
	defer observe("create_button", time.Now())

	var long, dial any
	if b.LongName != "" {
		long = b.LongName
	}
	if b.DialCode != "" {
		dial = b.DialCode
	}
	row := s.conn.QueryRowContext(ctx, `
        INSERT INTO button (facility_id, short_name, long_name, target, type, dial_code)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING id`,
		b.FacilityID, b.ShortName, long, b.Target, string(b.Type), dial)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting button %s: %w", b.ShortName, err)
	}
	return id, nil
}

// AssignButton authorizes a position to use a button.
func (s *Store) AssignButton(ctx context.Context, positionID, buttonID int64) error {
	defer observe("assign_button", time.Now())

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO position_button (position_id, button_id) VALUES (?, ?)`,
		positionID, buttonID)
	if err != nil {
		return fmt.Errorf("assigning button %d to position %d: %w", buttonID, positionID, err)
	}
	return nil
}

// LoadPositions returns every configured position with its buttons attached.
func (s *Store) LoadPositions(ctx context.Context) ([]Position, error) {
	defer observe("load_positions", time.Now())

	rows, err := s.conn.QueryContext(ctx, `
        SELECT id, facility_id, name, sector, callsign_prefix,
               callsign_suffix, frequency_hz, COALESCE(dial_code, ''), panel_type
        FROM position
        ORDER BY facility_id, name`)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Position
	index := map[int64]int{}
	for rows.Next() {
		var p Position
		var panel string
		if err := rows.Scan(&p.ID, &p.FacilityID, &p.Name, &p.Sector,
			&p.CallsignPrefix, &p.CallsignSuffix, &p.FrequencyHz,
			&p.DialCode, &panel); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		p.PanelType = PanelType(panel)
		index[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating positions: %w", err)
	}

	brows, err := s.conn.QueryContext(ctx, `
        SELECT pb.position_id, b.id, b.facility_id, b.short_name,
               COALESCE(b.long_name, ''), b.target, b.type, COALESCE(b.dial_code, '')
        FROM position_button pb
        JOIN button b ON b.id = pb.button_id
        ORDER BY pb.position_id, b.id`)
	if err != nil {
		return nil, fmt.Errorf("querying position buttons: %w", err)
	}
	defer func() { _ = brows.Close() }()

	for brows.Next() {
		var posID int64
		var b Button
		var btype string
		if err := brows.Scan(&posID, &b.ID, &b.FacilityID, &b.ShortName,
			&b.LongName, &b.Target, &btype, &b.DialCode); err != nil {
			return nil, fmt.Errorf("scanning button: %w", err)
		}
		b.Type = ButtonType(btype)
		if i, ok := index[posID]; ok {
			out[i].Buttons = append(out[i].Buttons, b)
		}
	}
	if err := brows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buttons: %w", err)
	}

	return out, nil
}

// LoadFacilityTree returns the facility hierarchy as a forest of root nodes
// with positions attached.
func (s *Store) LoadFacilityTree(ctx context.Context) ([]*Facility, error) {
	defer observe("load_facilities", time.Now())

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, COALESCE(parent_id, '') FROM facility ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying facilities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := map[string]*Facility{}
	var order []string
	for rows.Next() {
		f := &Facility{}
		if err := rows.Scan(&f.ID, &f.ParentID); err != nil {
			return nil, fmt.Errorf("scanning facility: %w", err)
		}
		byID[f.ID] = f
		order = append(order, f.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating facilities: %w", err)
	}

	positions, err := s.LoadPositions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if f, ok := byID[p.FacilityID]; ok {
			f.Positions = append(f.Positions, p)
		}
	}

	var roots []*Facility
	for _, id := range order {
		f := byID[id]
		if f.ParentID == "" {
			roots = append(roots, f)
			continue
		}
		if parent, ok := byID[f.ParentID]; ok {
			parent.Children = append(parent.Children, f)
		} else {
			// Orphaned parent reference; surface it rather than hiding the node.
			logging.Warn().Str("facility", f.ID).Str("parent", f.ParentID).
				Msg("facility references unknown parent")
			roots = append(roots, f)
		}
	}

	return roots, nil
}
