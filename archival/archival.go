// Copyright 2015 The I2PTracker Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package archival implements an optional append-only Postgres sink for
// BEP3 announce and discovery presence events. It is never consulted for
// live swarm or peer state — store.Store and the in-memory tracker
// remain the sole source of truth (see tracker.Tracker, store.Store);
// this package exists purely for operators who want a durable history
// to report on later.
package archival

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/golang/glog"

	"github.com/majestrate/i2ptracker/config"
)

var cfgVersion = "i2ptracker.version"

// Sink is a Postgres-backed event log.
type Sink struct {
	conn *sql.DB
}

// Version returns the schema version recorded in the config table.
func (s *Sink) Version() (version string, err error) {
	err = s.conn.QueryRow("SELECT val FROM config WHERE key = $1", cfgVersion).Scan(&version)
	return
}

func (s *Sink) setVersion(version string) (err error) {
	_, err = s.conn.Exec("DELETE FROM config WHERE key = $1", cfgVersion)
	if err == nil {
		_, err = s.conn.Exec("INSERT INTO config(key, val) VALUES($1, $2)", cfgVersion, version)
	}
	return
}

// InitTables creates the version-tracking table if it doesn't exist yet.
func (s *Sink) InitTables() (err error) {
	_, err = s.conn.Exec("CREATE TABLE IF NOT EXISTS config(key VARCHAR(255) PRIMARY KEY, val VARCHAR(255) NOT NULL)")
	if err == nil {
		var version string
		version, err = s.Version()
		if len(version) == 0 {
			err = s.setVersion("0")
		}
	}
	return
}

func (s *Sink) latestVersion(version string) bool {
	return version == "1"
}

// upgradeToNext migrates version 0 (bare config table) to version 1,
// which adds the append-only swarm_events/presence_events tables.
func (s *Sink) upgradeToNext(version string) error {
	if version != "0" {
		return errors.New("archival: invalid schema version")
	}

	tableDefs := map[string]string{
		"swarm_events": `(
			id BIGSERIAL PRIMARY KEY,
			infohash VARCHAR(40) NOT NULL,
			destination TEXT NOT NULL,
			event VARCHAR(16) NOT NULL,
			occurred_at BIGINT NOT NULL
		)`,
		"presence_events": `(
			id BIGSERIAL PRIMARY KEY,
			destination TEXT NOT NULL,
			b32_address VARCHAR(64) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			occurred_at BIGINT NOT NULL
		)`,
	}
	order := []string{"swarm_events", "presence_events"}

	for _, t := range order {
		glog.Infof("archival: creating table %s", t)
		if _, err := s.conn.Exec("CREATE TABLE IF NOT EXISTS " + t + tableDefs[t]); err != nil {
			return err
		}
	}
	if _, err := s.conn.Exec("CREATE INDEX IF NOT EXISTS swarm_events_infohash_idx ON swarm_events(infohash)"); err != nil {
		return err
	}
	if _, err := s.conn.Exec("CREATE INDEX IF NOT EXISTS presence_events_destination_idx ON presence_events(destination)"); err != nil {
		return err
	}
	return s.setVersion("1")
}

// Migrate runs every pending migration in order.
func (s *Sink) Migrate() error {
	if err := s.InitTables(); err != nil {
		return err
	}
	version, err := s.Version()
	for err == nil && !s.latestVersion(version) {
		if err = s.upgradeToNext(version); err != nil {
			return err
		}
		version, err = s.Version()
	}
	return err
}

// Close closes the underlying database connection.
func (s *Sink) Close() error { return s.conn.Close() }

// Ping checks connectivity to Postgres.
func (s *Sink) Ping() error { return s.conn.Ping() }

// RecordAnnounce appends one BEP3 announce event. Best-effort: the
// caller logs and otherwise ignores failures rather than blocking the
// announce path on archival availability.
func (s *Sink) RecordAnnounce(infohash, destination, event string) error {
	_, err := s.conn.Exec(
		"INSERT INTO swarm_events(infohash, destination, event, occurred_at) VALUES($1, $2, $3, $4)",
		infohash, destination, event, time.Now().Unix(),
	)
	return err
}

// RecordPresence appends one discovery presence delta (peer online/offline).
func (s *Sink) RecordPresence(destination, b32Address, kind string) error {
	_, err := s.conn.Exec(
		"INSERT INTO presence_events(destination, b32_address, kind, occurred_at) VALUES($1, $2, $3, $4)",
		destination, b32Address, kind, time.Now().Unix(),
	)
	return err
}

// Open connects to Postgres using cfg.Params["url"] and runs migrations.
// A "noop" driver name disables archival entirely; Open returns (nil, nil).
func Open(cfg config.DriverConfig) (*Sink, error) {
	if cfg.Name == "" || cfg.Name == "noop" {
		return nil, nil
	}

	url, ok := cfg.Params["url"]
	if !ok {
		return nil, config.ErrMissingRequiredParam
	}

	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	sink := &Sink{conn: conn}
	if err := sink.Migrate(); err != nil {
		sink.Close()
		return nil, err
	}
	return sink, nil
}
