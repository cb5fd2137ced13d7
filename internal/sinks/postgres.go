// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sinks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS shsp_dict (
//   node_hash_hex TEXT PRIMARY KEY,
//   dict_json     JSONB NOT NULL,
//   observed_at   TIMESTAMPTZ NOT NULL
// );

// PostgresSink upserts the full per-node dict snapshot on every change.
type PostgresSink struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db, defaultTimeout: 10 * time.Second}
}

func (p *PostgresSink) OnDictChange(ctx context.Context, u DictUpdate) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}
	b, err := json.Marshal(u.Dict)
	if err != nil {
		return fmt.Errorf("marshal dict for node=%s: %w", u.NodeHashHex, err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO shsp_dict(node_hash_hex, dict_json, observed_at) VALUES ($1,$2,to_timestamp($3))
		 ON CONFLICT (node_hash_hex) DO UPDATE SET dict_json = EXCLUDED.dict_json, observed_at = EXCLUDED.observed_at`,
		u.NodeHashHex, b, u.ObservedAt)
	if err != nil {
		return fmt.Errorf("upsert shsp_dict node=%s: %w", u.NodeHashHex, err)
	}
	return nil
}

var _ EventSink = (*PostgresSink)(nil)
