package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nwtk/flowrec/internal/model"
)

// SQLiteStore keeps the flow catalog in a single SQLite database. Flows are
// written whole inside one transaction, actions in a child table keyed by
// their sequence number.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Save(ctx context.Context, flow *model.Flow) error {
	if err := flow.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	metadata, err := jsonOrNil(flow.Metadata, len(flow.Metadata) > 0)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	evidenceRefs, err := jsonOrNil(flow.EvidenceRefs, len(flow.EvidenceRefs) > 0)
	if err != nil {
		return fmt.Errorf("encode evidence refs: %w", err)
	}
	verdicts, err := jsonOrNil(flow.VisualVerdicts, len(flow.VisualVerdicts) > 0)
	if err != nil {
		return fmt.Errorf("encode visual verdicts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
INSERT INTO flows(flow_id, name, description, started_at, ended_at, status, metadata_json, evidence_refs_json, visual_verdicts_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(flow_id) DO UPDATE SET
	name=excluded.name,
	description=excluded.description,
	started_at=excluded.started_at,
	ended_at=excluded.ended_at,
	status=excluded.status,
	metadata_json=excluded.metadata_json,
	evidence_refs_json=excluded.evidence_refs_json,
	visual_verdicts_json=excluded.visual_verdicts_json
`, flow.ID, flow.Name, flow.Description, ts(flow.StartedAt), nullableTS(flow.EndedAt), string(flow.Status), metadata, evidenceRefs, verdicts)
	if err != nil {
		return fmt.Errorf("%w: upsert flow: %v", ErrStorage, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM flow_actions WHERE flow_id = ?`, flow.ID); err != nil {
		return fmt.Errorf("%w: clear actions: %v", ErrStorage, err)
	}
	for seq, action := range flow.Actions {
		target, err := json.Marshal(action.Target)
		if err != nil {
			return fmt.Errorf("encode target %s: %w", action.ID, err)
		}
		payload, err := jsonOrNil(action.Payload, action.Payload != nil)
		if err != nil {
			return fmt.Errorf("encode payload %s: %w", action.ID, err)
		}
		verdict, err := jsonOrNil(action.Verdict, action.Verdict != nil)
		if err != nil {
			return fmt.Errorf("encode verdict %s: %w", action.ID, err)
		}
		extra, err := jsonOrNil(action.Extra, len(action.Extra) > 0)
		if err != nil {
			return fmt.Errorf("encode extra %s: %w", action.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO flow_actions(flow_id, seq, action_id, kind, occurred_at, target_json, payload_json, evidence_ref, verdict_json, extra_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, flow.ID, seq, action.ID, string(action.Kind), ts(action.OccurredAt), string(target), payload, action.EvidenceRef, verdict, extra)
		if err != nil {
			return fmt.Errorf("%w: insert action %s: %v", ErrStorage, action.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.Flow, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT flow_id, name, description, started_at, ended_at, status, metadata_json, evidence_refs_json, visual_verdicts_json
FROM flows WHERE flow_id = ?
`, id)

	var (
		flow         model.Flow
		startedAt    string
		endedAt      sql.NullString
		status       string
		metadataJSON sql.NullString
		evidenceJSON sql.NullString
		verdictsJSON sql.NullString
	)
	err := row.Scan(&flow.ID, &flow.Name, &flow.Description, &startedAt, &endedAt, &status, &metadataJSON, &evidenceJSON, &verdictsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan flow: %v", ErrStorage, err)
	}
	flow.Status = model.FlowStatus(status)
	if flow.StartedAt, err = parseTS(startedAt); err != nil {
		return nil, fmt.Errorf("%w: started_at: %v", ErrCorrupt, err)
	}
	if endedAt.Valid {
		t, err := parseTS(endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("%w: ended_at: %v", ErrCorrupt, err)
		}
		flow.EndedAt = &t
	}
	if err := decodeNullJSON(metadataJSON, &flow.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
	}
	if err := decodeNullJSON(evidenceJSON, &flow.EvidenceRefs); err != nil {
		return nil, fmt.Errorf("%w: evidence refs: %v", ErrCorrupt, err)
	}
	if err := decodeNullJSON(verdictsJSON, &flow.VisualVerdicts); err != nil {
		return nil, fmt.Errorf("%w: visual verdicts: %v", ErrCorrupt, err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT action_id, kind, occurred_at, target_json, payload_json, evidence_ref, verdict_json, extra_json
FROM flow_actions WHERE flow_id = ? ORDER BY seq ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: query actions: %v", ErrStorage, err)
	}
	defer rows.Close()
	for rows.Next() {
		action, err := scanFlowAction(rows)
		if err != nil {
			return nil, err
		}
		flow.Actions = append(flow.Actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate actions: %v", ErrStorage, err)
	}

	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &flow, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.FlowSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT f.flow_id, f.name, f.description, f.status, f.started_at, f.ended_at, f.evidence_refs_json,
	(SELECT COUNT(*) FROM flow_actions a WHERE a.flow_id = f.flow_id) AS action_count
FROM flows f
ORDER BY f.started_at DESC, f.flow_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("%w: query flows: %v", ErrStorage, err)
	}
	defer rows.Close()

	summaries := []model.FlowSummary{}
	for rows.Next() {
		var (
			summary      model.FlowSummary
			status       string
			startedAt    string
			endedAt      sql.NullString
			evidenceJSON sql.NullString
		)
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.Description, &status, &startedAt, &endedAt, &evidenceJSON, &summary.ActionCount); err != nil {
			return nil, fmt.Errorf("%w: scan summary: %v", ErrStorage, err)
		}
		summary.Status = model.FlowStatus(status)
		if summary.StartedAt, err = parseTS(startedAt); err != nil {
			return nil, fmt.Errorf("%w: started_at: %v", ErrCorrupt, err)
		}
		if endedAt.Valid {
			t, err := parseTS(endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("%w: ended_at: %v", ErrCorrupt, err)
			}
			summary.EndedAt = &t
		}
		var refs []string
		if err := decodeNullJSON(evidenceJSON, &refs); err != nil {
			return nil, fmt.Errorf("%w: evidence refs: %v", ErrCorrupt, err)
		}
		summary.EvidenceCount = len(refs)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate flows: %v", ErrStorage, err)
	}
	return summaries, nil
}

func scanFlowAction(scanner interface{ Scan(dest ...any) error }) (model.Action, error) {
	var (
		action      model.Action
		kind        string
		occurredAt  string
		targetJSON  string
		payloadJSON sql.NullString
		verdictJSON sql.NullString
		extraJSON   sql.NullString
	)
	if err := scanner.Scan(&action.ID, &kind, &occurredAt, &targetJSON, &payloadJSON, &action.EvidenceRef, &verdictJSON, &extraJSON); err != nil {
		return model.Action{}, fmt.Errorf("%w: scan action: %v", ErrStorage, err)
	}
	action.Kind = model.ActionKind(kind)
	var err error
	if action.OccurredAt, err = parseTS(occurredAt); err != nil {
		return model.Action{}, fmt.Errorf("%w: occurred_at: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal([]byte(targetJSON), &action.Target); err != nil {
		return model.Action{}, fmt.Errorf("%w: target: %v", ErrCorrupt, err)
	}
	if payloadJSON.Valid {
		payload, err := model.DecodePayload(action.Kind, json.RawMessage(payloadJSON.String))
		if err != nil {
			return model.Action{}, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
		}
		action.Payload = payload
	}
	if verdictJSON.Valid {
		var verdict model.VisualVerdict
		if err := json.Unmarshal([]byte(verdictJSON.String), &verdict); err != nil {
			return model.Action{}, fmt.Errorf("%w: verdict: %v", ErrCorrupt, err)
		}
		action.Verdict = &verdict
	}
	if extraJSON.Valid {
		if err := json.Unmarshal([]byte(extraJSON.String), &action.Extra); err != nil {
			return model.Action{}, fmt.Errorf("%w: extra: %v", ErrCorrupt, err)
		}
	}
	return action, nil
}

func jsonOrNil(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func decodeNullJSON(v sql.NullString, dst any) error {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(v.String), dst)
}
