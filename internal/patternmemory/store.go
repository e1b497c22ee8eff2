package patternmemory

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the embedded pattern-memory database: one sqlite file holding
// resolution patterns, their feedback history, and aggregated common-issue
// rollups. All solution payloads are anonymized before encryption and
// encrypted before being written to disk.
type Store struct {
	db     *sql.DB
	crypto *CryptoManager
}

const schema = `
CREATE TABLE IF NOT EXISTS patterns (
	id              TEXT PRIMARY KEY,
	problem_type    TEXT NOT NULL,
	signature       TEXT NOT NULL,
	solution_cipher TEXT NOT NULL,
	success_count   INTEGER NOT NULL DEFAULT 0,
	failure_count   INTEGER NOT NULL DEFAULT 0,
	mean_resolve_ms INTEGER NOT NULL DEFAULT 0,
	last_used_ms    INTEGER NOT NULL DEFAULT 0,
	confidence      REAL NOT NULL DEFAULT 0,
	decrypt_failed  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_patterns_problem_type ON patterns(problem_type);
CREATE INDEX IF NOT EXISTS idx_patterns_confidence ON patterns(confidence DESC);
CREATE INDEX IF NOT EXISTS idx_patterns_last_used ON patterns(last_used_ms DESC);

CREATE TABLE IF NOT EXISTS pattern_feedback (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_id   TEXT NOT NULL REFERENCES patterns(id) ON DELETE CASCADE,
	succeeded    INTEGER NOT NULL,
	rating       INTEGER NOT NULL DEFAULT 0,
	comment      TEXT NOT NULL DEFAULT '',
	at_ms        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_pattern_id ON pattern_feedback(pattern_id);

CREATE TABLE IF NOT EXISTS common_issues (
	problem_type TEXT PRIMARY KEY,
	occurrences  INTEGER NOT NULL DEFAULT 0,
	last_seen_ms INTEGER NOT NULL DEFAULT 0,
	top_pattern  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS signature_tokens (
	token      TEXT NOT NULL,
	pattern_id TEXT NOT NULL REFERENCES patterns(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_signature_tokens_token ON signature_tokens(token);
`

// Open creates (if needed) and opens the pattern database at path, applying
// the schema idempotently, and binds it to a CryptoManager sourced for the
// given environment ("production" or anything else).
func Open(path string, env string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("patternmemory: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("patternmemory: apply schema: %w", err)
	}

	cm, err := NewCryptoManager(env)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, crypto: cm}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePattern anonymizes and encrypts solution, then inserts or replaces
// the pattern record and rebuilds its token-prefix index entries.
func (s *Store) SavePattern(p Pattern) error {
	signature := Anonymize(p.Signature)
	solution := anonymizeSolution(p.Solution)

	cipherText, err := s.crypto.EncryptString(solution)
	if err != nil {
		return fmt.Errorf("patternmemory: encrypt solution: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("patternmemory: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO patterns (id, problem_type, signature, solution_cipher, success_count, failure_count, mean_resolve_ms, last_used_ms, confidence, decrypt_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			problem_type=excluded.problem_type,
			signature=excluded.signature,
			solution_cipher=excluded.solution_cipher,
			success_count=excluded.success_count,
			failure_count=excluded.failure_count,
			mean_resolve_ms=excluded.mean_resolve_ms,
			last_used_ms=excluded.last_used_ms,
			confidence=excluded.confidence,
			decrypt_failed=0
	`, p.ID, p.ProblemType, signature, cipherText, p.SuccessCount, p.FailureCount, p.MeanResolveMs, p.LastUsed.UnixMilli(), p.Confidence)
	if err != nil {
		return fmt.Errorf("patternmemory: upsert pattern: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM signature_tokens WHERE pattern_id = ?`, p.ID); err != nil {
		return fmt.Errorf("patternmemory: clear tokens: %w", err)
	}
	for tok := range tokenize(signature) {
		if _, err := tx.Exec(`INSERT INTO signature_tokens (token, pattern_id) VALUES (?, ?)`, tok, p.ID); err != nil {
			return fmt.Errorf("patternmemory: index token: %w", err)
		}
	}

	if err := s.bumpCommonIssue(tx, p.ProblemType, p.ID, p.LastUsed); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) bumpCommonIssue(tx *sql.Tx, problemType, patternID string, at time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO common_issues (problem_type, occurrences, last_seen_ms, top_pattern)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(problem_type) DO UPDATE SET
			occurrences=occurrences+1,
			last_seen_ms=excluded.last_seen_ms,
			top_pattern=excluded.top_pattern
	`, problemType, at.UnixMilli(), patternID)
	if err != nil {
		return fmt.Errorf("patternmemory: bump common issue: %w", err)
	}
	return nil
}

// RecordFeedback appends a feedback entry to a pattern's history and
// updates its running success/failure counts and confidence.
func (s *Store) RecordFeedback(patternID string, fb FeedbackEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("patternmemory: begin tx: %w", err)
	}
	defer tx.Rollback()

	succeeded := 0
	if fb.Succeeded {
		succeeded = 1
	}
	if _, err := tx.Exec(`INSERT INTO pattern_feedback (pattern_id, succeeded, rating, comment, at_ms) VALUES (?, ?, ?, ?, ?)`,
		patternID, succeeded, fb.Rating, Anonymize(fb.Comment), fb.At.UnixMilli()); err != nil {
		return fmt.Errorf("patternmemory: insert feedback: %w", err)
	}

	column := "failure_count = failure_count + 1"
	if fb.Succeeded {
		column = "success_count = success_count + 1"
	}
	if _, err := tx.Exec(fmt.Sprintf(`UPDATE patterns SET %s WHERE id = ?`, column), patternID); err != nil {
		return fmt.Errorf("patternmemory: update counts: %w", err)
	}

	p, err := s.loadPattern(tx, patternID)
	if err != nil {
		return err
	}
	rows, err := tx.Query(`SELECT succeeded, rating, at_ms FROM pattern_feedback WHERE pattern_id = ?`, patternID)
	if err != nil {
		return fmt.Errorf("patternmemory: load feedback: %w", err)
	}
	for rows.Next() {
		var entry FeedbackEntry
		var atMs int64
		if err := rows.Scan(&entry.Succeeded, &entry.Rating, &atMs); err != nil {
			rows.Close()
			return fmt.Errorf("patternmemory: scan feedback: %w", err)
		}
		entry.At = time.UnixMilli(atMs)
		p.Feedback = append(p.Feedback, entry)
	}
	rows.Close()
	UpdateConfidence(&p, fb.At)
	if _, err := tx.Exec(`UPDATE patterns SET confidence = ? WHERE id = ?`, p.Confidence, patternID); err != nil {
		return fmt.Errorf("patternmemory: update confidence: %w", err)
	}

	return tx.Commit()
}

func (s *Store) loadPattern(q querier, id string) (Pattern, error) {
	row := q.QueryRow(`SELECT id, problem_type, signature, solution_cipher, success_count, failure_count, mean_resolve_ms, last_used_ms, confidence, decrypt_failed FROM patterns WHERE id = ?`, id)
	return s.scanPattern(row)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanPattern(row scannable) (Pattern, error) {
	var p Pattern
	var cipherText string
	var lastUsedMs int64
	var decryptFailed int

	if err := row.Scan(&p.ID, &p.ProblemType, &p.Signature, &cipherText, &p.SuccessCount, &p.FailureCount, &p.MeanResolveMs, &lastUsedMs, &p.Confidence, &decryptFailed); err != nil {
		return Pattern{}, fmt.Errorf("patternmemory: scan pattern: %w", err)
	}
	p.LastUsed = time.UnixMilli(lastUsedMs)

	plain, err := s.crypto.DecryptString(cipherText)
	if err != nil {
		return Pattern{
			ID:            "legacy-" + p.ID,
			ProblemType:   p.ProblemType,
			Signature:     p.Signature,
			Solution:      "",
			Confidence:    0,
			LastUsed:      p.LastUsed,
			DecryptFailed: true,
		}, nil
	}
	p.Solution = plain
	return p, nil
}

// Retrieve returns patterns similar to signature, shortlisted by
// token-prefix match (top KShortlist by recency), ranked by Jaccard
// overlap, then filtered and ordered per opts.
func (s *Store) Retrieve(signature string, opts RetrieveOptions) ([]RankedPattern, error) {
	anonymizedQuery := Anonymize(signature)
	tokens := tokenize(anonymizedQuery)
	if len(tokens) == 0 {
		return nil, nil
	}

	likeClauses := make([]string, 0, len(tokens))
	args := make([]interface{}, 0, len(tokens)+1)
	for tok := range tokens {
		likeClauses = append(likeClauses, "token LIKE ?")
		args = append(args, tok+"%")
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.problem_type, p.signature, p.solution_cipher, p.success_count, p.failure_count, p.mean_resolve_ms, p.last_used_ms, p.confidence, p.decrypt_failed
		FROM patterns p
		WHERE p.id IN (
			SELECT DISTINCT pattern_id FROM signature_tokens WHERE %s
		)
		ORDER BY p.last_used_ms DESC
		LIMIT ?
	`, strings.Join(likeClauses, " OR "))
	args = append(args, KShortlist)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("patternmemory: shortlist query: %w", err)
	}
	defer rows.Close()

	var candidates []Pattern
	for rows.Next() {
		p, err := s.scanPattern(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := rankBySimilarity(anonymizedQuery, candidates, opts.SimilarityThreshold)

	cutoff := time.Time{}
	if opts.MaxAge > 0 {
		cutoff = time.Now().Add(-opts.MaxAge)
	}
	filtered := ranked[:0]
	for _, r := range ranked {
		if r.Pattern.Confidence < opts.MinConfidence {
			continue
		}
		if r.Pattern.SuccessCount < opts.MinSuccessCount {
			continue
		}
		if !cutoff.IsZero() && r.Pattern.LastUsed.Before(cutoff) {
			continue
		}
		filtered = append(filtered, r)
	}

	by := opts.SortBy
	if by == "" {
		by = SortByConfidence
	}
	sortRankedPatternsBy(filtered, by)

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// PruneOldPatterns deletes patterns whose last-used timestamp precedes
// now-maxAge and returns the number of rows removed.
func (s *Store) PruneOldPatterns(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	result, err := s.db.Exec(`DELETE FROM patterns WHERE last_used_ms < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("patternmemory: prune: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("patternmemory: prune rows affected: %w", err)
	}
	return int(n), nil
}
