package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"

	"github.com/joescharf/draftscore/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection also
	// means a transaction holds the database exclusively for its lifetime,
	// which is what makes the version check in ApplyScores atomic.
	db.SetMaxOpenConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p.what, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction. Any error rolls the transaction back;
// driver failures surface as *WriteError.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return writeErr(op, err)
	}
	return nil
}

// --- Reviews ---

func (s *SQLiteStore) CreateReview(ctx context.Context, r *models.Review) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.NextParagraphID < 1 {
		r.NextParagraphID = 1
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, title, next_paragraph_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.NextParagraphID, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return writeErr("create review", err)
	}
	return nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	r := &models.Review{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, next_paragraph_id, created_at, updated_at FROM reviews WHERE id = ?`, id,
	).Scan(&r.ID, &r.Title, &r.NextParagraphID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context) ([]*models.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, next_paragraph_id, created_at, updated_at FROM reviews ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.Review
	for rows.Next() {
		r := &models.Review{}
		if err := rows.Scan(&r.ID, &r.Title, &r.NextParagraphID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// --- Paragraph versions ---

type latestItem struct {
	version int
	text    string
	deleted bool
}

func latestVersionTx(ctx context.Context, tx *sql.Tx, reviewID string, stableID int64) (*latestItem, error) {
	li := &latestItem{}
	err := tx.QueryRowContext(ctx,
		`SELECT version, text, is_deleted FROM review_items
		WHERE review_id = ? AND stable_paragraph_id = ?
		ORDER BY version DESC LIMIT 1`, reviewID, stableID,
	).Scan(&li.version, &li.text, &li.deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest version: %w", err)
	}
	return li, nil
}

func reviewExistsTx(ctx context.Context, tx *sql.Tx, reviewID string) error {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE id = ?`, reviewID).Scan(&n)
	if err != nil {
		return fmt.Errorf("check review: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("review %s: %w", reviewID, ErrNotFound)
	}
	return nil
}

// recordVersionTx appends a new version when text differs from the latest
// live version. Identical text is a no-op returning the current version.
func recordVersionTx(ctx context.Context, tx *sql.Tx, reviewID string, stableID int64, text string, now time.Time) (int, error) {
	li, err := latestVersionTx(ctx, tx, reviewID, stableID)
	if err != nil {
		return 0, err
	}
	next := 1
	if li != nil {
		if li.deleted {
			return 0, fmt.Errorf("paragraph %d: %w", stableID, ErrRetired)
		}
		if li.text == text {
			return li.version, nil
		}
		next = li.version + 1
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO review_items (review_id, stable_paragraph_id, version, text, is_deleted, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`, reviewID, stableID, next, text, now)
	if err != nil {
		return 0, writeErr("record version", err)
	}
	return next, nil
}

func markDeletedTx(ctx context.Context, tx *sql.Tx, reviewID string, stableID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE review_items SET is_deleted = 1
		WHERE review_id = ? AND stable_paragraph_id = ?
		AND version = (SELECT MAX(version) FROM review_items WHERE review_id = ? AND stable_paragraph_id = ?)`,
		reviewID, stableID, reviewID, stableID)
	if err != nil {
		return writeErr("mark deleted", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("paragraph %d: %w", stableID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_order WHERE review_id = ? AND stable_paragraph_id = ?`, reviewID, stableID); err != nil {
		return writeErr("mark deleted", err)
	}
	return nil
}

func bumpNextIDTx(ctx context.Context, tx *sql.Tx, reviewID string, next int64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE reviews SET next_paragraph_id = MAX(next_paragraph_id, ?), updated_at = ? WHERE id = ?`,
		next, now, reviewID)
	if err != nil {
		return writeErr("update review", err)
	}
	return nil
}

// RecordVersion stores text as the newest version of one paragraph and
// returns the resulting version number.
func (s *SQLiteStore) RecordVersion(ctx context.Context, reviewID string, stableID int64, text string) (int, error) {
	var version int
	err := s.withTx(ctx, "record version", func(tx *sql.Tx) error {
		if err := reviewExistsTx(ctx, tx, reviewID); err != nil {
			return err
		}
		now := time.Now().UTC()
		v, err := recordVersionTx(ctx, tx, reviewID, stableID, text, now)
		if err != nil {
			return err
		}
		version = v
		return bumpNextIDTx(ctx, tx, reviewID, stableID+1, now)
	})
	return version, err
}

// MarkDeleted retires a paragraph. Its history and scores are kept.
func (s *SQLiteStore) MarkDeleted(ctx context.Context, reviewID string, stableID int64) error {
	return s.withTx(ctx, "mark deleted", func(tx *sql.Tx) error {
		return markDeletedTx(ctx, tx, reviewID, stableID)
	})
}

// ApplyDocument commits one resolved document: new versions, retirements,
// ordering and the review's ID counter, all or nothing. It returns the live
// version of every paragraph in the update.
func (s *SQLiteStore) ApplyDocument(ctx context.Context, reviewID string, update DocumentUpdate) (map[int64]int, error) {
	versions := make(map[int64]int, len(update.Paragraphs))
	err := s.withTx(ctx, "apply document", func(tx *sql.Tx) error {
		if err := reviewExistsTx(ctx, tx, reviewID); err != nil {
			return err
		}
		now := time.Now().UTC()

		for _, id := range update.Removed {
			if err := markDeletedTx(ctx, tx, reviewID, id); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM document_order WHERE review_id = ?`, reviewID); err != nil {
			return writeErr("apply document", err)
		}

		next := update.NextParagraphID
		for pos, p := range update.Paragraphs {
			v, err := recordVersionTx(ctx, tx, reviewID, p.StableID, p.Text, now)
			if err != nil {
				return err
			}
			versions[p.StableID] = v
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO document_order (review_id, stable_paragraph_id, position) VALUES (?, ?, ?)`,
				reviewID, p.StableID, pos); err != nil {
				return writeErr("apply document", err)
			}
			if p.StableID >= next {
				next = p.StableID + 1
			}
		}

		return bumpNextIDTx(ctx, tx, reviewID, next, now)
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// AssembleLiveDocument returns the latest non-deleted version of every
// paragraph, in document order.
func (s *SQLiteStore) AssembleLiveDocument(ctx context.Context, reviewID string) ([]models.LiveParagraph, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.stable_paragraph_id, i.version, i.text, o.position
		FROM review_items i
		JOIN (SELECT stable_paragraph_id, MAX(version) AS version FROM review_items
			WHERE review_id = ? GROUP BY stable_paragraph_id) latest
			ON latest.stable_paragraph_id = i.stable_paragraph_id AND latest.version = i.version
		LEFT JOIN document_order o
			ON o.review_id = i.review_id AND o.stable_paragraph_id = i.stable_paragraph_id
		WHERE i.review_id = ? AND i.is_deleted = 0
		ORDER BY o.position IS NULL, o.position, i.stable_paragraph_id`, reviewID, reviewID)
	if err != nil {
		return nil, fmt.Errorf("assemble live document: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var doc []models.LiveParagraph
	for rows.Next() {
		var lp models.LiveParagraph
		var pos sql.NullInt64
		if err := rows.Scan(&lp.StableID, &lp.Version, &lp.Text, &pos); err != nil {
			return nil, fmt.Errorf("scan live paragraph: %w", err)
		}
		lp.Position = len(doc)
		doc = append(doc, lp)
	}
	return doc, rows.Err()
}

func (s *SQLiteStore) ListVersions(ctx context.Context, reviewID string, stableID int64) ([]*models.ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT review_id, stable_paragraph_id, version, text, is_deleted, created_at
		FROM review_items WHERE review_id = ? AND stable_paragraph_id = ? ORDER BY version`, reviewID, stableID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*models.ReviewItem
	for rows.Next() {
		it := &models.ReviewItem{}
		if err := rows.Scan(&it.ReviewID, &it.StableParagraphID, &it.Version, &it.Text, &it.IsDeleted, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("paragraph %d: %w", stableID, ErrNotFound)
	}
	return items, nil
}

// --- Scores ---

// ApplyScores attaches scores to (stableID, version). The write is rejected
// with ErrVersionConflict unless version is still the paragraph's live
// version; on rejection nothing is stored. Score rows are immutable: a
// dimension already scored by runID for this version keeps its first row.
func (s *SQLiteStore) ApplyScores(ctx context.Context, reviewID string, stableID int64, version int, runID string, scores []models.ScoreValue) error {
	for _, sv := range scores {
		if !sv.Dimension.Valid() {
			return fmt.Errorf("%w: %q", models.ErrUnknownDimension, sv.Dimension)
		}
		if sv.Score < models.MinScore || sv.Score > models.MaxScore {
			return fmt.Errorf("%s score %d: %w", sv.Dimension, sv.Score, ErrInvalidScore)
		}
	}

	return s.withTx(ctx, "apply scores", func(tx *sql.Tx) error {
		li, err := latestVersionTx(ctx, tx, reviewID, stableID)
		if err != nil {
			return err
		}
		if li == nil {
			return fmt.Errorf("paragraph %d: %w", stableID, ErrNotFound)
		}
		if li.deleted {
			return fmt.Errorf("paragraph %d retired: %w", stableID, ErrVersionConflict)
		}
		if li.version != version {
			return fmt.Errorf("paragraph %d version %d, live %d: %w", stableID, version, li.version, ErrVersionConflict)
		}

		now := time.Now().UTC()
		for _, sv := range scores {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO scores (review_id, stable_paragraph_id, version, analysis_run_id, dimension, score, comment, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (analysis_run_id, review_id, stable_paragraph_id, version, dimension) DO NOTHING`,
				reviewID, stableID, version, runID, string(sv.Dimension), sv.Score, sv.Comment, now)
			if err != nil {
				return writeErr("apply scores", err)
			}
		}
		return nil
	})
}

// ListScores returns scores matching filter, oldest first.
func (s *SQLiteStore) ListScores(ctx context.Context, filter ScoreFilter) ([]*models.Score, error) {
	q := sq.Select("review_id", "stable_paragraph_id", "version", "analysis_run_id", "dimension", "score", "comment", "created_at").
		From("scores").
		Where(sq.Eq{"review_id": filter.ReviewID})
	if filter.StableID != 0 {
		q = q.Where(sq.Eq{"stable_paragraph_id": filter.StableID})
	}
	if filter.Version != 0 {
		q = q.Where(sq.Eq{"version": filter.Version})
	}
	if filter.AnalysisRunID != "" {
		q = q.Where(sq.Eq{"analysis_run_id": filter.AnalysisRunID})
	}
	q = q.OrderBy("stable_paragraph_id", "version", "id")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build score query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scores []*models.Score
	for rows.Next() {
		sc := &models.Score{}
		var dim string
		if err := rows.Scan(&sc.ReviewID, &sc.StableParagraphID, &sc.Version, &sc.AnalysisRunID, &dim, &sc.Score, &sc.Comment, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		sc.Dimension = models.Dimension(dim)
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

// --- Interaction state ---

func (s *SQLiteStore) checkInteraction(ctx context.Context, reviewID string, stableID int64, dim models.Dimension) error {
	if !dim.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownDimension, dim)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM review_items WHERE review_id = ? AND stable_paragraph_id = ?`, reviewID, stableID).Scan(&n)
	if err != nil {
		return fmt.Errorf("check paragraph: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("paragraph %d: %w", stableID, ErrNotFound)
	}
	return nil
}

// MarkViewed records that the comment for dim was seen. Repeat calls keep the
// first timestamp.
func (s *SQLiteStore) MarkViewed(ctx context.Context, reviewID string, stableID int64, dim models.Dimension) error {
	if err := s.checkInteraction(ctx, reviewID, stableID, dim); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interaction_states (review_id, stable_paragraph_id, dimension, viewed, viewed_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (review_id, stable_paragraph_id, dimension)
		DO UPDATE SET viewed = 1, viewed_at = COALESCE(interaction_states.viewed_at, excluded.viewed_at)`,
		reviewID, stableID, string(dim), time.Now().UTC())
	if err != nil {
		return writeErr("mark viewed", err)
	}
	return nil
}

// MarkDismissed permanently suppresses dim for the paragraph, across all of
// its later versions. There is no way back.
func (s *SQLiteStore) MarkDismissed(ctx context.Context, reviewID string, stableID int64, dim models.Dimension) error {
	if err := s.checkInteraction(ctx, reviewID, stableID, dim); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interaction_states (review_id, stable_paragraph_id, dimension, dismissed, dismissed_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (review_id, stable_paragraph_id, dimension)
		DO UPDATE SET dismissed = 1, dismissed_at = COALESCE(interaction_states.dismissed_at, excluded.dismissed_at)`,
		reviewID, stableID, string(dim), time.Now().UTC())
	if err != nil {
		return writeErr("mark dismissed", err)
	}
	return nil
}

func (s *SQLiteStore) ListInteractions(ctx context.Context, reviewID string) ([]*models.InteractionState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT review_id, stable_paragraph_id, dimension, viewed, viewed_at, dismissed, dismissed_at
		FROM interaction_states WHERE review_id = ? ORDER BY stable_paragraph_id, dimension`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []*models.InteractionState
	for rows.Next() {
		st := &models.InteractionState{}
		var dim string
		var viewedAt, dismissedAt sql.NullTime
		if err := rows.Scan(&st.ReviewID, &st.StableParagraphID, &dim, &st.Viewed, &viewedAt, &st.Dismissed, &dismissedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		st.Dimension = models.Dimension(dim)
		st.ViewedAt = nullTimePtr(viewedAt)
		st.DismissedAt = nullTimePtr(dismissedAt)
		states = append(states, st)
	}
	return states, rows.Err()
}

// --- Analysis runs ---

func (s *SQLiteStore) CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	if run.ID == "" {
		run.ID = newULID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, review_id, status, total_paragraphs, scored_paragraphs, failed_paragraphs, stale_paragraphs, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ReviewID, string(run.Status), run.TotalParagraphs, run.ScoredParagraphs,
		run.FailedParagraphs, run.StaleParagraphs, run.Error, run.StartedAt, run.FinishedAt)
	if err != nil {
		return writeErr("create analysis run", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_runs SET status = ?, total_paragraphs = ?, scored_paragraphs = ?, failed_paragraphs = ?,
		stale_paragraphs = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.TotalParagraphs, run.ScoredParagraphs, run.FailedParagraphs,
		run.StaleParagraphs, run.Error, run.FinishedAt, run.ID)
	if err != nil {
		return writeErr("update analysis run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("analysis run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// ListAnalysisRuns returns the newest runs first. A limit of zero or less
// returns every run.
func (s *SQLiteStore) ListAnalysisRuns(ctx context.Context, reviewID string, limit int) ([]*models.AnalysisRun, error) {
	q := sq.Select("id", "review_id", "status", "total_paragraphs", "scored_paragraphs", "failed_paragraphs",
		"stale_paragraphs", "error", "started_at", "finished_at").
		From("analysis_runs").
		Where(sq.Eq{"review_id": reviewID}).
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.AnalysisRun
	for rows.Next() {
		r := &models.AnalysisRun{}
		var status string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.ReviewID, &status, &r.TotalParagraphs, &r.ScoredParagraphs,
			&r.FailedParagraphs, &r.StaleParagraphs, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		r.Status = models.RunStatus(status)
		r.FinishedAt = nullTimePtr(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
