package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_bank_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		industry TEXT NOT NULL,
		rfp_text TEXT NOT NULL,
		proposal_text TEXT NOT NULL,
		outcome TEXT NOT NULL,
		win_probability REAL,
		key_phrases TEXT,
		required_certifications TEXT,
		project_value REAL,
		timeline_weeks INTEGER,
		competitor_count INTEGER,
		client_size TEXT,
		feedback_notes TEXT,
		embedding TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memory_user_industry ON memory_bank_entries(user_id, industry);
	CREATE INDEX IF NOT EXISTS idx_memory_created ON memory_bank_entries(created_at);

	CREATE TABLE IF NOT EXISTS industry_models (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		industry TEXT NOT NULL,
		model_version INTEGER NOT NULL,
		scoring_weights TEXT NOT NULL,
		training_data_count INTEGER NOT NULL DEFAULT 0,
		last_training_date INTEGER,
		performance_metrics TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_models_active
		ON industry_models(user_id, industry) WHERE is_active = 1;

	CREATE TABLE IF NOT EXISTS training_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		industry TEXT NOT NULL,
		model_id TEXT NOT NULL,
		training_type TEXT NOT NULL,
		data_points_used INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		status TEXT NOT NULL,
		before_metrics TEXT,
		after_metrics TEXT,
		improvements TEXT,
		error_detail TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (model_id) REFERENCES industry_models(id)
	);
	CREATE INDEX IF NOT EXISTS idx_training_user_industry ON training_logs(user_id, industry);

	CREATE TABLE IF NOT EXISTS match_results (
		id TEXT PRIMARY KEY,
		rfp_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		industry TEXT NOT NULL,
		model_version INTEGER NOT NULL,
		overall_score INTEGER NOT NULL,
		dimension_scores TEXT NOT NULL,
		confidence_level REAL NOT NULL,
		similar_entries TEXT,
		risk_factors TEXT,
		success_predictors TEXT,
		recommended_strategy TEXT,
		verdict TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_user ON match_results(user_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		match_result_id TEXT NOT NULL,
		rating INTEGER NOT NULL,
		feedback_type TEXT NOT NULL,
		comments TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (match_result_id) REFERENCES match_results(id)
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_result ON feedback(match_result_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertMemoryBankEntry(entry *models.MemoryBankEntry) error {
	keyPhrasesJSON, _ := json.Marshal(entry.KeyPhrases)
	certsJSON, _ := json.Marshal(entry.RequiredCertifications)
	embeddingJSON, _ := json.Marshal(entry.Embedding)

	query := `
		INSERT INTO memory_bank_entries (id, user_id, industry, rfp_text, proposal_text, outcome,
			win_probability, key_phrases, required_certifications, project_value, timeline_weeks,
			competitor_count, client_size, feedback_notes, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		entry.ID,
		entry.UserID,
		entry.Industry,
		entry.RFPText,
		entry.ProposalText,
		string(entry.Outcome),
		entry.WinProbability,
		string(keyPhrasesJSON),
		string(certsJSON),
		entry.ProjectValue,
		entry.TimelineWeeks,
		entry.CompetitorCount,
		entry.ClientSize,
		entry.FeedbackNotes,
		string(embeddingJSON),
		entry.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert memory bank entry: %w", err)
	}

	logger.Debug("Memory bank entry inserted",
		zap.String("entry_id", entry.ID),
		zap.String("user_id", entry.UserID),
		zap.String("industry", entry.Industry),
	)

	return nil
}

func (c *Client) ListMemoryBankEntries(userID, industry string) ([]models.MemoryBankEntry, error) {
	query := `
		SELECT id, user_id, industry, rfp_text, proposal_text, outcome, win_probability,
			key_phrases, required_certifications, project_value, timeline_weeks,
			competitor_count, client_size, feedback_notes, embedding, created_at
		FROM memory_bank_entries
		WHERE user_id = ? AND industry = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.Query(query, userID, industry)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory bank entries: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryBankEntry
	for rows.Next() {
		var e models.MemoryBankEntry
		var outcome string
		var keyPhrasesJSON, certsJSON, embeddingJSON sql.NullString
		var createdAt int64

		err := rows.Scan(
			&e.ID, &e.UserID, &e.Industry, &e.RFPText, &e.ProposalText, &outcome,
			&e.WinProbability, &keyPhrasesJSON, &certsJSON, &e.ProjectValue,
			&e.TimelineWeeks, &e.CompetitorCount, &e.ClientSize, &e.FeedbackNotes,
			&embeddingJSON, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.Outcome = models.Outcome(outcome)
		e.CreatedAt = time.Unix(createdAt, 0)
		if keyPhrasesJSON.Valid {
			json.Unmarshal([]byte(keyPhrasesJSON.String), &e.KeyPhrases)
		}
		if certsJSON.Valid {
			json.Unmarshal([]byte(certsJSON.String), &e.RequiredCertifications)
		}
		if embeddingJSON.Valid {
			json.Unmarshal([]byte(embeddingJSON.String), &e.Embedding)
		}

		entries = append(entries, e)
	}

	return entries, nil
}

func (c *Client) CountMemoryBankEntries(userID, industry string) (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM memory_bank_entries WHERE user_id = ? AND industry = ?`,
		userID, industry,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count memory bank entries: %w", err)
	}
	return count, nil
}

func (c *Client) InsertIndustryModel(m *models.IndustryModel) error {
	weightsJSON, _ := json.Marshal(m.ScoringWeights)
	metricsJSON, _ := json.Marshal(m.PerformanceMetrics)

	isActive := 0
	if m.IsActive {
		isActive = 1
	}

	var lastTraining *int64
	if m.LastTrainingDate != nil {
		ts := m.LastTrainingDate.Unix()
		lastTraining = &ts
	}

	query := `
		INSERT INTO industry_models (id, user_id, industry, model_version, scoring_weights,
			training_data_count, last_training_date, performance_metrics, is_active, version,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		m.ID,
		m.UserID,
		m.Industry,
		m.ModelVersion,
		string(weightsJSON),
		m.TrainingDataCount,
		lastTraining,
		string(metricsJSON),
		isActive,
		m.Version,
		m.CreatedAt.Unix(),
		m.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert industry model: %w", err)
	}

	logger.Info("Industry model created",
		zap.String("model_id", m.ID),
		zap.String("user_id", m.UserID),
		zap.String("industry", m.Industry),
	)

	return nil
}

func (c *Client) GetActiveIndustryModel(userID, industry string) (*models.IndustryModel, error) {
	query := `
		SELECT id, user_id, industry, model_version, scoring_weights, training_data_count,
			last_training_date, performance_metrics, is_active, version, created_at, updated_at
		FROM industry_models
		WHERE user_id = ? AND industry = ? AND is_active = 1
	`

	return c.scanIndustryModel(c.db.QueryRow(query, userID, industry))
}

func (c *Client) scanIndustryModel(row *sql.Row) (*models.IndustryModel, error) {
	var m models.IndustryModel
	var weightsJSON, metricsJSON sql.NullString
	var lastTraining sql.NullInt64
	var isActive int
	var createdAt, updatedAt int64

	err := row.Scan(
		&m.ID, &m.UserID, &m.Industry, &m.ModelVersion, &weightsJSON, &m.TrainingDataCount,
		&lastTraining, &metricsJSON, &isActive, &m.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get industry model: %w", err)
	}

	m.IsActive = isActive == 1
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	if weightsJSON.Valid {
		json.Unmarshal([]byte(weightsJSON.String), &m.ScoringWeights)
	}
	if metricsJSON.Valid {
		json.Unmarshal([]byte(metricsJSON.String), &m.PerformanceMetrics)
	}
	if lastTraining.Valid {
		ts := time.Unix(lastTraining.Int64, 0)
		m.LastTrainingDate = &ts
	}

	return &m, nil
}

// UpdateIndustryModel writes the model back using the version it was read at.
// A stale version means another writer got there first; callers re-read and retry.
func (c *Client) UpdateIndustryModel(m *models.IndustryModel) error {
	weightsJSON, _ := json.Marshal(m.ScoringWeights)
	metricsJSON, _ := json.Marshal(m.PerformanceMetrics)

	var lastTraining *int64
	if m.LastTrainingDate != nil {
		ts := m.LastTrainingDate.Unix()
		lastTraining = &ts
	}

	query := `
		UPDATE industry_models
		SET model_version = ?, scoring_weights = ?, training_data_count = ?,
			last_training_date = ?, performance_metrics = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := c.db.Exec(
		query,
		m.ModelVersion,
		string(weightsJSON),
		m.TrainingDataCount,
		lastTraining,
		string(metricsJSON),
		time.Now().Unix(),
		m.ID,
		m.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update industry model: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrVersionConflict
	}

	m.Version++
	return nil
}

func (c *Client) DeactivateIndustryModel(modelID string) error {
	_, err := c.db.Exec(
		`UPDATE industry_models SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), modelID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate industry model: %w", err)
	}
	return nil
}

func (c *Client) InsertTrainingLog(log *models.TrainingLog) error {
	beforeJSON, _ := json.Marshal(log.BeforeMetrics)
	afterJSON, _ := json.Marshal(log.AfterMetrics)
	improvementsJSON, _ := json.Marshal(log.Improvements)

	query := `
		INSERT INTO training_logs (id, user_id, industry, model_id, training_type,
			data_points_used, duration_seconds, status, before_metrics, after_metrics,
			improvements, error_detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		log.ID,
		log.UserID,
		log.Industry,
		log.ModelID,
		string(log.TrainingType),
		log.DataPointsUsed,
		log.DurationSeconds,
		log.Status,
		string(beforeJSON),
		string(afterJSON),
		string(improvementsJSON),
		log.ErrorDetail,
		log.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert training log: %w", err)
	}

	return nil
}

func (c *Client) ListTrainingLogs(userID, industry string, limit int) ([]models.TrainingLog, error) {
	query := `
		SELECT id, user_id, industry, model_id, training_type, data_points_used,
			duration_seconds, status, before_metrics, after_metrics, improvements,
			error_detail, created_at
		FROM training_logs
		WHERE user_id = ? AND industry = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, userID, industry, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list training logs: %w", err)
	}
	defer rows.Close()

	var logs []models.TrainingLog
	for rows.Next() {
		var l models.TrainingLog
		var trainingType string
		var beforeJSON, afterJSON, improvementsJSON sql.NullString
		var createdAt int64

		err := rows.Scan(
			&l.ID, &l.UserID, &l.Industry, &l.ModelID, &trainingType, &l.DataPointsUsed,
			&l.DurationSeconds, &l.Status, &beforeJSON, &afterJSON, &improvementsJSON,
			&l.ErrorDetail, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		l.TrainingType = models.TrainingType(trainingType)
		l.CreatedAt = time.Unix(createdAt, 0)
		if beforeJSON.Valid {
			json.Unmarshal([]byte(beforeJSON.String), &l.BeforeMetrics)
		}
		if afterJSON.Valid {
			json.Unmarshal([]byte(afterJSON.String), &l.AfterMetrics)
		}
		if improvementsJSON.Valid {
			json.Unmarshal([]byte(improvementsJSON.String), &l.Improvements)
		}

		logs = append(logs, l)
	}

	return logs, nil
}

func (c *Client) InsertMatchResult(r *models.MatchResult) error {
	dimensionsJSON, _ := json.Marshal(r.DimensionScores)
	similarJSON, _ := json.Marshal(r.SimilarEntries)
	risksJSON, _ := json.Marshal(r.RiskFactors)
	predictorsJSON, _ := json.Marshal(r.SuccessPredictors)

	query := `
		INSERT INTO match_results (id, rfp_id, user_id, industry, model_version, overall_score,
			dimension_scores, confidence_level, similar_entries, risk_factors,
			success_predictors, recommended_strategy, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		r.ID,
		r.RFPID,
		r.UserID,
		r.Industry,
		r.ModelVersion,
		r.OverallScore,
		string(dimensionsJSON),
		r.ConfidenceLevel,
		string(similarJSON),
		string(risksJSON),
		string(predictorsJSON),
		r.RecommendedStrategy,
		r.Verdict,
		r.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert match result: %w", err)
	}

	logger.Info("Match result recorded",
		zap.String("result_id", r.ID),
		zap.String("user_id", r.UserID),
		zap.Int("overall_score", r.OverallScore),
	)

	return nil
}

func (c *Client) GetMatchResult(id string) (*models.MatchResult, error) {
	query := `
		SELECT id, rfp_id, user_id, industry, model_version, overall_score, dimension_scores,
			confidence_level, similar_entries, risk_factors, success_predictors,
			recommended_strategy, verdict, created_at
		FROM match_results
		WHERE id = ?
	`

	var r models.MatchResult
	var dimensionsJSON, similarJSON, risksJSON, predictorsJSON sql.NullString
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&r.ID, &r.RFPID, &r.UserID, &r.Industry, &r.ModelVersion, &r.OverallScore,
		&dimensionsJSON, &r.ConfidenceLevel, &similarJSON, &risksJSON, &predictorsJSON,
		&r.RecommendedStrategy, &r.Verdict, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match result: %w", err)
	}

	r.CreatedAt = time.Unix(createdAt, 0)
	if dimensionsJSON.Valid {
		json.Unmarshal([]byte(dimensionsJSON.String), &r.DimensionScores)
	}
	if similarJSON.Valid {
		json.Unmarshal([]byte(similarJSON.String), &r.SimilarEntries)
	}
	if risksJSON.Valid {
		json.Unmarshal([]byte(risksJSON.String), &r.RiskFactors)
	}
	if predictorsJSON.Valid {
		json.Unmarshal([]byte(predictorsJSON.String), &r.SuccessPredictors)
	}

	return &r, nil
}

func (c *Client) InsertFeedback(f *models.Feedback) error {
	query := `
		INSERT INTO feedback (id, user_id, match_result_id, rating, feedback_type, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		f.ID,
		f.UserID,
		f.MatchResultID,
		f.Rating,
		string(f.FeedbackType),
		f.Comments,
		f.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("feedback_id", f.ID),
		zap.String("match_result_id", f.MatchResultID),
		zap.Int("rating", f.Rating),
	)

	return nil
}
