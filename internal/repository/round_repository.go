package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RoundPull/internal/domain/models"
	"RoundPull/internal/domain/repository"
	pkgkafka "RoundPull/pkg/kafka"
	applogger "RoundPull/pkg/logger"
)

// Schema returns the idempotent DDL for the rounds and predictions tables in db.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.rounds (
            round_id      String,
            raw_value     UInt8,
            label         LowCardinality(String),
            aux_label     LowCardinality(String),
            captured_at   DateTime64(3, 'UTC'),
            inter_arrival_ms Int64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (length(round_id), round_id)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.predictions (
            round_id         String,
            label            LowCardinality(String),
            aux_label        LowCardinality(String),
            confidence       LowCardinality(String),
            confidence_score UInt8,
            skip             UInt8,
            level            UInt16,
            calibrating      UInt8,
            score_high       Float64,
            score_low        Float64,
            reasoning        Array(String),
            created_at       DateTime64(3, 'UTC')
        ) ENGINE = MergeTree
        ORDER BY (created_at)`, db),
	}
}

// ClickHouseStorage implements Storage for ClickHouse.
// Round ids are stored as strings and ordered by (length, value) so ordering stays exact past 2^64.
type ClickHouseStorage struct {
	db          *sql.DB
	database    string
	rounds      string
	predictions string
	l           *applogger.Logger
}

// NewClickHouseStorage creates ClickHouse storage for the given database.
func NewClickHouseStorage(db *sql.DB, database string, l *applogger.Logger) *ClickHouseStorage {
	return &ClickHouseStorage{
		db:          db,
		database:    database,
		rounds:      database + ".rounds",
		predictions: database + ".predictions",
		l:           l,
	}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	for _, stmt := range Schema(s.database) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) StoreRound(ctx context.Context, r *models.Round) error {
	return s.StoreRounds(ctx, []*models.Round{r})
}

func (s *ClickHouseStorage) StoreRounds(ctx context.Context, rounds []*models.Round) error {
	if len(rounds) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(rounds); start += chunkSize {
		end := min(start+chunkSize, len(rounds))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, r := range rounds[start:end] {
			if r == nil {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.RoundID.String(),
				uint8(r.RawValue),
				string(r.Label),
				string(r.AuxLabel),
				r.CaptureTime.UTC(),
				r.InterArrival.Milliseconds(),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (round_id, raw_value, label, aux_label, captured_at, inter_arrival_ms) VALUES %s",
			s.rounds, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logError("clickhouse store_rounds error", err, applogger.Int("rows", len(values)))
			return fmt.Errorf("store rounds: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) StorePrediction(ctx context.Context, p *models.Prediction) error {
	q := fmt.Sprintf(`INSERT INTO %s (round_id, label, aux_label, confidence, confidence_score, skip, level, calibrating, score_high, score_low, reasoning, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.predictions)
	_, err := s.db.ExecContext(ctx, q,
		p.RoundID,
		string(p.Label),
		string(p.AuxLabel),
		string(p.ConfidenceLabel),
		uint8(p.ConfidenceScore),
		boolToUint8(p.SkipRecommended),
		uint16(p.Level),
		boolToUint8(p.Calibrating),
		p.ScoreHigh,
		p.ScoreLow,
		p.Reasoning,
		p.CreatedAt.UTC(),
	)
	if err != nil {
		s.logError("clickhouse store_prediction error", err, applogger.String("round_id", p.RoundID))
		return fmt.Errorf("store prediction: %w", err)
	}
	return nil
}

// RecentRounds returns up to limit most recent rounds, oldest first.
func (s *ClickHouseStorage) RecentRounds(ctx context.Context, limit int) ([]*models.Round, error) {
	start := time.Now()
	const qtpl = `
        SELECT round_id, raw_value, captured_at, inter_arrival_ms
        FROM %s FINAL
        ORDER BY length(round_id) DESC, round_id DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.rounds), limit)
	if err != nil {
		s.logError("clickhouse recent_rounds query error", err, applogger.Int("limit", limit))
		return nil, fmt.Errorf("recent rounds: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Round, 0, limit)
	for rows.Next() {
		var (
			rawID string
			raw   uint8
			ts    time.Time
			ms    int64
		)
		if err := rows.Scan(&rawID, &raw, &ts, &ms); err != nil {
			s.logError("clickhouse recent_rounds scan error", err, applogger.Int("limit", limit))
			return nil, fmt.Errorf("scan round: %w", err)
		}
		id, err := models.ParseRoundID(rawID)
		if err != nil {
			continue
		}
		out = append(out, &models.Round{
			RoundID:      id,
			RawValue:     int(raw),
			Label:        models.LabelOf(int(raw)),
			AuxLabel:     models.AuxLabelOf(int(raw)),
			CaptureTime:  ts,
			InterArrival: time.Duration(ms) * time.Millisecond,
		})
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse recent_rounds rows error", err, applogger.Int("limit", limit))
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse recent_rounds ok",
			applogger.Int("limit", limit),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // pool owned by pkg/clickhouse
}

func (s *ClickHouseStorage) logError(msg string, err error, fields ...applogger.Field) {
	if s.l == nil {
		return
	}
	s.l.Error(msg, append(fields, applogger.String("table", s.rounds), applogger.Error(err))...)
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// KafkaPublisher implements Publisher for Kafka. Messages are keyed by round id.
type KafkaPublisher struct {
	producer         *pkgkafka.Producer
	roundsTopic      string
	predictionsTopic string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, roundsTopic, predictionsTopic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, roundsTopic: roundsTopic, predictionsTopic: predictionsTopic}
}

func (p *KafkaPublisher) PublishRound(ctx context.Context, r *models.Round) error {
	return p.producer.Publish(ctx, p.roundsTopic, []byte(r.RoundID.String()), r)
}

func (p *KafkaPublisher) PublishPrediction(ctx context.Context, pr *models.Prediction) error {
	if p.predictionsTopic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.predictionsTopic, []byte(pr.RoundID), pr)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ repository.Storage   = (*ClickHouseStorage)(nil)
	_ repository.Publisher = (*KafkaPublisher)(nil)
)
