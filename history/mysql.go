package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/giygas/agrisafe-api/config"
	"github.com/giygas/agrisafe-api/logging"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

var _ Store = (*MySQLStore)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS medicine_recommendations (
	id CHAR(36) NOT NULL PRIMARY KEY,
	farmer_id VARCHAR(100) NOT NULL,
	shop_id VARCHAR(100) NOT NULL DEFAULT '',
	farmer_mobile VARCHAR(15) NOT NULL DEFAULT '',
	notes TEXT NOT NULL,
	animal_type VARCHAR(100) NOT NULL,
	disease VARCHAR(200) NOT NULL,
	weight_kg DOUBLE NOT NULL,
	age_days INT NOT NULL,
	age_category VARCHAR(50) NOT NULL,
	is_claimed BOOLEAN NOT NULL DEFAULT FALSE,
	claimed_by VARCHAR(100) NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	INDEX idx_rec_farmer (farmer_id, created_at),
	INDEX idx_rec_claimed (is_claimed, claimed_by, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS recommendation_items (
	recommendation_id CHAR(36) NOT NULL,
	position INT NOT NULL,
	requested_antibiotic VARCHAR(100) NOT NULL DEFAULT '',
	antibiotic VARCHAR(100) NOT NULL,
	single_dose_ml DOUBLE NOT NULL,
	dosage_per_kg DOUBLE NOT NULL,
	confidence DOUBLE NOT NULL,
	calculation_note TEXT NOT NULL,
	dose_source VARCHAR(20) NOT NULL,
	notes TEXT NOT NULL,
	daily_frequency INT NOT NULL,
	treatment_days INT NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	total_daily_dosage_ml DOUBLE NOT NULL,
	total_treatment_dosage_ml DOUBLE NOT NULL,
	frequency_description VARCHAR(50) NOT NULL,
	PRIMARY KEY (recommendation_id, position),
	CONSTRAINT fk_item_recommendation FOREIGN KEY (recommendation_id)
		REFERENCES medicine_recommendations (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

const selectRecords = `SELECT id, farmer_id, shop_id, farmer_mobile, notes, animal_type, disease,
	weight_kg, age_days, age_category, is_claimed, claimed_by, created_at, updated_at
	FROM medicine_recommendations`

const selectItems = `SELECT recommendation_id, position, requested_antibiotic, antibiotic,
	single_dose_ml, dosage_per_kg, confidence, calculation_note, dose_source, notes,
	daily_frequency, treatment_days, start_date, end_date, total_daily_dosage_ml,
	total_treatment_dosage_ml, frequency_description
	FROM recommendation_items`

const insertRecord = `INSERT INTO medicine_recommendations (id, farmer_id, shop_id, farmer_mobile,
	notes, animal_type, disease, weight_kg, age_days, age_category, is_claimed, claimed_by,
	created_at, updated_at)
	VALUES (:id, :farmer_id, :shop_id, :farmer_mobile, :notes, :animal_type, :disease,
	:weight_kg, :age_days, :age_category, :is_claimed, :claimed_by, :created_at, :updated_at)`

const insertItems = `INSERT INTO recommendation_items (recommendation_id, position,
	requested_antibiotic, antibiotic, single_dose_ml, dosage_per_kg, confidence,
	calculation_note, dose_source, notes, daily_frequency, treatment_days, start_date,
	end_date, total_daily_dosage_ml, total_treatment_dosage_ml, frequency_description)
	VALUES (:recommendation_id, :position, :requested_antibiotic, :antibiotic,
	:single_dose_ml, :dosage_per_kg, :confidence, :calculation_note, :dose_source, :notes,
	:daily_frequency, :treatment_days, :start_date, :end_date, :total_daily_dosage_ml,
	:total_treatment_dosage_ml, :frequency_description)`

// MySQLStore keeps plan headers in medicine_recommendations and their
// items in recommendation_items
type MySQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// DSN builds the driver connection string for cfg
func DSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	// UPDATE reports matched rows, so re-claiming by the same shop is not a miss
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

// Open connects to MySQL, verifies the connection and creates the table
// if it does not exist yet.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*MySQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := NewMySQLStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info("Connected to MySQL history store", "host", cfg.Host, "database", cfg.Name)
	return store, nil
}

// NewMySQLStore wraps an open connection
func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

// EnsureSchema creates the tables when missing
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create history schema: %w", err)
		}
	}
	return nil
}

// Save writes the header and its items in one transaction
func (s *MySQLStore) Save(ctx context.Context, rec *Record) (err error) {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record must have an id")
	}
	if len(rec.Items) == 0 {
		return fmt.Errorf("record %s has no items", rec.ID)
	}

	now := s.now().UTC().Truncate(time.Second)
	rec.CreatedAt, rec.UpdatedAt = now, now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Warn("Failed to roll back recommendation insert", "id", rec.ID, "error", rbErr)
			}
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertRecord, rec); err != nil {
		return fmt.Errorf("failed to insert recommendation %s: %w", rec.ID, err)
	}
	if _, err = tx.NamedExecContext(ctx, insertItems, rec.Items); err != nil {
		return fmt.Errorf("failed to insert items of recommendation %s: %w", rec.ID, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recommendation %s: %w", rec.ID, err)
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, selectRecords+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation %s: %w", id, err)
	}

	rec.Items = []Item{}
	if err := s.db.SelectContext(ctx, &rec.Items, selectItems+` WHERE recommendation_id = ? ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("failed to get items of recommendation %s: %w", id, err)
	}
	return &rec, nil
}

func (s *MySQLStore) ListByFarmer(ctx context.Context, farmerID string) ([]Record, error) {
	records, err := s.list(ctx, ` WHERE farmer_id = ? ORDER BY created_at DESC`, farmerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations for farmer %s: %w", farmerID, err)
	}
	return records, nil
}

func (s *MySQLStore) ListUnclaimed(ctx context.Context) ([]Record, error) {
	records, err := s.list(ctx, ` WHERE is_claimed = FALSE ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclaimed recommendations: %w", err)
	}
	return records, nil
}

func (s *MySQLStore) ListClaimedBy(ctx context.Context, claimedBy string) ([]Record, error) {
	records, err := s.list(ctx, ` WHERE is_claimed = TRUE AND claimed_by = ? ORDER BY created_at DESC`, claimedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations claimed by %s: %w", claimedBy, err)
	}
	return records, nil
}

// list selects headers matching where and attaches their items
func (s *MySQLStore) list(ctx context.Context, where string, args ...any) ([]Record, error) {
	records := []Record{}
	if err := s.db.SelectContext(ctx, &records, selectRecords+where, args...); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].ID
		records[i].Items = []Item{}
	}

	query, inArgs, err := sqlx.In(selectItems+` WHERE recommendation_id IN (?) ORDER BY recommendation_id, position`, ids)
	if err != nil {
		return nil, err
	}
	var items []Item
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), inArgs...); err != nil {
		return nil, err
	}

	byID := make(map[string]*Record, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}
	for _, item := range items {
		if rec, ok := byID[item.RecommendationID]; ok {
			rec.Items = append(rec.Items, item)
		}
	}
	return records, nil
}

// Claim marks the record claimed by claimedBy. Claiming again as the same
// shop succeeds; claiming a record held by another shop does not.
func (s *MySQLStore) Claim(ctx context.Context, id, claimedBy string) (*Record, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medicine_recommendations SET is_claimed = TRUE, claimed_by = ?, updated_at = ?
		WHERE id = ? AND (is_claimed = FALSE OR claimed_by = ?)`,
		claimedBy, s.now().UTC().Truncate(time.Second), id, claimedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to claim recommendation %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to claim recommendation %s: %w", id, err)
	} else if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyClaimed
	}

	return s.Get(ctx, id)
}

func (s *MySQLStore) Unclaim(ctx context.Context, id string) (*Record, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medicine_recommendations SET is_claimed = FALSE, claimed_by = NULL, updated_at = ? WHERE id = ?`,
		s.now().UTC().Truncate(time.Second), id)
	if err != nil {
		return nil, fmt.Errorf("failed to unclaim recommendation %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to unclaim recommendation %s: %w", id, err)
	} else if n == 0 {
		return nil, ErrNotFound
	}

	return s.Get(ctx, id)
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
