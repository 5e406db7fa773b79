package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"assistant-web/internal/domain"
)

// sessionRecord is the browser_sessions row for one browser.
type sessionRecord struct {
	BrowserID    string    `gorm:"primaryKey;size:64"`
	AccessToken  string    `gorm:"type:text"`
	RefreshToken string    `gorm:"type:text"`
	TokenType    string    `gorm:"size:32"`
	ExpiresAt    time.Time `gorm:"not null"`
	UserID       string    `gorm:"size:64"`
	Email        string    `gorm:"size:255"`
	SavedAt      time.Time `gorm:"index"`
}

func (sessionRecord) TableName() string {
	return "browser_sessions"
}

// SQLStore keeps browser sessions in a SQL database so they survive restarts
// of a self-hosted server.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLStore connects with driver ("sqlite" or "mysql") and migrates the
// sessions table.
func OpenSQLStore(driver, dsn string) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("repository: unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", driver, err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an open connection and migrates the sessions table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("repository: migrate sessions: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// Load returns the stored session, or nil when none exists or it was saved
// longer ago than the session TTL.
func (s *SQLStore) Load(ctx context.Context, browserID string) (*domain.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).Where("browser_id = ?", browserID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: load session: %w", err)
	}
	if s.now().Sub(rec.SavedAt) > ttlDuration {
		return nil, nil
	}
	return &domain.Session{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		ExpiresAt:    rec.ExpiresAt.UTC(),
		User:         domain.User{ID: rec.UserID, Email: rec.Email},
	}, nil
}

func (s *SQLStore) Save(ctx context.Context, browserID string, sess *domain.Session) error {
	if sess == nil {
		return errors.New("repository: session must not be nil")
	}
	rec := sessionRecord{
		BrowserID:    browserID,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		TokenType:    sess.TokenType,
		ExpiresAt:    sess.ExpiresAt.UTC(),
		UserID:       sess.User.ID,
		Email:        sess.User.Email,
		SavedAt:      s.now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("repository: save session: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, browserID string) error {
	err := s.db.WithContext(ctx).Where("browser_id = ?", browserID).Delete(&sessionRecord{}).Error
	if err != nil {
		return fmt.Errorf("repository: delete session: %w", err)
	}
	return nil
}
