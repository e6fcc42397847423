package sqlite

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// BackupConfig controls the periodic file backup of the embedded database.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
}

// BackupService copies the SQLite file to a backup directory on a timer and
// prunes old copies.
type BackupService struct {
	dbPath string
	cfg    BackupConfig
	log    *zerolog.Logger
}

// NewBackupService creates a backup service for the database at dbPath.
func NewBackupService(dbPath string, cfg BackupConfig, log *zerolog.Logger) *BackupService {
	return &BackupService{dbPath: dbPath, cfg: cfg, log: log}
}

// Start runs the backup loop until ctx is cancelled. The first backup runs
// immediately.
func (s *BackupService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info().Msg("backup service disabled")
		return
	}

	interval := time.Duration(s.cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	s.log.Info().Dur("interval", interval).Str("path", s.cfg.Path).Msg("backup service started")

	if err := s.PerformBackup(); err != nil {
		s.log.Error().Err(err).Msg("initial backup failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PerformBackup(); err != nil {
				s.log.Error().Err(err).Msg("scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup copies the database file to a timestamped backup.
func (s *BackupService) PerformBackup() error {
	if err := os.MkdirAll(s.cfg.Path, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("bookings_%s.db", time.Now().Format("20060102_150405"))
	dst := filepath.Join(s.cfg.Path, name)

	source, err := os.Open(s.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return err
	}

	s.log.Info().Str("path", dst).Msg("backup completed")
	return nil
}

// CleanupOldBackups removes backups older than the retention window.
func (s *BackupService) CleanupOldBackups() {
	if s.cfg.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.cfg.Path)
	if err != nil {
		s.log.Error().Err(err).Msg("read backup directory for cleanup")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.log.Info().Str("file", file.Name()).Msg("deleting old backup")
			_ = os.Remove(filepath.Join(s.cfg.Path, file.Name()))
		}
	}
}
