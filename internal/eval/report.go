package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// ErrReportNotFound 指定 ID 的报告不存在。
var ErrReportNotFound = errors.New("评估报告不存在")

type reportModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	RunID         string         `gorm:"column:run_id;index:idx_report_run"`
	Episodes      int            `gorm:"column:episodes"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (reportModel) TableName() string { return "eval_reports" }

// ReportStore 评估报告持久化（Gorm + SQLite）。
type ReportStore struct {
	db *gorm.DB
}

func NewReportStore(path string) (*ReportStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("report store: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建报告目录失败: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&reportModel{}); err != nil {
		return nil, err
	}
	return &ReportStore{db: db}, nil
}

func (s *ReportStore) Save(ctx context.Context, rep Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}
	rec := reportModel{
		ID:            rep.ID,
		RunID:         rep.RunID,
		Episodes:      rep.Episodes,
		Payload:       datatypes.JSON(payload),
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *ReportStore) Get(ctx context.Context, id string) (Report, error) {
	var rec reportModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Report{}, ErrReportNotFound
	}
	if err != nil {
		return Report{}, err
	}
	var rep Report
	if err := json.Unmarshal([]byte(rec.Payload), &rep); err != nil {
		return Report{}, fmt.Errorf("解析报告失败: %w", err)
	}
	return rep, nil
}

// List 按创建时间倒序返回报告 ID。
func (s *ReportStore) List(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&reportModel{}).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *ReportStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
