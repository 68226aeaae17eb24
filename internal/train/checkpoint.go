package train

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// CheckpointVersion 当前检查点格式版本。不兼容变更时递增。
const CheckpointVersion = 1

// ErrNoCheckpoint 指定 run 尚无检查点。
var ErrNoCheckpoint = errors.New("没有可用的检查点")

// CheckpointVersionError 检查点格式版本不匹配，拒绝恢复。
type CheckpointVersionError struct {
	Got  int64
	Want int64
}

func (e *CheckpointVersionError) Error() string {
	return fmt.Sprintf("检查点版本不兼容: got=%d want=%d", e.Got, e.Want)
}

// Checkpoint 训练进度快照：策略参数 + 已完成 episode 数。
// 恢复后从 Episode 继续，seed 序列不变，训练轨迹可续接。
type Checkpoint struct {
	Version     int             `json:"version"`
	RunID       string          `json:"run_id"`
	Episode     int             `json:"episode"`
	Steps       int64           `json:"steps"`
	BaseSeed    uint64          `json:"base_seed"`
	PolicyName  string          `json:"policy_name"`
	PolicyState json.RawMessage `json:"policy_state"`
	CreatedAt   int64           `json:"created_at"`
}

// EncodeCheckpoint 序列化为带版本头的 JSON。
func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	cp.Version = CheckpointVersion
	if cp.CreatedAt == 0 {
		cp.CreatedAt = time.Now().Unix()
	}
	return json.Marshal(cp)
}

// DecodeCheckpoint 先探测版本字段再完整解析，版本不符立即报错。
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	v := gjson.GetBytes(data, "version")
	if !v.Exists() || v.Int() != CheckpointVersion {
		return Checkpoint{}, &CheckpointVersionError{Got: v.Int(), Want: CheckpointVersion}
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("解析检查点失败: %w", err)
	}
	return cp, nil
}

type checkpointModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	RunID         string         `gorm:"column:run_id;index:idx_ckpt_run"`
	Episode       int            `gorm:"column:episode"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (checkpointModel) TableName() string { return "checkpoints" }

// CheckpointStore 检查点持久化（Gorm + SQLite）。只追加，恢复取最新一条。
type CheckpointStore struct {
	db *gorm.DB
}

func NewCheckpointStore(path string) (*CheckpointStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("checkpoint store: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建检查点目录失败: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&checkpointModel{}); err != nil {
		return nil, err
	}
	return &CheckpointStore{db: db}, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	rec := checkpointModel{
		RunID:         cp.RunID,
		Episode:       cp.Episode,
		Payload:       datatypes.JSON(payload),
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// Latest 返回指定 run 最新的检查点，没有则返回 ErrNoCheckpoint。
func (s *CheckpointStore) Latest(ctx context.Context, runID string) (Checkpoint, error) {
	var rec checkpointModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("episode DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, err
	}
	return DecodeCheckpoint([]byte(rec.Payload))
}

func (s *CheckpointStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
