// Package dataset 保存外部数据管道产出的整理后观测序列（时间升序，无原始行情杂质），
// 供历史重放模拟器取窗。
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Record 单个时间戳的观测：标的价与隐含波动率。
type Record struct {
	TS    int64   `json:"ts"` // Unix ms
	Price float64 `json:"price"`
	IV    float64 `json:"iv"`
}

// GapReport 汇总序列完整性检查结果。
type GapReport struct {
	Records  int        `json:"records"`
	Gaps     [][2]int64 `json:"gaps,omitempty"` // [前一点 ts, 后一点 ts]
	MaxGapMs int64      `json:"max_gap_ms"`
}

func (r GapReport) Ok() bool { return len(r.Gaps) == 0 }

// Store 管理 observations 表。单文件 sqlite，写入走互斥。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("dataset path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS observations (
		ts    INTEGER PRIMARY KEY,
		price REAL NOT NULL,
		iv    REAL NOT NULL DEFAULT 0,
		inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
	);`)
	return err
}

// InsertRecords 批量写入观测（重复 ts 覆盖）。
func (s *Store) InsertRecords(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (ts, price, iv) VALUES (?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET price=excluded.price, iv=excluded.iv`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.TS, r.Price, r.IV); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// All 返回全部观测（ts 升序）。重放数据规模按日频量级设计，整表读入可接受。
func (s *Store) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, price, iv FROM observations ORDER BY ts ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.TS, &r.Price, &r.IV); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Range 返回 [start, end] 闭区间内的观测。
func (s *Store) Range(ctx context.Context, start, end int64) ([]Record, error) {
	if start > 0 && end > 0 && end < start {
		start, end = end, start
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, price, iv FROM observations
		WHERE ts BETWEEN ? AND ? ORDER BY ts ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.TS, &r.Price, &r.IV); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM observations`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CheckGaps 扫描相邻时间戳间隔，超过 tolMs 的记为缺口。
func CheckGaps(records []Record, tolMs int64) GapReport {
	report := GapReport{Records: len(records)}
	for i := 1; i < len(records); i++ {
		gap := records[i].TS - records[i-1].TS
		if gap > report.MaxGapMs {
			report.MaxGapMs = gap
		}
		if tolMs > 0 && gap > tolMs {
			report.Gaps = append(report.Gaps, [2]int64{records[i-1].TS, records[i].TS})
		}
	}
	return report
}
