package output

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite 驱动
)

// ArtifactRecord 产物索引中的一条记录
type ArtifactRecord struct {
	Kind      Kind
	Seq       int
	Path      string
	Source    string
	WrittenAt time.Time
}

// Index 产物索引,记录每个写出的文件及其来源URL
type Index struct {
	db   *sql.DB
	path string
}

// OpenIndex 打开或创建产物索引数据库
func OpenIndex(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建索引目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("打开索引数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("启用WAL失败: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		seq INTEGER NOT NULL,
		path TEXT NOT NULL,
		source TEXT NOT NULL,
		written_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_source ON artifacts(source);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建索引表失败: %w", err)
	}

	return &Index{db: db, path: path}, nil
}

// Record 写入一条产物记录
func (i *Index) Record(ctx context.Context, rec ArtifactRecord) error {
	if rec.WrittenAt.IsZero() {
		rec.WrittenAt = time.Now()
	}
	_, err := i.db.ExecContext(ctx,
		`INSERT INTO artifacts (kind, seq, path, source, written_at) VALUES (?, ?, ?, ?, ?)`,
		string(rec.Kind), rec.Seq, rec.Path, rec.Source, rec.WrittenAt.UTC())
	if err != nil {
		return fmt.Errorf("写入产物索引失败: %w", err)
	}
	return nil
}

// BySource 查询某个来源URL写出的全部产物
func (i *Index) BySource(ctx context.Context, source string) ([]ArtifactRecord, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT kind, seq, path, source, written_at FROM artifacts WHERE source = ? ORDER BY id`, source)
	if err != nil {
		return nil, fmt.Errorf("查询产物索引失败: %w", err)
	}
	defer rows.Close()

	var records []ArtifactRecord
	for rows.Next() {
		var rec ArtifactRecord
		var kind string
		if err := rows.Scan(&kind, &rec.Seq, &rec.Path, &rec.Source, &rec.WrittenAt); err != nil {
			return nil, fmt.Errorf("读取产物记录失败: %w", err)
		}
		rec.Kind = Kind(kind)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count 返回索引中的记录数
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计产物索引失败: %w", err)
	}
	return n, nil
}

// Reset 清空索引 (全新运行时与产物目录一起清空)
func (i *Index) Reset(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM artifacts`); err != nil {
		return fmt.Errorf("清空产物索引失败: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (i *Index) Close() error {
	return i.db.Close()
}
