package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/plan"
)

// MySQLStore 使用 MySQL 记录执行历史。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore 并初始化表结构。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS execution_history (
        id VARCHAR(64) PRIMARY KEY,
        plan_id VARCHAR(64) NOT NULL,
        kind VARCHAR(32) NOT NULL,
        chain VARCHAR(32) NOT NULL,
        token VARCHAR(64) DEFAULT '',
        amount VARCHAR(128) DEFAULT '',
        recipient VARCHAR(255) DEFAULT '',
        status VARCHAR(32) NOT NULL,
        hash VARCHAR(128) DEFAULT '',
        reason TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_history_plan (plan_id),
        INDEX idx_history_created (created_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 execution_history 表失败")
	}
	return nil
}

// Append 插入一条历史记录。
func (s *MySQLStore) Append(ctx context.Context, entry *Entry) error {
	if err := validate(entry); err != nil {
		return err
	}
	if entry.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "历史记录缺少 ID")
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}

	const stmt = `INSERT INTO execution_history
        (id, plan_id, kind, chain, token, amount, recipient, status, hash, reason, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		entry.ID, entry.PlanID, string(entry.Kind), string(entry.Chain),
		entry.Token, entry.Amount, entry.Recipient,
		string(entry.Status), entry.Hash, entry.Reason, entry.CreatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入历史记录失败")
	}
	return nil
}

// List 按时间倒序返回最近的历史记录。
func (s *MySQLStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const stmt = `SELECT id, plan_id, kind, chain, token, amount, recipient, status, hash, reason, created_at
        FROM execution_history ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询历史记录失败")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var kind, chain, status string
		var reason sql.NullString
		if err := rows.Scan(&entry.ID, &entry.PlanID, &kind, &chain,
			&entry.Token, &entry.Amount, &entry.Recipient,
			&status, &entry.Hash, &reason, &entry.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "扫描历史记录失败")
		}
		entry.Kind = intent.Kind(kind)
		entry.Chain = intent.Chain(chain)
		entry.Status = plan.Status(status)
		entry.Reason = reason.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历历史记录失败")
	}
	return entries, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
