// Package database 提供数据库连接和管理
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paiban/rota/internal/config"
	"github.com/paiban/rota/internal/metrics"
	"github.com/paiban/rota/pkg/logger"

	_ "github.com/lib/pq" // PostgreSQL 驱动
)

const defaultSlowThreshold = 100 * time.Millisecond

// DB 数据库连接封装，超过阈值的SQL与事务按请求记录告警
type DB struct {
	*sql.DB
	slowThreshold time.Duration
	onSlow        func(ctx context.Context, op, query string, d time.Duration)
}

// New 创建数据库连接并测试连通性
func New(cfg *config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	db := Wrap(sqlDB)
	if cfg.SlowQueryThreshold > 0 {
		db.slowThreshold = cfg.SlowQueryThreshold
	}
	logger.Info().
		Int("max_open_conns", cfg.MaxOpenConns).
		Dur("slow_threshold", db.slowThreshold).
		Msg("数据库连接成功")
	return db, nil
}

// Wrap 包装已有连接
func Wrap(sqlDB *sql.DB) *DB {
	return &DB{DB: sqlDB, slowThreshold: defaultSlowThreshold, onSlow: reportSlow}
}

// Close 关闭数据库连接
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	logger.Info().Msg("关闭数据库连接")
	return db.DB.Close()
}

// Health 健康检查
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Transaction 执行事务，fn 返回错误或 panic 时回滚
//
// 整个事务的耗时也参与慢查询判断，批量写入的 COPY 在事务内完成。
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	defer func() { db.observe(ctx, "tx", "transaction", start) }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("事务回滚失败: %v (原始错误: %w)", rbErr, err)
		}
		logger.WithContext(ctx).Debug().Err(err).Msg("事务已回滚")
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("事务提交失败: %w", err)
	}
	return nil
}

// ExecContext 执行SQL语句
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := db.DB.ExecContext(ctx, query, args...)
	db.observe(ctx, "exec", query, start)
	return result, err
}

// QueryContext 执行查询
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := db.DB.QueryContext(ctx, query, args...)
	db.observe(ctx, "query", query, start)
	return rows, err
}

// QueryRowContext 执行单行查询，查询在返回前已执行完毕
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := db.DB.QueryRowContext(ctx, query, args...)
	db.observe(ctx, "query_row", query, start)
	return row
}

func (db *DB) observe(ctx context.Context, op, query string, start time.Time) {
	if d := time.Since(start); d > db.slowThreshold && db.onSlow != nil {
		db.onSlow(ctx, op, query, d)
	}
}

func reportSlow(ctx context.Context, op, query string, d time.Duration) {
	metrics.RecordSlowQuery(op)
	logger.WithContext(ctx).Warn().
		Str("op", op).
		Str("query", truncateQuery(query)).
		Dur("duration", d).
		Msg("慢SQL查询")
}

// truncateQuery 截断长查询
func truncateQuery(query string) string {
	if len(query) > 200 {
		return query[:200] + "..."
	}
	return query
}
