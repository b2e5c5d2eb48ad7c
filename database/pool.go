package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"team-presence/pkg/common"
)

// Querier 是 *sql.Conn 与 *sql.Tx 的公共子集
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Pool 包装 *sql.DB, 为获取连接设置上限等待时间
type Pool struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

// NewPool 创建连接池句柄
func NewPool(db *sql.DB, acquireTimeout time.Duration) *Pool {
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &Pool{db: db, acquireTimeout: acquireTimeout}
}

// DB 返回底层 *sql.DB
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Ping 健康检查
func (p *Pool) Ping(ctx context.Context) error {
	return p.Run(ctx, func(ctx context.Context, q Querier) error {
		var one int
		return q.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	})
}

// acquire 在 acquireTimeout 内获取一个连接, 超时返回 Unavailable
func (p *Pool) acquire(ctx context.Context) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.db.Conn(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, common.Unavailable(err)
		}
		return nil, Classify(err)
	}
	return conn, nil
}

// Run 在一个独占连接上执行 fn
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(ctx, conn)
}

// Tx 在事务中执行 fn. 事务开始后不再响应调用方取消, 只会提交或回滚;
// fn 返回错误或 panic 时整体回滚.
func (p *Pool) Tx(ctx context.Context, fn func(ctx context.Context, q Querier) error) (err error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	txCtx := context.WithoutCancel(ctx)
	tx, err := conn.BeginTx(txCtx, nil)
	if err != nil {
		return Classify(err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return Classify(err)
	}
	return nil
}

// Close 关闭连接池, 等待进行中的查询结束
func (p *Pool) Close() error {
	return p.db.Close()
}
