// Package mysql 账本仓储的 MySQL 实现
package mysql

import (
	"context"
	"errors"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"gorm.io/gorm"
)

// MySQL 错误码
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrDuplicateEntry  = 1062
)

// mapErr 把存储层错误翻译为领域错误码。
// 锁等待超时与死锁都归为并发冲突，调用方可安全重试。
func mapErr(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewError(domain.CodeNotFound, "%s", notFoundMsg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.CodeConcurrency, err, "lock wait timed out")
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return domain.WrapError(domain.CodeConcurrency, err, "row lock conflict")
		case mysqlErrDuplicateEntry:
			return domain.WrapError(domain.CodeValidation, err, "duplicate record")
		}
	}

	return domain.WrapError(domain.CodePersistence, err, "storage operation failed")
}
