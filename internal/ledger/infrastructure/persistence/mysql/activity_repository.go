package mysql

import (
	"context"
	"time"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"github.com/nilebridge/cargoledger/pkg/logger"
	"gorm.io/gorm"
)

// ActivityLog 审计流水。独立于账本事务写入。
type ActivityLog struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"index"`

	Action      string `gorm:"column:action;type:varchar(64);index;not null"`
	ActorID     string `gorm:"column:actor_id;type:varchar(64);index"`
	Description string `gorm:"column:description;type:varchar(512)"`
	RefTable    string `gorm:"column:ref_table;type:varchar(64)"`
	RefID       uint64 `gorm:"column:ref_id;index"`
}

// TableName 表名
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// activityRecorder 审计日志落地实现。始终走独立连接而非业务事务：
// 写入失败只记日志，不影响账本操作的提交与回滚。
type activityRecorder struct {
	db *gorm.DB
}

// NewActivityRecorder 创建审计记录器
func NewActivityRecorder(db *gorm.DB) domain.ActivityRecorder {
	return &activityRecorder{db: db}
}

func (r *activityRecorder) Record(ctx context.Context, action, actorID, description, refTable string, refID uint64) {
	log := &ActivityLog{
		Action:      action,
		ActorID:     actorID,
		Description: description,
		RefTable:    refTable,
		RefID:       refID,
	}
	if err := r.db.WithContext(context.WithoutCancel(ctx)).Create(log).Error; err != nil {
		logger.Warn(ctx, "failed to record activity log",
			"action", action,
			"ref_table", refTable,
			"ref_id", refID,
			"error", err,
		)
	}
}
