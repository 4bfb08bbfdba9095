package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/paiban/rota/pkg/model"
)

// assignmentCopyColumns COPY 的固定列顺序
var assignmentCopyColumns = []string{
	"id", "schedule_id", "staff_id", "ward_id", "date", "slot", "shift_type_id", "created_at", "updated_at",
}

// BulkAssignmentWriter 以整体替换的方式写入排班分配
//
// 删除旧分配与 COPY 写入新分配在同一事务内完成，任何一步失败都整体回滚，
// 外部永远看不到部分替换的结果。字段通过驱动的 COPY 文本格式转义。
type BulkAssignmentWriter struct {
	tx  TxRunner
	now func() time.Time
}

// NewBulkAssignmentWriter 创建批量写入器
func NewBulkAssignmentWriter(tx TxRunner) *BulkAssignmentWriter {
	return &BulkAssignmentWriter{tx: tx, now: time.Now}
}

// Persist 替换排班的全部分配并保存求解指标，返回写入行数
func (w *BulkAssignmentWriter) Persist(ctx context.Context, scheduleID uuid.UUID, rows []model.Assignment, metricsJSON []byte) (int, error) {
	stamp := w.now().UTC()
	inserted := 0

	err := w.tx.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE schedule_id = $1`, scheduleID); err != nil {
			return fmt.Errorf("删除旧分配失败: %w", err)
		}

		if len(rows) > 0 {
			n, err := copyAssignments(ctx, tx, scheduleID, rows, stamp)
			if err != nil {
				return err
			}
			inserted = n
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE schedules SET metrics = $2, last_solved_at = $3, updated_at = $3 WHERE id = $1`,
			scheduleID, metricsDoc(metricsJSON), stamp,
		); err != nil {
			return fmt.Errorf("保存求解指标失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func copyAssignments(ctx context.Context, tx *sql.Tx, scheduleID uuid.UUID, rows []model.Assignment, stamp time.Time) (int, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("assignments", assignmentCopyColumns...))
	if err != nil {
		return 0, fmt.Errorf("准备 COPY 失败: %w", err)
	}
	defer stmt.Close()

	for _, a := range rows {
		if _, err := stmt.ExecContext(ctx,
			uuid.New(), scheduleID, a.StaffID, a.WardID, a.Date, a.Slot, a.ShiftTypeID, stamp, stamp,
		); err != nil {
			return 0, fmt.Errorf("写入 COPY 行失败: %w", err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, fmt.Errorf("提交 COPY 失败: %w", err)
	}
	return len(rows), nil
}

func metricsDoc(metricsJSON []byte) []byte {
	if len(metricsJSON) == 0 {
		return []byte("{}")
	}
	return metricsJSON
}
