package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeriesRepository 号段缓存和单据编号序列仓库
type SeriesRepository struct {
	db *gorm.DB
}

func NewSeriesRepository(db *gorm.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

// FindAllCached 返回本地缓存的全部SAP号段
func (r *SeriesRepository) FindAllCached(ctx context.Context) ([]entity.SoSeries, error) {
	var series []entity.SoSeries
	err := r.db.WithContext(ctx).Order("series ASC").Find(&series).Error
	return series, err
}

// CacheMissing 将远端号段写入缓存，已存在的行保持不变（不修正过期的显示名）
func (r *SeriesRepository) CacheMissing(ctx context.Context, series []entity.SoSeries) error {
	if len(series) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "series"}},
			DoNothing: true,
		}).
		Create(&series).Error
}

// NextDocumentNumber 从命名计数器领取下一个单据编号
// SELECT ... FOR UPDATE行锁保证并发安全；计数器不存在时按默认前缀创建
func (r *SeriesRepository) NextDocumentNumber(ctx context.Context, code string) (string, error) {
	var number string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var series entity.DocumentNumberSeries
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			First(&series).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			series = entity.DocumentNumberSeries{
				Code:       code,
				Prefix:     "SOINV",
				NextNumber: 1,
			}
			if err := tx.Create(&series).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		number = fmt.Sprintf("%s-%05d", series.Prefix, series.NextNumber)
		series.NextNumber++
		return tx.Save(&series).Error
	})
	if err != nil {
		return "", err
	}
	return number, nil
}
