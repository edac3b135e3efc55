package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/entity"
	"gorm.io/gorm"
)

// DocumentRepository SO Against Invoice单据仓库
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// ListParams 单据列表查询参数
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	// UserID大于0时只返回该用户的单据（非admin/manager用户）
	UserID uint
}

// FindAll 分页查询单据列表
func (r *DocumentRepository) FindAll(ctx context.Context, params ListParams) ([]entity.SoInvoiceDocument, int64, error) {
	var docs []entity.SoInvoiceDocument
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.SoInvoiceDocument{})

	if params.UserID > 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.Search != "" {
		// LOWER+LIKE兼容mysql和postgres双驱动
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where(
			"LOWER(document_number) LIKE ? OR LOWER(so_number) LIKE ? OR LOWER(card_code) LIKE ? OR LOWER(card_name) LIKE ? OR LOWER(status) LIKE ?",
			pattern, pattern, pattern, pattern, pattern,
		)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.PageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(params.PageSize).
		Find(&docs).Error

	return docs, total, err
}

// FindByID 按ID查找单据（含行和序列号）
func (r *DocumentRepository) FindByID(ctx context.Context, id uint) (*entity.SoInvoiceDocument, error) {
	var doc entity.SoInvoiceDocument
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_num ASC")
		}).
		Preload("Lines.Serials").
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// Create 创建单据
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.SoInvoiceDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// Update 更新单据头
func (r *DocumentRepository) Update(ctx context.Context, doc *entity.SoInvoiceDocument) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

// ReplaceLines 全量替换单据头字段和行项
// 删除旧行（含序列号）并插入新行，整体在一个事务内：要么全部生效要么全部回滚
func (r *DocumentRepository) ReplaceLines(ctx context.Context, doc *entity.SoInvoiceDocument, lines []entity.SoInvoiceLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Lines").Save(doc).Error; err != nil {
			return err
		}

		// 先删旧行的序列号，再删旧行
		var lineIDs []uint
		if err := tx.Model(&entity.SoInvoiceLine{}).
			Where("document_id = ?", doc.ID).
			Pluck("id", &lineIDs).Error; err != nil {
			return err
		}
		if len(lineIDs) > 0 {
			if err := tx.Where("line_id IN ?", lineIDs).Delete(&entity.SoInvoiceSerial{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("document_id = ?", doc.ID).Delete(&entity.SoInvoiceLine{}).Error; err != nil {
			return err
		}

		for i := range lines {
			lines[i].ID = 0
			lines[i].DocumentID = doc.ID
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindLine 查找属于指定单据的行
func (r *DocumentRepository) FindLine(ctx context.Context, docID, lineID uint) (*entity.SoInvoiceLine, error) {
	var line entity.SoInvoiceLine
	err := r.db.WithContext(ctx).
		Where("id = ? AND document_id = ?", lineID, docID).
		First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// UpdateLineAllocation 写入行的已校验数量并全量替换其序列号分配
func (r *DocumentRepository) UpdateLineAllocation(ctx context.Context, line *entity.SoInvoiceLine, serials []entity.SoInvoiceSerial) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Serials").Save(line).Error; err != nil {
			return err
		}
		if err := tx.Where("line_id = ?", line.ID).Delete(&entity.SoInvoiceSerial{}).Error; err != nil {
			return err
		}
		for i := range serials {
			serials[i].ID = 0
			serials[i].LineID = line.ID
		}
		if len(serials) > 0 {
			if err := tx.Create(&serials).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
