package entity

import "time"

// SoSeries SAP销售订单号段的本地缓存
// 远端查询成功时按需插入（已存在的行不更新），远端不可用时作为降级数据源
type SoSeries struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Series     int       `json:"series" gorm:"uniqueIndex;not null"`
	SeriesName string    `json:"series_name" gorm:"size:100"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SoSeries) TableName() string {
	return "so_series"
}

// 单据编号序列代码
const SeriesCodeSOInvoice = "SO_AGAINST_INVOICE"

// DocumentNumberSeries 命名单据编号计数器
// NextNumber在行锁事务内递增，保证编号唯一
type DocumentNumberSeries struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Code       string    `json:"code" gorm:"size:50;uniqueIndex;not null"`
	Prefix     string    `json:"prefix" gorm:"size:20;not null"`
	NextNumber int       `json:"next_number" gorm:"not null;default:1"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (DocumentNumberSeries) TableName() string {
	return "document_number_series"
}
