package entity

import "time"

// 单据状态
// draft → validated → posted；failed仅从过账失败进入，可重试
const (
	DocStatusDraft     = "draft"
	DocStatusValidated = "validated"
	DocStatusPosted    = "posted"
	DocStatusFailed    = "failed"
)

// SoInvoiceDocument SO Against Invoice单据 — 一次向导工作流实例
type SoInvoiceDocument struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	DocumentNumber string `json:"document_number" gorm:"size:32;uniqueIndex;not null"`
	Status         string `json:"status" gorm:"size:20;not null;default:draft"`

	// 来源销售订单
	SoSeries     int    `json:"so_series"`
	SoSeriesName string `json:"so_series_name" gorm:"size:100"`
	SoNumber     string `json:"so_number" gorm:"size:50;index"`
	SoDocEntry   int    `json:"so_doc_entry"`

	// 业务伙伴
	CardCode        string `json:"card_code" gorm:"size:50;index"`
	CardName        string `json:"card_name" gorm:"size:200"`
	CustomerAddress string `json:"customer_address" gorm:"size:500"`

	// 日期与分支
	DocDate    time.Time  `json:"doc_date"`
	DocDueDate *time.Time `json:"doc_due_date"`
	BPLID      int        `json:"bplid"`

	UserID uint `json:"user_id" gorm:"not null;index"`

	// 过账结果：成功写SapInvoiceNumber，失败写PostingError
	SapInvoiceNumber string `json:"sap_invoice_number" gorm:"size:50"`
	PostingError     string `json:"posting_error" gorm:"type:text"`

	Comments  string    `json:"comments" gorm:"size:500"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []SoInvoiceLine `json:"lines,omitempty" gorm:"foreignKey:DocumentID"`
	User  *User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (SoInvoiceDocument) TableName() string {
	return "so_invoice_documents"
}

// SoInvoiceLine 单据行，整体随save-details全量替换
type SoInvoiceLine struct {
	ID              uint    `json:"id" gorm:"primaryKey"`
	DocumentID      uint    `json:"document_id" gorm:"not null;index"`
	LineNum         int     `json:"line_num"`
	ItemCode        string  `json:"item_code" gorm:"size:50;not null"`
	ItemDescription string  `json:"item_description" gorm:"size:200"`
	SoQuantity      float64 `json:"so_quantity" gorm:"type:decimal(12,4);not null"`
	WarehouseCode   string  `json:"warehouse_code" gorm:"size:20"`
	// 物料校验通过后由客户端写入，初始为0
	ValidatedQuantity float64 `json:"validated_quantity" gorm:"type:decimal(12,4);default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Serials []SoInvoiceSerial `json:"serials,omitempty" gorm:"foreignKey:LineID"`
}

func (SoInvoiceLine) TableName() string {
	return "so_invoice_lines"
}

// SoInvoiceSerial 行序列号分配，存在即表明该行是序列号管理物料
// Quantity大于1表示批次式聚合
type SoInvoiceSerial struct {
	ID             uint    `json:"id" gorm:"primaryKey"`
	LineID         uint    `json:"line_id" gorm:"not null;index"`
	SerialNumber   string  `json:"serial_number" gorm:"size:100;not null"`
	Quantity       float64 `json:"quantity" gorm:"type:decimal(12,4);default:1"`
	BaseLineNumber int     `json:"base_line_number"`

	CreatedAt time.Time `json:"created_at"`
}

func (SoInvoiceSerial) TableName() string {
	return "so_invoice_serials"
}
