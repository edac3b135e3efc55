package sap

// Service Layer数据结构 — 字段名与B1 JSON保持一致

// SeriesInfo 销售订单号段（SQLQueries Get_SO_Series返回行）
type SeriesInfo struct {
	Series     int    `json:"Series"`
	SeriesName string `json:"SeriesName"`
}

// OrderRef 订单查询结果行（Get_SO_Details返回行，只取DocEntry）
type OrderRef struct {
	DocEntry int `json:"DocEntry"`
}

// OrderLine 销售订单行
type OrderLine struct {
	LineNum         int     `json:"LineNum"`
	ItemCode        string  `json:"ItemCode"`
	ItemDescription string  `json:"ItemDescription"`
	Quantity        float64 `json:"Quantity"`
	WarehouseCode   string  `json:"WarehouseCode"`
}

// Order 销售订单（Orders资源）
type Order struct {
	DocEntry      int         `json:"DocEntry"`
	CardCode      string      `json:"CardCode"`
	CardName      string      `json:"CardName"`
	Address       string      `json:"Address"`
	DocumentLines []OrderLine `json:"DocumentLines"`
}

// SerialInfo 序列号校验结果（Series_Validation返回行）
type SerialInfo struct {
	DistNumber string `json:"DistNumber"`
	ItemCode   string `json:"ItemCode"`
	WhsCode    string `json:"WhsCode"`
}

// InvoiceSerial 发票行序列号
type InvoiceSerial struct {
	InternalSerialNumber string  `json:"InternalSerialNumber"`
	Quantity             float64 `json:"Quantity"`
	BaseLineNumber       int     `json:"BaseLineNumber"`
}

// InvoiceLine 发票行
type InvoiceLine struct {
	ItemCode        string          `json:"ItemCode"`
	ItemDescription string          `json:"ItemDescription"`
	Quantity        float64         `json:"Quantity"`
	WarehouseCode   string          `json:"WarehouseCode"`
	SerialNumbers   []InvoiceSerial `json:"SerialNumbers,omitempty"`
}

// InvoiceRequest A/R发票过账请求（Invoices资源）
type InvoiceRequest struct {
	DocDate       string        `json:"DocDate"`
	DocDueDate    string        `json:"DocDueDate"`
	BPLID         int           `json:"BPLID,omitempty"`
	CardCode      string        `json:"CardCode"`
	CreatedBy     string        `json:"U_EA_CREATEDBy,omitempty"`
	ApprovedBy    string        `json:"U_EA_Approved,omitempty"`
	Comments      string        `json:"Comments,omitempty"`
	DocumentLines []InvoiceLine `json:"DocumentLines"`
}

// InvoiceResult 过账成功响应（只取DocNum）
type InvoiceResult struct {
	DocEntry int `json:"DocEntry"`
	DocNum   int `json:"DocNum"`
}
