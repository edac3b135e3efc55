package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/service"
)

// InvoiceHandler SO Against Invoice接口
// 向导五步对应series / validate-so / fetch-so / validate-item / post
type InvoiceHandler struct {
	invoiceService *service.InvoiceService
}

func NewInvoiceHandler(invoiceService *service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// Create POST /api/v1/so-invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	doc, err := h.invoiceService.CreateDocument(c.Request.Context(), GetUserID(c))
	if err != nil {
		FailErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "document": doc})
}

// List GET /api/v1/so-invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	page, perPage := GetPagination(c)
	docs, total, err := h.invoiceService.ListDocuments(
		c.Request.Context(), GetUserID(c), GetRole(c), page, perPage, c.Query("search"))
	if err != nil {
		FailErr(c, err)
		return
	}
	OK(c, gin.H{
		"documents": docs,
		"total":     total,
		"page":      page,
		"per_page":  perPage,
	})
}

// Get GET /api/v1/so-invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	doc, err := h.invoiceService.GetDocument(c.Request.Context(), id, GetUserID(c), GetRole(c))
	if err != nil {
		FailErr(c, err)
		return
	}
	OK(c, gin.H{"document": doc})
}

// ListSeries GET /api/v1/so-invoices/series
// 向导第1步。三级降级保证此接口总是返回200
func (h *InvoiceHandler) ListSeries(c *gin.Context) {
	series, offline := h.invoiceService.ListSeries(c.Request.Context())
	resp := gin.H{"series": series}
	if offline {
		resp["offline_mode"] = true
	}
	OK(c, resp)
}

// ValidateSORequest SO校验请求
type ValidateSORequest struct {
	SoNumber string `json:"so_number" binding:"required"`
	Series   int    `json:"series" binding:"required"`
}

// ValidateSO POST /api/v1/so-invoices/validate-so
// 向导第2步
func (h *InvoiceHandler) ValidateSO(c *gin.Context) {
	var req ValidateSORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "so_number and series are required")
		return
	}

	docEntry, offline, err := h.invoiceService.ValidateSalesOrder(c.Request.Context(), req.SoNumber, req.Series)
	if err != nil {
		FailErr(c, err)
		return
	}

	resp := gin.H{
		"doc_entry": docEntry,
		"message":   fmt.Sprintf("SO %s validated successfully", req.SoNumber),
	}
	if offline {
		resp["offline_mode"] = true
		resp["message"] = fmt.Sprintf("SO %s validated successfully (offline mode)", req.SoNumber)
	}
	OK(c, resp)
}

// FetchSORequest SO明细获取请求
type FetchSORequest struct {
	DocEntry int `json:"doc_entry" binding:"required"`
}

// FetchSO POST /api/v1/so-invoices/fetch-so
// 向导第3步
func (h *InvoiceHandler) FetchSO(c *gin.Context) {
	var req FetchSORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "doc_entry is required")
		return
	}

	order, offline, err := h.invoiceService.FetchSalesOrder(c.Request.Context(), req.DocEntry)
	if err != nil {
		FailErr(c, err)
		return
	}

	resp := gin.H{"order": order}
	if offline {
		resp["offline_mode"] = true
	}
	OK(c, resp)
}

// ValidateItem POST /api/v1/so-invoices/validate-item
// 向导第4步
func (h *InvoiceHandler) ValidateItem(c *gin.Context) {
	var req service.ValidateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.invoiceService.ValidateItem(c.Request.Context(), req)
	if err != nil {
		FailErr(c, err)
		return
	}

	resp := gin.H{
		"item_type": result.ItemType,
		"message":   result.Message,
	}
	if result.SerialInfo != nil {
		resp["serial_info"] = result.SerialInfo
	}
	if result.Quantity > 0 {
		resp["quantity"] = result.Quantity
	}
	if result.Offline {
		resp["offline_mode"] = true
	}
	OK(c, resp)
}

// SaveDetails POST /api/v1/so-invoices/:id/details
func (h *InvoiceHandler) SaveDetails(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}

	var req service.SaveDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.invoiceService.SaveOrderDetails(c.Request.Context(), id, GetUserID(c), GetRole(c), req)
	if err != nil {
		FailErr(c, err)
		return
	}
	OK(c, gin.H{
		"document": doc,
		"message":  "Order details saved successfully",
	})
}

// UpdateLine PUT /api/v1/so-invoices/:id/lines/:lineId
func (h *InvoiceHandler) UpdateLine(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	lineID, ok := ParseUintParam(c, "lineId")
	if !ok {
		return
	}

	var req service.AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	line, err := h.invoiceService.UpdateLineAllocation(c.Request.Context(), id, lineID, GetUserID(c), GetRole(c), req)
	if err != nil {
		FailErr(c, err)
		return
	}
	OK(c, gin.H{"line": line})
}

// Post POST /api/v1/so-invoices/:id/post
// 向导第5步。远端拒绝记为结构化失败，返回400由success字段携带错误文本
func (h *InvoiceHandler) Post(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}

	result, err := h.invoiceService.PostInvoice(c.Request.Context(), id, GetUserID(c), GetRole(c), GetUsername(c))
	if err != nil {
		FailErr(c, err)
		return
	}

	if !result.Success {
		Fail(c, http.StatusBadRequest, result.Error)
		return
	}

	resp := gin.H{
		"sap_doc_num": result.SapDocNum,
		"message":     result.Message,
	}
	if result.Offline {
		resp["offline_mode"] = true
	}
	OK(c, resp)
}

// Export GET /api/v1/so-invoices/export
func (h *InvoiceHandler) Export(c *gin.Context) {
	f, err := h.invoiceService.ExportDocuments(c.Request.Context(), GetUserID(c), GetRole(c))
	if err != nil {
		FailErr(c, err)
		return
	}

	filename := fmt.Sprintf("so_invoices_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}
