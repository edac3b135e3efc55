package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pragavigithub/IT-Lobby-20250909/internal/sap"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/entity"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/repository"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// InvoiceService — SO Against Invoice工作流引擎
// 五步向导：号段查询 → SO校验 → SO明细获取 → 物料校验 → 过账
// 每次远端调用都有离线降级分支，网关不可达时工作流仍可走通
// =============================================================================

// 离线降级数据（与原WMS保持一致）
const offlineDocEntry = 1248

var fallbackSeries = []sap.SeriesInfo{
	{Series: 11, SeriesName: "Primary"},
	{Series: 243, SeriesName: "SO2526"},
	{Series: 173, SeriesName: "SO AVS23"},
}

func mockOrder(docEntry int) *sap.Order {
	return &sap.Order{
		DocEntry: docEntry,
		CardCode: "3D SEALS",
		CardName: "3D SEALS PRIVATE LIMITED",
		Address:  "Sai Indu Tower, Mumbai City-400078, IN",
		DocumentLines: []sap.OrderLine{
			{LineNum: 0, ItemCode: "IPhone", ItemDescription: "12 Series 8GB RAM/250 GB ROM Black", Quantity: 10, WarehouseCode: "7000-FG"},
			{LineNum: 1, ItemCode: "RedmiNote4", ItemDescription: "8GBRAM/250GBROM Black", Quantity: 10, WarehouseCode: "7000-FG"},
		},
	}
}

// InvoiceService SO Against Invoice工作流引擎
type InvoiceService struct {
	docRepo    *repository.DocumentRepository
	seriesRepo *repository.SeriesRepository
	sap        *sap.Client
	// 网关不可达时是否合成过账成功（开发/离线模式；关闭后不可达记为failed）
	offlineFallback bool
}

func NewInvoiceService(repos *repository.Repositories, sapClient *sap.Client, offlineFallback bool) *InvoiceService {
	return &InvoiceService{
		docRepo:         repos.Document,
		seriesRepo:      repos.Series,
		sap:             sapClient,
		offlineFallback: offlineFallback,
	}
}

// --- 单据生命周期 ---

// CreateDocument 向导第0步：领取单据编号并创建draft空壳
func (s *InvoiceService) CreateDocument(ctx context.Context, userID uint) (*entity.SoInvoiceDocument, error) {
	number, err := s.seriesRepo.NextDocumentNumber(ctx, entity.SeriesCodeSOInvoice)
	if err != nil {
		return nil, fmt.Errorf("generate document number: %w", err)
	}

	doc := &entity.SoInvoiceDocument{
		DocumentNumber: number,
		Status:         entity.DocStatusDraft,
		UserID:         userID,
		DocDate:        time.Now(),
		Comments:       "SO Against Invoice - Created via WMS",
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// ListDocuments 分页查询单据，admin/manager之外的用户只能看自己的
func (s *InvoiceService) ListDocuments(ctx context.Context, userID uint, role string, page, perPage int, search string) ([]entity.SoInvoiceDocument, int64, error) {
	if page < 1 {
		page = 1
	}
	switch perPage {
	case 10, 25, 50, 100:
	default:
		perPage = 10
	}

	params := repository.ListParams{Page: page, PageSize: perPage, Search: search}
	if !entity.CanViewAllDocuments(role) {
		params.UserID = userID
	}
	return s.docRepo.FindAll(ctx, params)
}

// GetDocument 获取单据详情（含行和序列号），越权访问返回ErrForbidden
func (s *InvoiceService) GetDocument(ctx context.Context, id, userID uint, role string) (*entity.SoInvoiceDocument, error) {
	return s.loadOwnedDocument(ctx, id, userID, role)
}

// loadOwnedDocument 加载单据并执行属主检查
// admin/manager放行，其他用户只能操作自己创建的单据
func (s *InvoiceService) loadOwnedDocument(ctx context.Context, id, userID uint, role string) (*entity.SoInvoiceDocument, error) {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, fmt.Errorf("%w: document %d", ErrNotFound, id)
		}
		return nil, err
	}
	if !entity.CanViewAllDocuments(role) && doc.UserID != userID {
		return nil, ErrForbidden
	}
	return doc, nil
}

// --- 向导第1步：号段查询 ---

// ListSeries 返回可用SO号段
// 远端成功：缺失号段写入缓存并原样返回远端列表
// 远端失败：返回缓存；缓存为空时返回内置降级号段。此方法从不返回错误
func (s *InvoiceService) ListSeries(ctx context.Context) (series []sap.SeriesInfo, offline bool) {
	remote, err := s.sap.ListSeries(ctx)
	if err == nil {
		cached := make([]entity.SoSeries, 0, len(remote))
		for _, si := range remote {
			cached = append(cached, entity.SoSeries{Series: si.Series, SeriesName: si.SeriesName})
		}
		// 缓存写失败不影响返回结果
		s.seriesRepo.CacheMissing(ctx, cached)
		return remote, false
	}

	rows, dbErr := s.seriesRepo.FindAllCached(ctx)
	if dbErr == nil && len(rows) > 0 {
		series = make([]sap.SeriesInfo, 0, len(rows))
		for _, row := range rows {
			series = append(series, sap.SeriesInfo{Series: row.Series, SeriesName: row.SeriesName})
		}
		return series, true
	}

	return fallbackSeries, true
}

// --- 向导第2步：SO校验 ---

// ValidateSalesOrder 按(单号, 号段)校验销售订单，返回DocEntry
// 远端空结果是业务级not-found；网关不可用降级为固定mock DocEntry
func (s *InvoiceService) ValidateSalesOrder(ctx context.Context, soNumber string, series int) (docEntry int, offline bool, err error) {
	if soNumber == "" || series == 0 {
		return 0, false, fmt.Errorf("%w: SO Number and Series are required", ErrInvalidInput)
	}

	refs, lookupErr := s.sap.LookupOrder(ctx, soNumber, series)
	if lookupErr != nil {
		return offlineDocEntry, true, nil
	}
	if len(refs) == 0 {
		return 0, false, fmt.Errorf("%w: SO Number %s not found in Series %d", ErrNotFound, soNumber, series)
	}
	return refs[0].DocEntry, false, nil
}

// --- 向导第3步：SO明细获取 ---

// FetchSalesOrder 按DocEntry获取SO完整头行信息
// 同样的 远端/not-found/离线 三分支；离线返回固定两行mock订单
func (s *InvoiceService) FetchSalesOrder(ctx context.Context, docEntry int) (order *sap.Order, offline bool, err error) {
	if docEntry == 0 {
		return nil, false, fmt.Errorf("%w: DocEntry is required", ErrInvalidInput)
	}

	remote, found, fetchErr := s.sap.FetchOrder(ctx, docEntry)
	if fetchErr != nil {
		return mockOrder(docEntry), true, nil
	}
	if !found {
		return nil, false, fmt.Errorf("%w: SO with DocEntry %d not found", ErrNotFound, docEntry)
	}
	return remote, false, nil
}

// --- 向导第4步：物料校验 ---

// 物料类型
const (
	ItemTypeSerial    = "serial"
	ItemTypeNonSerial = "non_serial"
)

// ValidateItemRequest 物料校验请求
type ValidateItemRequest struct {
	ItemCode      string  `json:"item_code"`
	WarehouseCode string  `json:"warehouse_code"`
	ItemType      string  `json:"item_type"`
	SerialNumber  string  `json:"serial_number"`
	Quantity      float64 `json:"quantity"`
}

// ItemValidation 物料校验结果
type ItemValidation struct {
	Validated  bool            `json:"validated"`
	ItemType   string          `json:"item_type"`
	Quantity   float64         `json:"quantity,omitempty"`
	SerialInfo *sap.SerialInfo `json:"serial_info,omitempty"`
	Offline    bool            `json:"offline_mode,omitempty"`
	Message    string          `json:"message"`
}

// ValidateItem 校验单个物料，序列号管理和非序列号管理两种形态
// 序列号形态：远端空结果是硬not-found（不做离线升级）；网关不可用降级为回显成功
// 非序列号形态：回显数量，恒成功（无在库量检查）
func (s *InvoiceService) ValidateItem(ctx context.Context, req ValidateItemRequest) (*ItemValidation, error) {
	if req.ItemCode == "" || req.WarehouseCode == "" {
		return nil, fmt.Errorf("%w: ItemCode and WarehouseCode are required", ErrInvalidInput)
	}

	switch req.ItemType {
	case ItemTypeSerial:
		if req.SerialNumber == "" {
			return nil, fmt.Errorf("%w: serial number is required for serial-managed items", ErrInvalidInput)
		}

		info, found, err := s.sap.ValidateSerial(ctx, req.WarehouseCode, req.ItemCode, req.SerialNumber)
		if err != nil {
			// 网关不可用：合成校验通过，回显输入
			return &ItemValidation{
				Validated: true,
				ItemType:  ItemTypeSerial,
				SerialInfo: &sap.SerialInfo{
					DistNumber: req.SerialNumber,
					ItemCode:   req.ItemCode,
					WhsCode:    req.WarehouseCode,
				},
				Offline: true,
				Message: fmt.Sprintf("Serial %s validated successfully (offline mode)", req.SerialNumber),
			}, nil
		}
		if !found {
			return nil, fmt.Errorf("%w: Serial %s not found for item %s in warehouse %s",
				ErrNotFound, req.SerialNumber, req.ItemCode, req.WarehouseCode)
		}
		return &ItemValidation{
			Validated:  true,
			ItemType:   ItemTypeSerial,
			SerialInfo: info,
			Message:    fmt.Sprintf("Serial %s validated successfully", req.SerialNumber),
		}, nil

	case ItemTypeNonSerial:
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		return &ItemValidation{
			Validated: true,
			ItemType:  ItemTypeNonSerial,
			Quantity:  qty,
			Message:   fmt.Sprintf("Quantity %g validated for item %s", qty, req.ItemCode),
		}, nil

	default:
		return nil, fmt.Errorf("%w: invalid item type %q", ErrInvalidInput, req.ItemType)
	}
}

// --- 保存明细 ---

// SeriesSelection 保存明细时携带的号段信息
type SeriesSelection struct {
	Series     int    `json:"series"`
	SeriesName string `json:"series_name"`
}

// SaveDetailsRequest 保存SO明细请求
type SaveDetailsRequest struct {
	SoNumber string          `json:"so_number"`
	DocEntry int             `json:"doc_entry"`
	Series   SeriesSelection `json:"series_info"`
	Order    *sap.Order      `json:"order"`
}

// SaveOrderDetails 幂等全量替换：覆写单据头字段，删除全部旧行后按快照重建
// 每行ValidatedQuantity重置为0。这是行项的唯一写入路径
// 已过账单据拒绝此操作，非属主拒绝此操作
func (s *InvoiceService) SaveOrderDetails(ctx context.Context, docID, userID uint, role string, req SaveDetailsRequest) (*entity.SoInvoiceDocument, error) {
	if req.SoNumber == "" || req.Order == nil {
		return nil, fmt.Errorf("%w: so_number and order are required", ErrInvalidInput)
	}

	doc, err := s.loadOwnedDocument(ctx, docID, userID, role)
	if err != nil {
		return nil, err
	}
	if doc.Status == entity.DocStatusPosted {
		return nil, ErrDocumentPosted
	}

	doc.SoSeries = req.Series.Series
	doc.SoSeriesName = req.Series.SeriesName
	doc.SoNumber = req.SoNumber
	doc.SoDocEntry = req.DocEntry
	doc.CardCode = req.Order.CardCode
	doc.CardName = req.Order.CardName
	doc.CustomerAddress = req.Order.Address
	doc.Status = entity.DocStatusValidated

	lines := make([]entity.SoInvoiceLine, 0, len(req.Order.DocumentLines))
	for _, ol := range req.Order.DocumentLines {
		lines = append(lines, entity.SoInvoiceLine{
			LineNum:           ol.LineNum,
			ItemCode:          ol.ItemCode,
			ItemDescription:   ol.ItemDescription,
			SoQuantity:        ol.Quantity,
			WarehouseCode:     ol.WarehouseCode,
			ValidatedQuantity: 0,
		})
	}

	if err := s.docRepo.ReplaceLines(ctx, doc, lines); err != nil {
		return nil, fmt.Errorf("save order details: %w", err)
	}
	return s.docRepo.FindByID(ctx, docID)
}

// --- 行分配 ---

// AllocationSerial 行序列号分配
type AllocationSerial struct {
	SerialNumber string  `json:"serial_number"`
	Quantity     float64 `json:"quantity"`
}

// AllocationRequest 行分配请求：物料校验通过后由客户端写入已校验数量和序列号
type AllocationRequest struct {
	ValidatedQuantity float64            `json:"validated_quantity"`
	Serials           []AllocationSerial `json:"serials"`
}

// UpdateLineAllocation 写入行的已校验数量并全量替换序列号分配
func (s *InvoiceService) UpdateLineAllocation(ctx context.Context, docID, lineID, userID uint, role string, req AllocationRequest) (*entity.SoInvoiceLine, error) {
	if req.ValidatedQuantity < 0 {
		return nil, fmt.Errorf("%w: validated_quantity must not be negative", ErrInvalidInput)
	}
	for _, sa := range req.Serials {
		if sa.SerialNumber == "" {
			return nil, fmt.Errorf("%w: serial_number must not be empty", ErrInvalidInput)
		}
	}

	doc, err := s.loadOwnedDocument(ctx, docID, userID, role)
	if err != nil {
		return nil, err
	}
	if doc.Status == entity.DocStatusPosted {
		return nil, ErrDocumentPosted
	}

	line, err := s.docRepo.FindLine(ctx, docID, lineID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, fmt.Errorf("%w: line %d", ErrNotFound, lineID)
		}
		return nil, err
	}

	line.ValidatedQuantity = req.ValidatedQuantity

	serials := make([]entity.SoInvoiceSerial, 0, len(req.Serials))
	for _, sa := range req.Serials {
		qty := sa.Quantity
		if qty == 0 {
			qty = 1
		}
		serials = append(serials, entity.SoInvoiceSerial{
			SerialNumber:   sa.SerialNumber,
			Quantity:       qty,
			BaseLineNumber: line.LineNum,
		})
	}

	if err := s.docRepo.UpdateLineAllocation(ctx, line, serials); err != nil {
		return nil, fmt.Errorf("update line allocation: %w", err)
	}
	line.Serials = serials
	return line, nil
}

// --- 向导第5步：过账 ---

// PostResult 过账结果
type PostResult struct {
	Success   bool   `json:"success"`
	SapDocNum string `json:"sap_doc_num,omitempty"`
	Offline   bool   `json:"offline_mode,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PostInvoice 终结步骤：聚合单据头和行（含序列号）过账到SAP B1
//
// 远端2xx：记录SAP单号，状态置posted
// 远端非2xx：记录错误文本，状态置failed，返回结构化失败（不抛错，单据可重试）
// 调用中意外异常：先落盘failed状态再向上传播
// 网关不可达且offline fallback开启：合成本地单号INV{id:06d}并置posted —
// 此时posted状态不代表SAP侧真实存在该发票
func (s *InvoiceService) PostInvoice(ctx context.Context, docID, userID uint, role, username string) (*PostResult, error) {
	doc, err := s.loadOwnedDocument(ctx, docID, userID, role)
	if err != nil {
		return nil, err
	}

	// 空行单据是硬错误，不发起远端调用
	if len(doc.Lines) == 0 {
		return nil, ErrNoLineItems
	}

	inv := s.buildInvoiceRequest(doc, username)

	// 登录失败视为网关不可用
	if _, err := s.sap.EnsureSession(ctx); err != nil {
		if sap.IsUnavailable(err) && s.offlineFallback {
			return s.recordOfflinePosted(ctx, doc)
		}
		return s.recordFailed(ctx, doc, err.Error())
	}

	result, postErr := s.sap.PostInvoice(ctx, inv)
	if postErr != nil {
		if sap.IsRejected(postErr) {
			// 远端明确拒绝：落盘failed，返回结构化失败
			return s.recordFailed(ctx, doc, postErr.Error())
		}
		// 意外失败：先落盘failed再传播，落盘本身失败时一并带出
		if _, recErr := s.recordFailed(ctx, doc, postErr.Error()); recErr != nil {
			return nil, errors.Join(fmt.Errorf("post invoice: %w", postErr), recErr)
		}
		return nil, fmt.Errorf("post invoice: %w", postErr)
	}

	doc.SapInvoiceNumber = strconv.Itoa(result.DocNum)
	doc.Status = entity.DocStatusPosted
	doc.PostingError = ""
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("record posting result: %w", err)
	}

	return &PostResult{
		Success:   true,
		SapDocNum: doc.SapInvoiceNumber,
		Message:   fmt.Sprintf("Invoice posted successfully to SAP B1. DocNum: %s", doc.SapInvoiceNumber),
	}, nil
}

func (s *InvoiceService) buildInvoiceRequest(doc *entity.SoInvoiceDocument, username string) *sap.InvoiceRequest {
	docDate := doc.DocDate
	if docDate.IsZero() {
		docDate = time.Now()
	}
	dueDate := docDate.AddDate(0, 0, 30)
	if doc.DocDueDate != nil {
		dueDate = *doc.DocDueDate
	}

	const layout = "2006-01-02T15:04:05Z"
	inv := &sap.InvoiceRequest{
		DocDate:    docDate.Format(layout),
		DocDueDate: dueDate.Format(layout),
		BPLID:      doc.BPLID,
		CardCode:   doc.CardCode,
		CreatedBy:  username,
		ApprovedBy: username,
		Comments:   fmt.Sprintf("SO Against Invoice - %s", doc.DocumentNumber),
	}

	for _, line := range doc.Lines {
		il := sap.InvoiceLine{
			ItemCode:        line.ItemCode,
			ItemDescription: line.ItemDescription,
			Quantity:        line.ValidatedQuantity,
			WarehouseCode:   line.WarehouseCode,
		}
		for _, serial := range line.Serials {
			il.SerialNumbers = append(il.SerialNumbers, sap.InvoiceSerial{
				InternalSerialNumber: serial.SerialNumber,
				Quantity:             serial.Quantity,
				BaseLineNumber:       serial.BaseLineNumber,
			})
		}
		inv.DocumentLines = append(inv.DocumentLines, il)
	}
	return inv
}

// recordOfflinePosted 网关不可达的离线过账：合成确定性本地单号
func (s *InvoiceService) recordOfflinePosted(ctx context.Context, doc *entity.SoInvoiceDocument) (*PostResult, error) {
	doc.SapInvoiceNumber = fmt.Sprintf("INV%06d", doc.ID)
	doc.Status = entity.DocStatusPosted
	doc.PostingError = ""
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("record offline posting: %w", err)
	}
	return &PostResult{
		Success:   true,
		SapDocNum: doc.SapInvoiceNumber,
		Offline:   true,
		Message:   fmt.Sprintf("Invoice posted successfully (offline mode). DocNum: %s", doc.SapInvoiceNumber),
	}, nil
}

// recordFailed 落盘失败状态，单据保持可重试
func (s *InvoiceService) recordFailed(ctx context.Context, doc *entity.SoInvoiceDocument, errMsg string) (*PostResult, error) {
	doc.PostingError = errMsg
	doc.Status = entity.DocStatusFailed
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("record posting failure: %w", err)
	}
	return &PostResult{Success: false, Error: errMsg}, nil
}

// --- 导出 ---

// ExportDocuments 将单据列表导出为Excel工作簿
func (s *InvoiceService) ExportDocuments(ctx context.Context, userID uint, role string) (*excelize.File, error) {
	params := repository.ListParams{Page: 1, PageSize: 10000}
	if !entity.CanViewAllDocuments(role) {
		params.UserID = userID
	}
	docs, _, err := s.docRepo.FindAll(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list documents for export: %w", err)
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []interface{}{
		"Document Number", "Status", "SO Number", "Series Name",
		"Customer Code", "Customer Name", "SAP Invoice", "Posting Error", "Created At",
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, err
	}

	for i, doc := range docs {
		row := []interface{}{
			doc.DocumentNumber,
			doc.Status,
			doc.SoNumber,
			doc.SoSeriesName,
			doc.CardCode,
			doc.CardName,
			doc.SapInvoiceNumber,
			doc.PostingError,
			doc.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	return f, nil
}
