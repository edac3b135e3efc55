package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pragavigithub/IT-Lobby-20250909/internal/sap"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/entity"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/repository"
	"github.com/pragavigithub/IT-Lobby-20250909/internal/wms/testutil"
	"gorm.io/gorm"
)

// offlineClient 指向无法连接的地址，所有远端调用都走离线分支
func offlineClient() *sap.Client {
	return sap.NewClient(sap.Config{
		BaseURL:       "http://127.0.0.1:9",
		Username:      "manager",
		Password:      "secret",
		CompanyDB:     "SBODemoUS",
		LookupTimeout: 200 * time.Millisecond,
		PostTimeout:   200 * time.Millisecond,
	}, nil)
}

// onlineClient 指向内存fake Service Layer
// rejectInvoices为true时过账返回400
func onlineClient(t *testing.T, rejectInvoices bool) *sap.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/b1s/v1/Login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"SessionId": "s1", "SessionTimeout": 30})
	})
	mux.HandleFunc("/b1s/v1/Invoices", func(w http.ResponseWriter, r *http.Request) {
		if rejectInvoices {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":{"value":"Item quantity exceeds open quantity"}}}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"DocEntry":5001,"DocNum":220045}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "Get_SO_Series") {
			fmt.Fprint(w, `{"value":[{"Series":99,"SeriesName":"Remote"}]}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return sap.NewClient(sap.Config{
		BaseURL:   srv.URL,
		Username:  "manager",
		Password:  "secret",
		CompanyDB: "SBODemoUS",
	}, nil)
}

func newInvoiceService(db *gorm.DB, client *sap.Client, offlineFallback bool) *InvoiceService {
	return NewInvoiceService(repository.NewRepositories(db), client, offlineFallback)
}

func TestCreateDocumentNumbering(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)
	ctx := context.Background()

	doc1, err := svc.CreateDocument(ctx, 1)
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	doc2, err := svc.CreateDocument(ctx, 1)
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	if doc1.DocumentNumber != "SOINV-00001" {
		t.Errorf("expected SOINV-00001, got %s", doc1.DocumentNumber)
	}
	if doc2.DocumentNumber != "SOINV-00002" {
		t.Errorf("expected SOINV-00002, got %s", doc2.DocumentNumber)
	}
	if doc1.Status != entity.DocStatusDraft {
		t.Errorf("new document should be draft, got %s", doc1.Status)
	}
}

func TestListSeriesRemote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, onlineClient(t, false), true)

	series, offline := svc.ListSeries(context.Background())
	if offline {
		t.Error("remote reachable, should not be offline")
	}
	if len(series) != 1 || series[0].Series != 99 {
		t.Fatalf("unexpected series: %+v", series)
	}

	// 远端结果应已写入缓存
	var cached []entity.SoSeries
	db.Find(&cached)
	if len(cached) != 1 || cached[0].Series != 99 {
		t.Errorf("expected remote series cached, got %+v", cached)
	}
}

func TestListSeriesFallsBackToCache(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.Create(&entity.SoSeries{Series: 55, SeriesName: "Cached"})
	svc := newInvoiceService(db, offlineClient(), true)

	series, offline := svc.ListSeries(context.Background())
	if !offline {
		t.Error("remote unreachable, should report offline")
	}
	if len(series) != 1 || series[0].SeriesName != "Cached" {
		t.Fatalf("expected cached series, got %+v", series)
	}
}

func TestListSeriesBuiltinFallback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	series, offline := svc.ListSeries(context.Background())
	if !offline {
		t.Error("remote unreachable, should report offline")
	}
	if len(series) != 3 {
		t.Fatalf("expected builtin fallback series, got %+v", series)
	}
	if series[0].Series != 11 || series[0].SeriesName != "Primary" {
		t.Errorf("unexpected builtin series: %+v", series[0])
	}
}

func TestValidateSalesOrderOffline(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	docEntry, offline, err := svc.ValidateSalesOrder(context.Background(), "1000123", 243)
	if err != nil {
		t.Fatalf("ValidateSalesOrder failed: %v", err)
	}
	if !offline || docEntry != 1248 {
		t.Errorf("expected offline mock DocEntry 1248, got offline=%v docEntry=%d", offline, docEntry)
	}
}

func TestValidateSalesOrderRequiresInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	_, _, err := svc.ValidateSalesOrder(context.Background(), "", 243)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	_, _, err = svc.ValidateSalesOrder(context.Background(), "1000123", 0)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFetchSalesOrderOfflineMock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	order, offline, err := svc.FetchSalesOrder(context.Background(), 1248)
	if err != nil {
		t.Fatalf("FetchSalesOrder failed: %v", err)
	}
	if !offline {
		t.Error("expected offline mode")
	}
	if order.CardCode != "3D SEALS" || len(order.DocumentLines) != 2 {
		t.Errorf("unexpected mock order: %+v", order)
	}
	if order.DocumentLines[0].ItemCode != "IPhone" || order.DocumentLines[0].WarehouseCode != "7000-FG" {
		t.Errorf("unexpected mock line: %+v", order.DocumentLines[0])
	}
}

func TestValidateItemSerialRequiresSerialNumber(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	_, err := svc.ValidateItem(context.Background(), ValidateItemRequest{
		ItemCode:      "IPhone",
		WarehouseCode: "7000-FG",
		ItemType:      ItemTypeSerial,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing serial, got %v", err)
	}
}

func TestValidateItemSerialOfflineEcho(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	result, err := svc.ValidateItem(context.Background(), ValidateItemRequest{
		ItemCode:      "IPhone",
		WarehouseCode: "7000-FG",
		ItemType:      ItemTypeSerial,
		SerialNumber:  "SN001",
	})
	if err != nil {
		t.Fatalf("ValidateItem failed: %v", err)
	}
	if !result.Offline || result.SerialInfo == nil {
		t.Fatalf("expected offline echo, got %+v", result)
	}
	if result.SerialInfo.DistNumber != "SN001" || result.SerialInfo.WhsCode != "7000-FG" {
		t.Errorf("offline echo should mirror input, got %+v", result.SerialInfo)
	}
}

func TestValidateItemNonSerial(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	result, err := svc.ValidateItem(context.Background(), ValidateItemRequest{
		ItemCode:      "RedmiNote4",
		WarehouseCode: "7000-FG",
		ItemType:      ItemTypeNonSerial,
		Quantity:      5,
	})
	if err != nil {
		t.Fatalf("ValidateItem failed: %v", err)
	}
	if result.Quantity != 5 {
		t.Errorf("expected quantity echoed, got %g", result.Quantity)
	}

	// 数量缺省为1
	result, err = svc.ValidateItem(context.Background(), ValidateItemRequest{
		ItemCode:      "RedmiNote4",
		WarehouseCode: "7000-FG",
		ItemType:      ItemTypeNonSerial,
	})
	if err != nil {
		t.Fatalf("ValidateItem failed: %v", err)
	}
	if result.Quantity != 1 {
		t.Errorf("expected default quantity 1, got %g", result.Quantity)
	}
}

func TestValidateItemUnknownType(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	_, err := svc.ValidateItem(context.Background(), ValidateItemRequest{
		ItemCode:      "IPhone",
		WarehouseCode: "7000-FG",
		ItemType:      "batch",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown type, got %v", err)
	}
}

func sampleSaveRequest() SaveDetailsRequest {
	return SaveDetailsRequest{
		SoNumber: "1000123",
		DocEntry: 9731,
		Series:   SeriesSelection{Series: 243, SeriesName: "SO2526"},
		Order: &sap.Order{
			DocEntry: 9731,
			CardCode: "C001",
			CardName: "Acme Corp",
			Address:  "Pune, IN",
			DocumentLines: []sap.OrderLine{
				{LineNum: 0, ItemCode: "IPhone", ItemDescription: "12 Series", Quantity: 10, WarehouseCode: "7000-FG"},
				{LineNum: 1, ItemCode: "RedmiNote4", ItemDescription: "Black", Quantity: 4, WarehouseCode: "7000-FG"},
			},
		},
	}
}

func TestSaveOrderDetailsReplacesLines(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, 1)
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	saved, err := svc.SaveOrderDetails(ctx, doc.ID, 1, entity.RoleAdmin, sampleSaveRequest())
	if err != nil {
		t.Fatalf("SaveOrderDetails failed: %v", err)
	}
	if saved.Status != entity.DocStatusValidated {
		t.Errorf("expected validated status, got %s", saved.Status)
	}
	if saved.CardCode != "C001" || saved.SoDocEntry != 9731 {
		t.Errorf("header not updated: %+v", saved)
	}
	if len(saved.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(saved.Lines))
	}
	if saved.Lines[0].ValidatedQuantity != 0 {
		t.Errorf("validated quantity should reset to 0, got %g", saved.Lines[0].ValidatedQuantity)
	}

	// 重复保存是全量替换，不产生重复行
	req := sampleSaveRequest()
	req.Order.DocumentLines = req.Order.DocumentLines[:1]
	saved, err = svc.SaveOrderDetails(ctx, doc.ID, 1, entity.RoleAdmin, req)
	if err != nil {
		t.Fatalf("second SaveOrderDetails failed: %v", err)
	}
	if len(saved.Lines) != 1 {
		t.Fatalf("expected replacement to 1 line, got %d", len(saved.Lines))
	}

	var lineCount int64
	db.Model(&entity.SoInvoiceLine{}).Where("document_id = ?", doc.ID).Count(&lineCount)
	if lineCount != 1 {
		t.Errorf("stale lines left behind: %d", lineCount)
	}
}

func TestSaveOrderDetailsRejectsPostedDocument(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	doc := testutil.SeedTestDocument(t, db, 1, entity.DocStatusPosted, nil)

	_, err := svc.SaveOrderDetails(context.Background(), doc.ID, 1, entity.RoleAdmin, sampleSaveRequest())
	if !errors.Is(err, ErrDocumentPosted) {
		t.Errorf("expected ErrDocumentPosted, got %v", err)
	}
}

func TestUpdateLineAllocation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)
	ctx := context.Background()

	doc := testutil.SeedTestDocument(t, db, 1, entity.DocStatusValidated, []entity.SoInvoiceLine{
		{LineNum: 0, ItemCode: "IPhone", SoQuantity: 10, WarehouseCode: "7000-FG"},
	})

	line, err := svc.UpdateLineAllocation(ctx, doc.ID, doc.Lines[0].ID, 1, entity.RoleAdmin, AllocationRequest{
		ValidatedQuantity: 2,
		Serials: []AllocationSerial{
			{SerialNumber: "SN001"},
			{SerialNumber: "SN002"},
		},
	})
	if err != nil {
		t.Fatalf("UpdateLineAllocation failed: %v", err)
	}
	if line.ValidatedQuantity != 2 || len(line.Serials) != 2 {
		t.Fatalf("unexpected line state: %+v", line)
	}
	if line.Serials[0].Quantity != 1 {
		t.Errorf("serial quantity should default to 1, got %g", line.Serials[0].Quantity)
	}
	if line.Serials[0].BaseLineNumber != 0 {
		t.Errorf("serial should carry line num, got %d", line.Serials[0].BaseLineNumber)
	}

	// 再次分配是全量替换
	line, err = svc.UpdateLineAllocation(ctx, doc.ID, doc.Lines[0].ID, 1, entity.RoleAdmin, AllocationRequest{
		ValidatedQuantity: 1,
		Serials:           []AllocationSerial{{SerialNumber: "SN003"}},
	})
	if err != nil {
		t.Fatalf("second UpdateLineAllocation failed: %v", err)
	}
	var serialCount int64
	db.Model(&entity.SoInvoiceSerial{}).Where("line_id = ?", doc.Lines[0].ID).Count(&serialCount)
	if serialCount != 1 {
		t.Errorf("stale serials left behind: %d", serialCount)
	}
}

func TestPostInvoiceRequiresLines(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	doc := testutil.SeedTestDocument(t, db, 1, entity.DocStatusValidated, nil)

	_, err := svc.PostInvoice(context.Background(), doc.ID, 1, entity.RoleAdmin, "admin")
	if !errors.Is(err, ErrNoLineItems) {
		t.Errorf("expected ErrNoLineItems, got %v", err)
	}

	// 不应留下failed状态
	var fresh entity.SoInvoiceDocument
	db.First(&fresh, doc.ID)
	if fresh.Status != entity.DocStatusValidated {
		t.Errorf("empty post should not change status, got %s", fresh.Status)
	}
}

func TestPostInvoiceOfflineFallback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)

	doc := testutil.SeedTestDocument(t, db, 1, entity.DocStatusValidated, []entity.SoInvoiceLine{
		{LineNum: 0, ItemCode: "IPhone", SoQuantity: 10, ValidatedQuantity: 2, WarehouseCode: "7000-FG"},
	})

	result, err := svc.PostInvoice(context.Background(), doc.ID, 1, entity.RoleAdmin, "admin")
	if err != nil {
		t.Fatalf("PostInvoice failed: %v", err)
	}
	if !result.Success || !result.Offline {
		t.Fatalf("expected offline success, got %+v", result)
	}
	want := fmt.Sprintf("INV%06d", doc.ID)
	if result.SapDocNum != want {
		t.Errorf("expected %s, got %s", want, result.SapDocNum)
	}

	var fresh entity.SoInvoiceDocument
	db.First(&fresh, doc.ID)
	if fresh.Status != entity.DocStatusPosted || fresh.SapInvoiceNumber != want {
		t.Errorf("document not recorded as posted: %+v", fresh)
	}
}

func TestPostInvoiceOfflineDisabled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), false)

	doc := testutil.SeedTestDocument(t, db, 1, entity.DocStatusValidated, []entity.SoInvoiceLine{
		{LineNum: 0, ItemCode: "IPhone", SoQuantity: 10, ValidatedQuantity: 2, WarehouseCode: "7000-FG"},
	})

	result, err := svc.PostInvoice(context.Background(), doc.ID, 1, entity.RoleAdmin, "admin")
	if err != nil {
		t.Fatalf("PostInvoice failed: %v", err)
	}
	if result.Success {
		t.Fatal("offline fallback disabled, post should fail")
	}

	var fresh entity.SoInvoiceDocument
	db.First(&fresh, doc.ID)
	if fresh.Status != entity.DocStatusFailed || fresh.PostingError == "" {
		t.Errorf("failure not recorded: %+v", fresh)
	}
}

func TestPostInvoiceRemoteRejectedThenRetry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	doc := testutil.SeedTestDocument(t, db, 1, entity.DocStatusValidated, []entity.SoInvoiceLine{
		{LineNum: 0, ItemCode: "IPhone", SoQuantity: 10, ValidatedQuantity: 12, WarehouseCode: "7000-FG"},
	})

	// 第一次远端拒绝
	svc := newInvoiceService(db, onlineClient(t, true), true)
	result, err := svc.PostInvoice(ctx, doc.ID, 1, entity.RoleAdmin, "admin")
	if err != nil {
		t.Fatalf("PostInvoice returned error for rejection: %v", err)
	}
	if result.Success {
		t.Fatal("expected structured failure")
	}
	if !strings.Contains(result.Error, "exceeds open quantity") {
		t.Errorf("remote error text not preserved: %q", result.Error)
	}

	var fresh entity.SoInvoiceDocument
	db.First(&fresh, doc.ID)
	if fresh.Status != entity.DocStatusFailed || fresh.PostingError == "" {
		t.Fatalf("rejection not recorded: %+v", fresh)
	}

	// failed状态可重试，成功后清空错误
	svc = newInvoiceService(db, onlineClient(t, false), true)
	result, err = svc.PostInvoice(ctx, doc.ID, 1, entity.RoleAdmin, "admin")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !result.Success || result.SapDocNum != "220045" {
		t.Fatalf("unexpected retry result: %+v", result)
	}

	db.First(&fresh, doc.ID)
	if fresh.Status != entity.DocStatusPosted {
		t.Errorf("expected posted after retry, got %s", fresh.Status)
	}
	if fresh.PostingError != "" {
		t.Errorf("posting error should clear after success, got %q", fresh.PostingError)
	}
	if fresh.SapInvoiceNumber != "220045" {
		t.Errorf("expected SAP DocNum recorded, got %s", fresh.SapInvoiceNumber)
	}
}

// droppedConnClient 登录正常，过账请求被服务端直接掐断连接
// onDrop在掐断前执行，用来在请求中途破坏环境
func droppedConnClient(t *testing.T, onDrop func()) *sap.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/b1s/v1/Login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"SessionId": "s1", "SessionTimeout": 30})
	})
	mux.HandleFunc("/b1s/v1/Invoices", func(w http.ResponseWriter, r *http.Request) {
		if onDrop != nil {
			onDrop()
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		conn.Close()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return sap.NewClient(sap.Config{
		BaseURL:   srv.URL,
		Username:  "manager",
		Password:  "secret",
		CompanyDB: "SBODemoUS",
	}, nil)
}

func TestPostInvoiceTransportErrorRecordsFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, droppedConnClient(t, nil), true)

	doc := testutil.SeedTestDocument(t, db, 1, entity.DocStatusValidated, []entity.SoInvoiceLine{
		{LineNum: 0, ItemCode: "IPhone", SoQuantity: 10, ValidatedQuantity: 2, WarehouseCode: "7000-FG"},
	})

	// 会话在线但过账中途断连：失败要落盘，错误要上抛
	result, err := svc.PostInvoice(context.Background(), doc.ID, 1, entity.RoleAdmin, "admin")
	if err == nil {
		t.Fatalf("expected error for dropped connection, got result %+v", result)
	}

	var fresh entity.SoInvoiceDocument
	db.First(&fresh, doc.ID)
	if fresh.Status != entity.DocStatusFailed || fresh.PostingError == "" {
		t.Errorf("transport failure not recorded: %+v", fresh)
	}
}

func TestPostInvoiceFailureRecordErrorSurfaces(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// 请求进行中把单据表撤掉，落盘failed本身会失败
	client := droppedConnClient(t, func() {
		db.Exec("DROP TABLE so_invoice_documents CASCADE")
	})
	svc := newInvoiceService(db, client, true)

	doc := testutil.SeedTestDocument(t, db, 1, entity.DocStatusValidated, []entity.SoInvoiceLine{
		{LineNum: 0, ItemCode: "IPhone", SoQuantity: 10, ValidatedQuantity: 2, WarehouseCode: "7000-FG"},
	})

	_, err := svc.PostInvoice(context.Background(), doc.ID, 1, entity.RoleAdmin, "admin")
	if err == nil {
		t.Fatal("expected error")
	}
	// 过账错误和落盘错误都不能丢
	if !strings.Contains(err.Error(), "post invoice") {
		t.Errorf("post error missing from chain: %v", err)
	}
	if !strings.Contains(err.Error(), "record posting failure") {
		t.Errorf("persistence error missing from chain: %v", err)
	}
}

func TestGetDocumentAccessControl(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)
	ctx := context.Background()

	doc := testutil.SeedTestDocument(t, db, 7, entity.DocStatusDraft, nil)

	// 本人可见
	if _, err := svc.GetDocument(ctx, doc.ID, 7, entity.RoleUser); err != nil {
		t.Errorf("owner should see own document: %v", err)
	}
	// 他人不可见
	if _, err := svc.GetDocument(ctx, doc.ID, 8, entity.RoleUser); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	// admin全量可见
	if _, err := svc.GetDocument(ctx, doc.ID, 8, entity.RoleAdmin); err != nil {
		t.Errorf("admin should see all documents: %v", err)
	}
}

func TestMutationsRequireOwnership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)
	ctx := context.Background()

	doc := testutil.SeedTestDocument(t, db, 7, entity.DocStatusValidated, []entity.SoInvoiceLine{
		{LineNum: 0, ItemCode: "IPhone", SoQuantity: 10, ValidatedQuantity: 2, WarehouseCode: "7000-FG"},
	})

	// 非属主普通用户：保存、分配、过账一律拒绝
	if _, err := svc.SaveOrderDetails(ctx, doc.ID, 8, entity.RoleUser, sampleSaveRequest()); !errors.Is(err, ErrForbidden) {
		t.Errorf("SaveOrderDetails by non-owner: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.UpdateLineAllocation(ctx, doc.ID, doc.Lines[0].ID, 8, entity.RoleUser, AllocationRequest{ValidatedQuantity: 1}); !errors.Is(err, ErrForbidden) {
		t.Errorf("UpdateLineAllocation by non-owner: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.PostInvoice(ctx, doc.ID, 8, entity.RoleUser, "other"); !errors.Is(err, ErrForbidden) {
		t.Errorf("PostInvoice by non-owner: expected ErrForbidden, got %v", err)
	}

	// 被拒绝的单据状态不应被改动
	var fresh entity.SoInvoiceDocument
	db.First(&fresh, doc.ID)
	if fresh.Status != entity.DocStatusValidated {
		t.Errorf("forbidden calls must not change status, got %s", fresh.Status)
	}

	// 属主本人可以过账
	if _, err := svc.PostInvoice(ctx, doc.ID, 7, entity.RoleUser, "owner"); err != nil {
		t.Errorf("owner should be able to post: %v", err)
	}

	// manager不受属主限制
	doc2 := testutil.SeedTestDocument(t, db, 7, entity.DocStatusValidated, []entity.SoInvoiceLine{
		{LineNum: 0, ItemCode: "RedmiNote4", SoQuantity: 4, ValidatedQuantity: 1, WarehouseCode: "7000-FG"},
	})
	if _, err := svc.PostInvoice(ctx, doc2.ID, 8, entity.RoleManager, "manager"); err != nil {
		t.Errorf("manager should bypass ownership: %v", err)
	}
}

func TestListDocumentsRoleFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newInvoiceService(db, offlineClient(), true)
	ctx := context.Background()

	testutil.SeedTestDocument(t, db, 7, entity.DocStatusDraft, nil)
	testutil.SeedTestDocument(t, db, 8, entity.DocStatusDraft, nil)

	_, total, err := svc.ListDocuments(ctx, 7, entity.RoleUser, 1, 10, "")
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if total != 1 {
		t.Errorf("user should only see own documents, total %d", total)
	}

	_, total, err = svc.ListDocuments(ctx, 7, entity.RoleAdmin, 1, 10, "")
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if total != 2 {
		t.Errorf("admin should see all documents, total %d", total)
	}

	// per_page白名单之外回落到10
	_, _, err = svc.ListDocuments(ctx, 7, entity.RoleAdmin, 1, 7, "")
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
}
