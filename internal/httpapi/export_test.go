package httpapi

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/xuri/excelize/v2"

	"sodaledger/backend/internal/domain"
)

func TestSalesExportWorkbook(t *testing.T) {
	api := newTestAPI(t)
	admin := adminToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/flavors", admin, domain.FlavorCreateRequest{Name: "Grape"})
	var flavor domain.FlavorAddResult
	decodeBody(t, rec, &flavor)
	doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/flavors/%d/restock", flavor.Flavor.ID), admin, domain.RestockRequest{Quantity: 10})

	rec = doJSON(t, api, http.MethodPost, "/api/v1/customers", admin, domain.CustomerInput{Name: "Kios Ayu"})
	var customer domain.CustomerAddResult
	decodeBody(t, rec, &customer)

	sale := domain.SaleRequest{
		CustomerID: customer.Customer.ID,
		TotalBoxes: 4,
		Items:      []domain.SaleLine{{FlavorID: flavor.Flavor.ID, Quantity: 4}},
	}
	if rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", admin, sale); rec.Code != http.StatusCreated {
		t.Fatalf("expected sale 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/export", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(salesSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected heading plus one row, got %d rows", len(rows))
	}
	if rows[0][0] != "Sale ID" {
		t.Fatalf("unexpected heading %v", rows[0])
	}
	if rows[1][2] != "Kios Ayu" || rows[1][3] != "Grape" || rows[1][4] != "4" {
		t.Fatalf("unexpected sale row %v", rows[1])
	}
}

func TestSalesWorkbookEmptyHistory(t *testing.T) {
	f, err := salesWorkbook(nil)
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(salesSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != len(salesExportHeadings) {
		t.Fatalf("expected only the heading row, got %v", rows)
	}
}
