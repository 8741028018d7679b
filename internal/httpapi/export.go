package httpapi

import (
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"sodaledger/backend/internal/domain"
)

const salesSheet = "Sales"

var salesExportHeadings = []string{"Sale ID", "Date", "Customer", "Flavor", "Quantity", "Total Boxes", "Recorded By"}

func (a *API) handleSalesExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), maxPageLimit, maxPageLimit)
	history, err := a.service.SalesHistory(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	f, err := salesWorkbook(history)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=sales-history.xlsx")
	if err := f.Write(w); err != nil {
		a.fail(w, r, err)
	}
}

func salesWorkbook(rows []domain.SaleHistoryRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", salesSheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	for i, heading := range salesExportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetCellValue(salesSheet, cell, heading); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	for i, row := range rows {
		values := []any{row.SaleID, row.SaleDate, row.Customer, row.Flavor, row.Quantity, row.TotalBoxes, row.CreatedBy}
		if err := f.SetSheetRow(salesSheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return f, nil
}
