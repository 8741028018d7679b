package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sodaledger/backend/internal/domain"
	"sodaledger/backend/internal/metrics"
)

func TestConcurrentSalesCannotOversell(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	lemon := seedFlavor(t, svc, "Lemon", 5)
	customer := seedCustomer(t, svc, "Warung Sari")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RecordSale(ctx, testStaff, domain.SaleRequest{
				CustomerID: customer.ID,
				TotalBoxes: 3,
				Items:      []domain.SaleLine{{FlavorID: lemon.ID, Quantity: 3}},
			})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected one success and one insufficient stock, got %d/%d", succeeded, insufficient)
	}
	if got := stockOf(t, svc, lemon.ID); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
}

func TestSaleIsAllOrNothing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cola := seedFlavor(t, svc, "Cola", 10)
	lemon := seedFlavor(t, svc, "Lemon", 2)
	customer := seedCustomer(t, svc, "Toko Maju")

	_, err := svc.RecordSale(ctx, testStaff, domain.SaleRequest{
		CustomerID: customer.ID,
		TotalBoxes: 7,
		Items: []domain.SaleLine{
			{FlavorID: cola.ID, Quantity: 4},
			{FlavorID: lemon.ID, Quantity: 3},
		},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if got := stockOf(t, svc, cola.ID); got != 10 {
		t.Fatalf("expected cola untouched at 10, got %d", got)
	}
	if got := stockOf(t, svc, lemon.ID); got != 2 {
		t.Fatalf("expected lemon untouched at 2, got %d", got)
	}
	history, _ := svc.SalesHistory(ctx, 0)
	if len(history) != 0 {
		t.Fatalf("expected no sale rows, got %+v", history)
	}
}

func TestRecordSaleValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cola := seedFlavor(t, svc, "Cola", 10)
	customer := seedCustomer(t, svc, "Toko Maju")

	cases := []struct {
		name string
		req  domain.SaleRequest
		want error
	}{
		{name: "no items", req: domain.SaleRequest{CustomerID: customer.ID}, want: domain.ErrEmptySale},
		{name: "zero quantity", req: domain.SaleRequest{CustomerID: customer.ID, Items: []domain.SaleLine{{FlavorID: cola.ID, Quantity: 0}}}, want: domain.ErrInvalidQuantity},
		{name: "negative total", req: domain.SaleRequest{CustomerID: customer.ID, TotalBoxes: -1, Items: []domain.SaleLine{{FlavorID: cola.ID, Quantity: 1}}}, want: domain.ErrValidation},
		{name: "unknown customer", req: domain.SaleRequest{CustomerID: 999, Items: []domain.SaleLine{{FlavorID: cola.ID, Quantity: 1}}}, want: domain.ErrNotFound},
		{name: "unknown flavor", req: domain.SaleRequest{CustomerID: customer.ID, Items: []domain.SaleLine{{FlavorID: 999, Quantity: 1}}}, want: domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordSale(ctx, testStaff, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := stockOf(t, svc, cola.ID); got != 10 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestRecordSaleRejectsOversizedQuantities(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	lemon := seedFlavor(t, svc, "Lemon", 5)
	customer := seedCustomer(t, svc, "Warung Sari")

	cases := []struct {
		name  string
		lines []domain.SaleLine
	}{
		{name: "single line too large", lines: []domain.SaleLine{{FlavorID: lemon.ID, Quantity: math.MaxInt}}},
		{name: "merged lines wrap around", lines: []domain.SaleLine{
			{FlavorID: lemon.ID, Quantity: math.MaxInt},
			{FlavorID: lemon.ID, Quantity: math.MaxInt},
			{FlavorID: lemon.ID, Quantity: 3},
		}},
		{name: "merged lines past the limit", lines: []domain.SaleLine{
			{FlavorID: lemon.ID, Quantity: domain.MaxQuantity},
			{FlavorID: lemon.ID, Quantity: 1},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordSale(ctx, testStaff, domain.SaleRequest{CustomerID: customer.ID, TotalBoxes: 1, Items: tc.lines})
			if !errors.Is(err, domain.ErrInvalidQuantity) {
				t.Fatalf("expected invalid quantity, got %v", err)
			}
		})
	}

	if got := stockOf(t, svc, lemon.ID); got != 5 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
	history, err := svc.SalesHistory(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no sale recorded, got %+v", history)
	}
}

func TestSaleToDeletedCustomerIsRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cola := seedFlavor(t, svc, "Cola", 10)
	customer := seedCustomer(t, svc, "Toko Lama")
	if err := svc.DeleteCustomer(ctx, testAdmin, customer.ID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}

	_, err := svc.RecordSale(ctx, testStaff, domain.SaleRequest{
		CustomerID: customer.ID,
		TotalBoxes: 1,
		Items:      []domain.SaleLine{{FlavorID: cola.ID, Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordSaleMergesLinesAndKeepsTotalBoxes(t *testing.T) {
	m := metrics.New()
	svc, _ := newTestService(WithMetrics(m))
	ctx := context.Background()

	cola := seedFlavor(t, svc, "Cola", 10)
	lemon := seedFlavor(t, svc, "Lemon", 10)
	customer := seedCustomer(t, svc, "Warung Sari")

	sale, err := svc.RecordSale(ctx, testStaff, domain.SaleRequest{
		CustomerID: customer.ID,
		TotalBoxes: 9,
		Items: []domain.SaleLine{
			{FlavorID: cola.ID, Quantity: 2},
			{FlavorID: lemon.ID, Quantity: 1},
			{FlavorID: cola.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if len(sale.Items) != 2 || sale.Items[0].FlavorID != cola.ID || sale.Items[0].Quantity != 5 {
		t.Fatalf("expected merged cola line first, got %+v", sale.Items)
	}
	if sale.TotalBoxes != 9 {
		t.Fatalf("expected total boxes kept as entered, got %d", sale.TotalBoxes)
	}
	if sale.SaleDate != "2026-03-14" || sale.CreatedBy != "rina" {
		t.Fatalf("unexpected sale header %+v", sale)
	}
	if got := stockOf(t, svc, cola.ID); got != 5 {
		t.Fatalf("expected cola stock 5, got %d", got)
	}

	expected := `
# HELP sodaledger_boxes_sold_total Boxes deducted from inventory by sales
# TYPE sodaledger_boxes_sold_total counter
sodaledger_boxes_sold_total 6
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "sodaledger_boxes_sold_total"); err != nil {
		t.Fatalf("unexpected boxes sold metric: %v", err)
	}
}

func TestSalesHistoryNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cola := seedFlavor(t, svc, "Cola", 20)
	lemon := seedFlavor(t, svc, "Lemon", 20)
	sari := seedCustomer(t, svc, "Warung Sari")
	maju := seedCustomer(t, svc, "Toko Maju")

	if _, err := svc.RecordSale(ctx, testStaff, domain.SaleRequest{
		CustomerID: sari.ID, TotalBoxes: 3,
		Items: []domain.SaleLine{{FlavorID: cola.ID, Quantity: 1}, {FlavorID: lemon.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	if _, err := svc.RecordSale(ctx, testAdmin, domain.SaleRequest{
		CustomerID: maju.ID, TotalBoxes: 4,
		Items: []domain.SaleLine{{FlavorID: lemon.ID, Quantity: 4}},
	}); err != nil {
		t.Fatalf("second sale: %v", err)
	}

	rows, err := svc.SalesHistory(ctx, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 line rows, got %d", len(rows))
	}
	if rows[0].Customer != "Toko Maju" || rows[0].Flavor != "Lemon" || rows[0].CreatedBy != "admin" {
		t.Fatalf("expected newest sale first, got %+v", rows[0])
	}
	if rows[1].Flavor != "Cola" || rows[2].Flavor != "Lemon" || rows[2].TotalBoxes != 3 {
		t.Fatalf("unexpected older rows %+v", rows[1:])
	}

	limited, _ := svc.SalesHistory(ctx, 2)
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	logs, _ := svc.ListActivity(ctx, 1)
	if logs[0].Action != "Sale to Toko Maju" {
		t.Fatalf("expected sale activity, got %q", logs[0].Action)
	}
}
