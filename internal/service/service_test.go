package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"sodaledger/backend/internal/domain"
	"sodaledger/backend/internal/store"
	"sodaledger/backend/internal/store/memory"
)

var (
	testAdmin = domain.Actor{Username: "admin", Role: domain.RoleAdmin}
	testStaff = domain.Actor{Username: "rina", Role: domain.RoleStaff}
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func newTestService(opts ...Option) (*Service, *memory.Store) {
	repo := memory.New()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return New(repo, opts...), repo
}

// seedFlavor adds a flavor and restocks it when stock > 0.
func seedFlavor(t *testing.T, svc *Service, name string, stock int) domain.Flavor {
	t.Helper()
	res, err := svc.AddFlavor(context.Background(), testAdmin, name)
	if err != nil {
		t.Fatalf("add flavor %s: %v", name, err)
	}
	if stock > 0 {
		if _, err := svc.Restock(context.Background(), testAdmin, res.Flavor.ID, stock); err != nil {
			t.Fatalf("restock %s: %v", name, err)
		}
	}
	return res.Flavor
}

func seedCustomer(t *testing.T, svc *Service, name string) domain.Customer {
	t.Helper()
	res, err := svc.AddOrReactivateCustomer(context.Background(), testAdmin, domain.CustomerInput{Name: name})
	if err != nil {
		t.Fatalf("add customer %s: %v", name, err)
	}
	return res.Customer
}

func stockOf(t *testing.T, svc *Service, flavorID int64) int {
	t.Helper()
	flavors, err := svc.ListFlavors(context.Background())
	if err != nil {
		t.Fatalf("list flavors: %v", err)
	}
	for _, f := range flavors {
		if f.ID == flavorID {
			return f.Stock
		}
	}
	t.Fatalf("flavor %d not listed", flavorID)
	return 0
}

type failingActivityRepo struct {
	store.Repository
}

func (failingActivityRepo) AppendActivity(context.Context, domain.ActivityLog) error {
	return errors.New("disk full")
}

func TestActivityFailureDoesNotFailOperation(t *testing.T) {
	svc := New(failingActivityRepo{Repository: memory.New()}, WithClock(fixedClock))

	res, err := svc.AddFlavor(context.Background(), testAdmin, "Cola")
	if err != nil {
		t.Fatalf("expected add flavor to succeed despite log failure, got %v", err)
	}
	if res.Flavor.Name != "Cola" {
		t.Fatalf("unexpected flavor %+v", res.Flavor)
	}
}

func TestActivityLogNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	flavor := seedFlavor(t, svc, "Orange", 12)
	if err := svc.DeleteFlavor(ctx, testAdmin, flavor.ID); err != nil {
		t.Fatalf("delete flavor: %v", err)
	}

	logs, err := svc.ListActivity(ctx, 0)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	want := []string{"Deleted flavor Orange", "Added 12 to Orange", "Added flavor Orange"}
	if len(logs) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(logs))
	}
	for i, action := range want {
		if logs[i].Action != action {
			t.Fatalf("entry %d: expected %q, got %q", i, action, logs[i].Action)
		}
		if logs[i].Username != "admin" || logs[i].LogDate != "2026-03-14" {
			t.Fatalf("entry %d: unexpected user/date %+v", i, logs[i])
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: 50, -4: 50, 20: 20, 500: 500, 9000: 500}
	for in, want := range cases {
		if got := clampLimit(in); got != want {
			t.Fatalf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
