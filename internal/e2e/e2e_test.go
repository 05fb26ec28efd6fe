package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mealsub/internal/clock"
	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/smallbiznis/mealsub/internal/migration"
	"github.com/smallbiznis/mealsub/internal/observability"
	"github.com/smallbiznis/mealsub/internal/redislock"
	"github.com/smallbiznis/mealsub/internal/seed"
	"github.com/smallbiznis/mealsub/internal/server"
	"github.com/smallbiznis/mealsub/internal/sweeper"
	"github.com/smallbiznis/mealsub/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const e2eUser = "424242"

type testEnv struct {
	app     *fx.App
	server  *server.Server
	db      *gorm.DB
	genID   *snowflake.Node
	clock   *clock.FakeClock
	sweeper *sweeper.Sweeper
	baseURL string
	httpSrv *httptest.Server
	tmpDir  string
}

var env *testEnv

// The suite boots the real fx graph against a database, so it only runs when
// MEALSUB_E2E=1. Without DATABASE_TYPE it uses a throwaway sqlite file.
func TestMain(m *testing.M) {
	if os.Getenv("MEALSUB_E2E") != "1" {
		fmt.Fprintln(os.Stderr, "skipping e2e suite: set MEALSUB_E2E=1")
		os.Exit(0)
	}
	gin.SetMode(gin.TestMode)

	tmpDir, err := os.MkdirTemp("", "mealsub-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create temp dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(tmpDir)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(tmpDir)
		os.Exit(1)
	}
	env.tmpDir = tmpDir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_SubscriptionLifecycle(t *testing.T) {
	resetDatabase(t)
	vendorID, menuID := demoMenu(t, "dapur-nusantara", "LUNCH")

	sub := createSubscription(t, vendorID, menuID, "2025-03-01", "2025-03-31")
	if sub.Status != "PENDING" {
		t.Fatalf("expected PENDING, got %s", sub.Status)
	}
	if sub.Price != "32" && sub.Price != "32.00" {
		t.Fatalf("expected locked price 32.00, got %s", sub.Price)
	}

	resp, body := doJSON(t, http.MethodPost, "/v1/payments/charge", map[string]any{
		"subscription_id": sub.ID,
		"payment_method":  "card",
		"amount":          "32.00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for charge, got %d: %s", resp.StatusCode, string(body))
	}
	if status := getSubscriptionStatus(t, sub.ID); status != "ACTIVE" {
		t.Fatalf("expected ACTIVE after charge, got %s", status)
	}

	resp, body = doJSON(t, http.MethodPost, "/v1/payments/charge", map[string]any{
		"subscription_id": sub.ID,
		"payment_method":  "card",
		"amount":          "32.00",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409 for second charge, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, "/v1/subscriptions/"+sub.ID+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for cancel, got %d: %s", resp.StatusCode, string(body))
	}
	if status := getSubscriptionStatus(t, sub.ID); status != "CANCELLED" {
		t.Fatalf("expected CANCELLED, got %s", status)
	}

	if n := countRows(t, "payments", "subscription_id = ?", mustParseID(t, sub.ID)); n != 1 {
		t.Fatalf("expected one payment row, got %d", n)
	}
}

func TestE2E_CapacityIsEnforced(t *testing.T) {
	resetDatabase(t)
	vendorID, menuID := demoMenu(t, "warung-sehat", "LUNCH")
	if err := env.db.Exec(`UPDATE vendors SET monthly_capacity = 1 WHERE id = ?`, mustParseID(t, vendorID)).Error; err != nil {
		t.Fatalf("shrink capacity: %v", err)
	}

	first := createSubscription(t, vendorID, menuID, "2025-03-01", "2025-03-31")
	resp, body := doJSON(t, http.MethodPost, "/v1/payments/charge", map[string]any{
		"subscription_id": first.ID,
		"payment_method":  "card",
		"amount":          "24.00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for charge, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, "/v1/subscriptions", map[string]any{
		"vendor_id":  vendorID,
		"menu_id":    menuID,
		"start_date": "2025-03-31",
		"end_date":   "2025-04-15",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409 for full vendor, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, "/v1/subscriptions", map[string]any{
		"vendor_id":  vendorID,
		"menu_id":    menuID,
		"start_date": "2025-04-01",
		"end_date":   "2025-04-15",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 after the period, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_SweepExpiresEndedSubscriptions(t *testing.T) {
	resetDatabase(t)
	vendorID, menuID := demoMenu(t, "green-bowl-kitchen", "DINNER")

	sub := createSubscription(t, vendorID, menuID, "2025-03-01", "2025-03-05")
	resp, body := doJSON(t, http.MethodPost, "/v1/payments/charge", map[string]any{
		"subscription_id": sub.ID,
		"payment_method":  "ewallet",
		"amount":          "55.00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for charge, got %d: %s", resp.StatusCode, string(body))
	}

	env.clock.Set(time.Date(2025, time.March, 6, 1, 0, 0, 0, time.UTC))
	t.Cleanup(func() { env.clock.Set(startTime) })

	report, err := env.sweeper.RunDaily(context.Background())
	if err != nil {
		t.Fatalf("run daily sweep: %v", err)
	}
	if report.Expired != 1 {
		t.Fatalf("expected one expiry, got %+v", report)
	}
	if status := getSubscriptionStatus(t, sub.ID); status != "EXPIRED" {
		t.Fatalf("expected EXPIRED, got %s", status)
	}
	if n := countRows(t, "sweep_runs", "1 = 1"); n != 1 {
		t.Fatalf("expected one sweep run row, got %d", n)
	}
}

var startTime = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
		genID  *snowflake.Node
		sw     *sweeper.Sweeper
	)
	fake := clock.NewFakeClock(startTime)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		redislock.Module,
		clock.Module,
		fx.Decorate(func(clock.Clock) clock.Clock { return fake }),
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.SnowflakeNode)
		}),
		migration.Module,
		server.Module,
		sweeper.Module,
		fx.Populate(&srv, &dbConn, &genID, &sw),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:     app,
		server:  srv,
		db:      dbConn,
		genID:   genID,
		clock:   fake,
		sweeper: sw,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.tmpDir != "" {
		_ = os.RemoveAll(e.tmpDir)
	}
}

func setDefaultEnv(tmpDir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	setEnvIfEmpty("SEED_DEMO_CATALOG", "true")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_PATH", filepath.Join(tmpDir, "mealsub.db"))
	setEnvIfEmpty("DATABASE_MAX_OPEN_CONN", "1")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

// resetDatabase empties every table, children first, and restores the demo catalog.
func resetDatabase(t *testing.T) {
	t.Helper()
	tables := []string{
		"payments",
		"monthly_subscription_members",
		"monthly_subscriptions",
		"meal_subscriptions",
		"sweep_runs",
		"menus",
		"vendors",
	}
	for _, table := range tables {
		if err := env.db.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	if err := seed.EnsureDemoCatalog(env.db, env.genID); err != nil {
		t.Fatalf("seed demo catalog: %v", err)
	}
}

func demoMenu(t *testing.T, vendorSlug, mealType string) (string, string) {
	t.Helper()
	row := struct {
		VendorID int64
		MenuID   int64
	}{}
	if err := env.db.Raw(
		`SELECT v.id AS vendor_id, m.id AS menu_id FROM vendors v JOIN menus m ON m.vendor_id = v.id
		 WHERE v.slug = ? AND m.meal_type = ? AND m.active = ?`,
		vendorSlug, mealType, true,
	).Scan(&row).Error; err != nil {
		t.Fatalf("query demo menu: %v", err)
	}
	if row.VendorID == 0 || row.MenuID == 0 {
		t.Fatalf("demo menu %s/%s not found", vendorSlug, mealType)
	}
	return snowflake.ID(row.VendorID).String(), snowflake.ID(row.MenuID).String()
}

type subscriptionView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Price  string `json:"price"`
}

func createSubscription(t *testing.T, vendorID, menuID, start, end string) subscriptionView {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, "/v1/subscriptions", map[string]any{
		"vendor_id":  vendorID,
		"menu_id":    menuID,
		"start_date": start,
		"end_date":   end,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for create, got %d: %s", resp.StatusCode, string(body))
	}
	var envelope struct {
		Data subscriptionView `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode subscription: %v", err)
	}
	return envelope.Data
}

func getSubscriptionStatus(t *testing.T, id string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodGet, "/v1/subscriptions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for get, got %d: %s", resp.StatusCode, string(body))
	}
	var envelope struct {
		Data subscriptionView `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode subscription: %v", err)
	}
	return envelope.Data.Status
}

func countRows(t *testing.T, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := env.db.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func mustParseID(t *testing.T, value string) snowflake.ID {
	t.Helper()
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		t.Fatalf("invalid snowflake id: %s", value)
	}
	return parsed
}

func doJSON(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(server.HeaderUserID, e2eUser)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}
