package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/middleware"
	"marketplace/internal/repositories"
	"marketplace/internal/scheduler"
	"marketplace/internal/server"
	"marketplace/internal/services"
	"marketplace/internal/storage"
)

const (
	testAdminKey     = "test_admin_key"
	testConfirmDelay = 5 * time.Second
)

type testEnv struct {
	app       *fiber.App
	clock     *clockwork.FakeClock
	uploadDir string
	staticDir string
}

// setupApp wires the full application against in-memory SQLite and a temp upload dir.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	env := &testEnv{
		clock:     clockwork.NewFakeClock(),
		uploadDir: t.TempDir(),
		staticDir: t.TempDir(),
	}

	store, err := storage.NewLocalStore(env.uploadDir, "/uploads")
	require.NoError(t, err)

	logger := zap.NewNop()
	sched := scheduler.New(env.clock, logger)
	t.Cleanup(func() {
		sched.Stop()
		database.Close(db)
	})

	productRepo := repositories.NewGORMProductRepository(db)
	tokens := services.NewTokenService("test_secret", time.Hour, env.clock)

	env.app = server.New(server.Deps{
		Auth:      services.NewAuthService(repositories.NewGORMUserRepository(db), tokens, env.clock, logger),
		Products:  services.NewProductService(productRepo, repositories.NewGORMSchemaRepository(db), store, env.clock, logger),
		Orders:    services.NewOrderService(repositories.NewGORMOrderRepository(db), productRepo, sched, nil, testConfirmDelay, env.clock, logger),
		Logger:    logger,
		AdminKey:  testAdminKey,
		UploadDir: env.uploadDir,
		StaticDir: env.staticDir,
	})
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	status, raw := e.do(t, req)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return status, decoded
}

func (e *testEnv) listOrders(t *testing.T, token string) []map[string]any {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/api/orders", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	status, raw := e.do(t, req)
	require.Equal(t, fiber.StatusOK, status, string(raw))

	var orders []map[string]any
	require.NoError(t, json.Unmarshal(raw, &orders))
	return orders
}

func admin() map[string]string {
	return map[string]string{middleware.AdminKeyHeader: testAdminKey}
}

func bearer(token string) map[string]string {
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

// registerAndLogin creates a buyer and returns its session token.
func (e *testEnv) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	status, body := e.doJSON(t, fiber.MethodPost, "/api/register", map[string]string{
		"name": "Buyer", "email": email, "password": "pw123456",
	}, nil)
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = e.doJSON(t, fiber.MethodPost, "/api/login", map[string]string{
		"email": email, "password": "pw123456",
	}, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	return body["token"].(string)
}

func (e *testEnv) createProduct(t *testing.T, title string, price any) string {
	t.Helper()
	status, body := e.doJSON(t, fiber.MethodPost, "/api/admin/products", map[string]any{
		"title": title, "price": price, "description": "d", "artistName": "A", "image": "/uploads/x.jpg",
	}, admin())
	require.Equal(t, fiber.StatusCreated, status, body)
	return body["product"].(map[string]any)["id"].(string)
}

func TestMarketplaceScenario(t *testing.T) {
	env := setupApp(t)

	status, body := env.doJSON(t, fiber.MethodPost, "/api/register", map[string]string{
		"name": "Amina", "email": "a@x.com", "password": "pw123456",
	}, nil)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "Registration successful", body["message"])

	status, body = env.doJSON(t, fiber.MethodPost, "/api/register", map[string]string{
		"name": "Other", "email": "A@X.com", "password": "pw123456",
	}, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "Email already exists", body["message"])

	status, body = env.doJSON(t, fiber.MethodPost, "/api/login", map[string]string{
		"email": "a@x.com", "password": "pw123456",
	}, nil)
	require.Equal(t, fiber.StatusOK, status)
	token := body["token"].(string)
	user := body["user"].(map[string]any)
	assert.Equal(t, "Amina", user["name"])
	assert.Equal(t, "buyer", user["role"])
	assert.NotContains(t, user, "password")

	status, body = env.doJSON(t, fiber.MethodPost, "/api/admin/products", map[string]any{
		"title": "Print", "price": 10, "description": "d", "artistName": "A", "image": "/uploads/x.jpg",
	}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized admin access", body["message"])

	productID := env.createProduct(t, "Print", 10)

	status, body = env.doJSON(t, fiber.MethodPost, "/api/orders", map[string]any{
		"items": []map[string]any{{"productId": productID, "quantity": 2, "price": 0.01}},
	}, bearer(token))
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "Order placed successfully", body["message"])

	order := body["order"].(map[string]any)
	assert.Equal(t, float64(20), order["totalPrice"])
	assert.Equal(t, "completed", order["status"])
	items := order["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Print", items[0].(map[string]any)["title"])

	orders := env.listOrders(t, token)
	require.Len(t, orders, 1)
	assert.Equal(t, order["id"], orders[0]["id"])

	// deleting the product leaves the order history intact
	status, body = env.doJSON(t, fiber.MethodDelete, "/api/admin/products/"+productID, nil, admin())
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Product deleted", body["message"])

	status, body = env.doJSON(t, fiber.MethodGet, "/api/products/"+productID, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Product not found", body["message"])

	status, _ = env.doJSON(t, fiber.MethodDelete, "/api/admin/products/"+productID, nil, admin())
	assert.Equal(t, fiber.StatusNotFound, status)

	orders = env.listOrders(t, token)
	require.Len(t, orders, 1)
	items = orders[0]["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, productID, items[0].(map[string]any)["productId"])
	assert.Equal(t, float64(10), items[0].(map[string]any)["price"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := setupApp(t)
	env.registerAndLogin(t, "b@x.com")

	for _, creds := range []map[string]string{
		{"email": "b@x.com", "password": "wrong-password"},
		{"email": "nobody@x.com", "password": "pw123456"},
	} {
		status, body := env.doJSON(t, fiber.MethodPost, "/api/login", creds, nil)
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "Invalid credentials", body["message"])
	}

	status, body := env.doJSON(t, fiber.MethodPost, "/api/register", map[string]string{"email": "c@x.com"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Name, email and password are required", body["message"])
}

func TestOrders_RequireToken(t *testing.T) {
	env := setupApp(t)

	status, body := env.doJSON(t, fiber.MethodGet, "/api/orders", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized: token missing", body["message"])

	status, body = env.doJSON(t, fiber.MethodPost, "/api/orders", map[string]any{"items": []any{}}, bearer("bogus.token"))
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized: invalid token", body["message"])
}

func TestOrders_Validation(t *testing.T) {
	env := setupApp(t)
	token := env.registerAndLogin(t, "d@x.com")
	productID := env.createProduct(t, "Print", "12.5")

	status, body := env.doJSON(t, fiber.MethodPost, "/api/orders", map[string]any{"items": []any{}}, bearer(token))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Order items are required", body["message"])

	status, body = env.doJSON(t, fiber.MethodPost, "/api/orders", map[string]any{
		"items": []map[string]any{{"productId": productID, "quantity": 1}, {"productId": "nope", "quantity": 1}},
	}, bearer(token))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invalid product ID: nope", body["message"])
	assert.Empty(t, env.listOrders(t, token), "a rejected order must not be persisted")

	status, body = env.doJSON(t, fiber.MethodPost, "/api/mpesa/checkout", map[string]any{
		"items": []map[string]any{{"productId": productID}},
	}, bearer(token))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Phone number is required for M-Pesa", body["message"])
}

func TestOrders_QuantityAsString(t *testing.T) {
	env := setupApp(t)
	token := env.registerAndLogin(t, "q@x.com")
	productID := env.createProduct(t, "Print", 10)

	status, body := env.doJSON(t, fiber.MethodPost, "/api/orders", map[string]any{
		"items": []map[string]any{{"productId": productID, "quantity": "3"}},
	}, bearer(token))
	require.Equal(t, fiber.StatusCreated, status, body)

	order := body["order"].(map[string]any)
	assert.Equal(t, float64(30), order["totalPrice"])
	assert.Equal(t, float64(3), order["items"].([]any)[0].(map[string]any)["quantity"])
}

func TestMpesaCheckout_CompletesAfterDelay(t *testing.T) {
	env := setupApp(t)
	token := env.registerAndLogin(t, "m@x.com")
	productID := env.createProduct(t, "Mask", "7.25")

	status, body := env.doJSON(t, fiber.MethodPost, "/api/mpesa/checkout", map[string]any{
		"items": []map[string]any{{"productId": productID, "quantity": 4}},
		"phone": " 0712345678 ",
	}, bearer(token))
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "M-Pesa checkout initiated", body["message"])
	assert.Equal(t, map[string]any{"status": "initiated", "phone": "0712345678"}, body["mpesa"])

	order := body["order"].(map[string]any)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, float64(29), order["totalPrice"])

	before := env.listOrders(t, token)
	require.Len(t, before, 1)
	assert.Equal(t, "pending", before[0]["status"])

	env.clock.Advance(testConfirmDelay)

	var after []map[string]any
	require.Eventually(t, func() bool {
		after = env.listOrders(t, token)
		return len(after) == 1 && after[0]["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	// only the status moved
	expected := before[0]
	expected["status"] = "completed"
	assert.Equal(t, expected, after[0])
}

func TestAdmin_UploadedImageLifecycle(t *testing.T) {
	env := setupApp(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"title": "Bowl", "price": "15", "description": "Clay", "artistName": "Z", "imageUrl": "https://example.com/ignored.jpg"} {
		require.NoError(t, form.WriteField(k, v))
	}
	part, err := form.CreateFormFile("image", "my bowl.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-png"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/api/admin/products", &buf)
	req.Header.Set(fiber.HeaderContentType, form.FormDataContentType())
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	status, raw := env.do(t, req)
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	var created struct {
		Product struct {
			ID    string  `json:"id"`
			Image string  `json:"image"`
			Price float64 `json:"price"`
		} `json:"product"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Regexp(t, `^/uploads/\d+_[0-9a-f]{8}_my_bowl\.png$`, created.Product.Image)
	assert.Equal(t, float64(15), created.Product.Price)

	status, raw = env.do(t, httptest.NewRequest(fiber.MethodGet, created.Product.Image, nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "fake-png", string(raw))

	stored := filepath.Join(env.uploadDir, filepath.Base(created.Product.Image))
	_, err = os.Stat(stored)
	require.NoError(t, err)

	status, _ = env.doJSON(t, fiber.MethodDelete, "/api/admin/products/"+created.Product.ID, nil, admin())
	require.Equal(t, fiber.StatusOK, status)
	_, err = os.Stat(stored)
	assert.True(t, os.IsNotExist(err), "uploaded image is removed with its product")
}

func TestAdmin_UploadImageRejectsUnsupportedType(t *testing.T) {
	env := setupApp(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("image", "script.sh")
	require.NoError(t, err)
	_, err = part.Write([]byte("#!/bin/sh"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/api/admin/upload-image", &buf)
	req.Header.Set(fiber.HeaderContentType, form.FormDataContentType())
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	status, raw := env.do(t, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.JSONEq(t, `{"message":"Unsupported image file type"}`, string(raw))

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAdmin_DBViewer(t *testing.T) {
	env := setupApp(t)
	env.createProduct(t, "Print", 10)

	status, body := env.doJSON(t, fiber.MethodGet, "/api/admin/db/tables", nil, admin())
	require.Equal(t, fiber.StatusOK, status)
	assert.Subset(t, body["tables"], []any{"order_items", "orders", "products", "users"})

	req := httptest.NewRequest(fiber.MethodGet, "/api/admin/db/products", nil)
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	status, raw := env.do(t, req)
	require.Equal(t, fiber.StatusOK, status)

	var products []map[string]any
	require.NoError(t, json.Unmarshal(raw, &products))
	require.Len(t, products, 1)
	assert.Equal(t, "Print", products[0]["title"])
}

func TestSystemRoutes(t *testing.T) {
	env := setupApp(t)

	status, body := env.doJSON(t, fiber.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = env.doJSON(t, fiber.MethodGet, "/api", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["endpoints"])

	status, body = env.doJSON(t, fiber.MethodGet, "/api/does-not-exist", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Not found", body["message"])

	status, raw := env.do(t, httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), "marketplace_http_request_duration_seconds")
}

func TestFrontendFallback(t *testing.T) {
	env := setupApp(t)

	// no build yet
	status, body := env.doJSON(t, fiber.MethodGet, "/gallery", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body["message"], "Frontend not built")

	require.NoError(t, os.WriteFile(filepath.Join(env.staticDir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.staticDir, "app.js"), []byte("console.log(1)"), 0o644))

	status, raw := env.do(t, httptest.NewRequest(fiber.MethodGet, "/gallery/42", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "<html>app</html>", string(raw))

	status, raw = env.do(t, httptest.NewRequest(fiber.MethodGet, "/app.js", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "console.log(1)", string(raw))

	status, _ = env.do(t, httptest.NewRequest(fiber.MethodGet, "/uploads/missing.png", nil))
	assert.Equal(t, fiber.StatusNotFound, status)
}
