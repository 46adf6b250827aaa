package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"famledger/internal/analytics"
	"famledger/internal/cache"
	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/persist"
	"famledger/internal/remote/memory"
	"famledger/internal/replication"
	"famledger/internal/sheets"
	sheetsmem "famledger/internal/sheets/memory"
	"famledger/internal/state"
	"famledger/internal/storage"
)

var testNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	store  *state.Store
	remote *memory.Store
	queue  *replication.Queue
	sheet  *sheetsmem.Writer
}

func newTestEnv(t *testing.T, uid string, mutate func(*Options)) *testEnv {
	t.Helper()
	mem := memory.New(log.Discard())
	queue := replication.New(mem, replication.DefaultConfig(), log.Discard())
	store := state.New(state.Options{
		Remote:    mem,
		Queue:     queue,
		Persister: persist.New(storage.NewMemoryKV(), persist.Options{Logger: log.Discard()}),
		Logger:    log.Discard(),
		Now:       func() time.Time { return testNow },
	})
	ctx := context.Background()
	store.Hydrate(ctx)
	store.SetUserID(ctx, uid)

	sheet := sheetsmem.New()
	opts := Options{
		Store:     store,
		Session:   state.NewSession(store),
		Exporter:  sheets.NewExporter(store, sheet, log.Discard()),
		Summaries: cache.NewSummaryCache(8, time.Minute),
		SoftLimit: 1000,
		Logger:    log.Discard(),
		Now:       func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &testEnv{server: NewServer(opts), store: store, remote: mem, queue: queue, sheet: sheet}
}

// do sends a request and decodes a JSON response body into out when given.
func (e *testEnv) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, "", nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := env.server.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestServer_CreateTransaction(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantExceeded bool
	}{
		{
			name:       "expense with typed amount",
			body:       `{"date":"2024-06-10","amount":"500","categoryId":"food","type":"expense","paymentMethod":"cash"}`,
			wantStatus: 201,
		},
		{
			name:         "expense over soft limit still saved",
			body:         `{"amount":1500,"categoryId":"food","type":"expense","paymentMethod":"transfer"}`,
			wantStatus:   201,
			wantExceeded: true,
		},
		{
			name:       "income never flagged",
			body:       `{"amount":5000,"categoryId":"salary","type":"income","paymentMethod":"transfer"}`,
			wantStatus: 201,
		},
		{
			name:       "negative typed amount",
			body:       `{"amount":"-5","categoryId":"food","type":"expense","paymentMethod":"cash"}`,
			wantStatus: 400,
		},
		{
			name:       "unknown payment method",
			body:       `{"amount":5,"categoryId":"food","type":"expense","paymentMethod":"cheque"}`,
			wantStatus: 400,
		},
		{
			name:       "bad date",
			body:       `{"date":"10/06/2024","amount":5,"categoryId":"food","type":"expense","paymentMethod":"cash"}`,
			wantStatus: 400,
		},
		{
			name:       "description too long",
			body:       `{"amount":5,"categoryId":"food","type":"expense","paymentMethod":"cash","description":"` + strings.Repeat("x", 201) + `"}`,
			wantStatus: 400,
		},
		{
			name:       "missing category",
			body:       `{"amount":5,"type":"expense","paymentMethod":"cash"}`,
			wantStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "u1", nil)

			var got struct {
				Transaction       core.Transaction `json:"transaction"`
				SoftLimitExceeded bool             `json:"softLimitExceeded"`
			}
			status := env.do(t, "POST", "/api/v1/transactions", tt.body, &got)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if status != 201 {
				if n := len(env.store.Transactions()); n != 0 {
					t.Errorf("store has %d transactions after rejected create", n)
				}
				return
			}
			if got.Transaction.ID == "" {
				t.Error("transaction id not minted")
			}
			if got.SoftLimitExceeded != tt.wantExceeded {
				t.Errorf("softLimitExceeded = %v, want %v", got.SoftLimitExceeded, tt.wantExceeded)
			}
			if _, ok := env.store.Transaction(got.Transaction.ID); !ok {
				t.Error("transaction not in store")
			}
		})
	}
}

func TestServer_CreateTransactionDefaultsToToday(t *testing.T) {
	env := newTestEnv(t, "u1", nil)

	var got struct {
		Transaction core.Transaction `json:"transaction"`
	}
	env.do(t, "POST", "/api/v1/transactions",
		`{"amount":5,"categoryId":"food","type":"expense","paymentMethod":"cash"}`, &got)
	if got.Transaction.Date.String() != "2024-06-15" {
		t.Errorf("date = %q, want 2024-06-15", got.Transaction.Date.String())
	}
}

func TestServer_TransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, "u1", nil)
	ctx := context.Background()

	var created struct {
		Transaction core.Transaction `json:"transaction"`
	}
	env.do(t, "POST", "/api/v1/transactions",
		`{"date":"2024-06-01","amount":100,"categoryId":"food","type":"expense","paymentMethod":"cash"}`, &created)
	id := created.Transaction.ID

	var updated core.Transaction
	if status := env.do(t, "PATCH", "/api/v1/transactions/"+id, `{"amount":250,"description":"  groceries "}`, &updated); status != 200 {
		t.Fatalf("PATCH status = %d", status)
	}
	if updated.Amount != 250 || updated.Description != "groceries" {
		t.Errorf("updated = %+v", updated)
	}

	env.queue.Flush(ctx)
	rec, err := env.remote.Get(ctx, state.TransactionsCollection("u1"), id)
	if err != nil {
		t.Fatalf("remote record missing: %v", err)
	}
	if rec["amount"] != float64(250) {
		t.Errorf("remote amount = %v, want 250", rec["amount"])
	}

	if status := env.do(t, "PATCH", "/api/v1/transactions/missing", `{"amount":1}`, nil); status != 404 {
		t.Errorf("PATCH missing status = %d, want 404", status)
	}
	if status := env.do(t, "PATCH", "/api/v1/transactions/"+id, `{"amount":"lots"}`, nil); status != 400 {
		t.Errorf("PATCH wrong type status = %d, want 400", status)
	}

	if status := env.do(t, "DELETE", "/api/v1/transactions/"+id, "", nil); status != 204 {
		t.Errorf("DELETE status = %d, want 204", status)
	}
	if len(env.store.Transactions()) != 0 {
		t.Error("transaction still in store after delete")
	}
}

func TestServer_ListTransactionsByMonth(t *testing.T) {
	env := newTestEnv(t, "u1", nil)
	ctx := context.Background()
	for _, d := range []core.Date{core.NewDate(2024, 6, 1), core.NewDate(2024, 5, 31), core.NewDate(2024, 6, 20)} {
		tx := core.Transaction{Date: d, Amount: 10, CategoryID: "food", Type: core.Expense, PaymentMethod: core.Cash}
		if err := env.store.AddTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/transactions", 3},
		{"/api/v1/transactions?year=2024&month=6", 2},
		{"/api/v1/transactions?year=2024&month=5", 1},
		{"/api/v1/transactions?month=6", 2},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var got struct {
				Count int `json:"count"`
			}
			env.do(t, "GET", tt.path, "", &got)
			if got.Count != tt.want {
				t.Errorf("count = %d, want %d", got.Count, tt.want)
			}
		})
	}

	if status := env.do(t, "GET", "/api/v1/transactions?month=13", "", nil); status != 400 {
		t.Errorf("month=13 status = %d, want 400", status)
	}
}

func TestServer_Reset(t *testing.T) {
	env := newTestEnv(t, "u1", nil)
	ctx := context.Background()
	env.store.AddTransaction(ctx, core.Transaction{Date: core.NewDate(2024, 6, 1), Amount: 10, CategoryID: "food", Type: core.Expense, PaymentMethod: core.Cash})
	env.store.AddCategory(ctx, core.Category{ID: "pets", Name: "Pets", Type: core.Expense})

	if status := env.do(t, "POST", "/api/v1/reset", "", nil); status != 204 {
		t.Fatalf("status = %d, want 204", status)
	}
	if len(env.store.Transactions()) != 0 {
		t.Error("transactions not cleared")
	}
	for _, c := range env.store.Categories() {
		if c.ID == "pets" {
			t.Error("custom category survived reset")
		}
	}
	if env.store.UserID() != "u1" {
		t.Error("reset dropped the session user")
	}
}

func TestServer_Categories(t *testing.T) {
	env := newTestEnv(t, "u1", nil)

	body := `{"id":"pets","name":"Pets","type":"expense","color":"#aa00aa"}`
	if status := env.do(t, "POST", "/api/v1/categories", body, nil); status != 201 {
		t.Fatalf("create status = %d, want 201", status)
	}
	if status := env.do(t, "POST", "/api/v1/categories", body, nil); status != 409 {
		t.Errorf("duplicate status = %d, want 409", status)
	}
	if status := env.do(t, "POST", "/api/v1/categories", `{"name":"","type":"expense"}`, nil); status != 400 {
		t.Errorf("empty name status = %d, want 400", status)
	}

	var got struct {
		Categories []core.Category `json:"categories"`
	}
	env.do(t, "GET", "/api/v1/categories", "", &got)
	found := false
	for _, c := range got.Categories {
		if c.ID == "pets" {
			found = true
		}
	}
	if !found {
		t.Error("new category not listed")
	}
}

func TestServer_Tasks(t *testing.T) {
	env := newTestEnv(t, "u1", nil)

	var task core.Task
	status := env.do(t, "POST", "/api/v1/tasks",
		`{"title":"Pay rent","dueDate":"2024-06-20T09:00","reminderTime":"1h","assigneeId":"u2"}`, &task)
	if status != 201 {
		t.Fatalf("create status = %d, want 201", status)
	}
	if task.Status != core.StatusTodo || task.CreatorID != "u1" {
		t.Errorf("task = %+v", task)
	}

	if status := env.do(t, "POST", "/api/v1/tasks", `{"title":"  "}`, nil); status != 400 {
		t.Errorf("empty title status = %d, want 400", status)
	}

	for _, want := range []core.TaskStatus{core.StatusDoing, core.StatusDone} {
		var got core.Task
		env.do(t, "POST", "/api/v1/tasks/"+task.ID+"/advance", "", &got)
		if got.Status != want {
			t.Errorf("status = %s, want %s", got.Status, want)
		}
	}
	if status := env.do(t, "POST", "/api/v1/tasks/"+task.ID+"/advance", "", nil); status != 409 {
		t.Errorf("advance done status = %d, want 409", status)
	}
	if status := env.do(t, "POST", "/api/v1/tasks/nope/advance", "", nil); status != 404 {
		t.Errorf("advance missing status = %d, want 404", status)
	}

	var patched core.Task
	env.do(t, "PATCH", "/api/v1/tasks/"+task.ID, `{"priority":"high"}`, &patched)
	if patched.Priority != core.PriorityHigh {
		t.Errorf("priority = %s, want high", patched.Priority)
	}
	if status := env.do(t, "PATCH", "/api/v1/tasks/"+task.ID, `{"priority":"urgent"}`, nil); status != 400 {
		t.Errorf("bad priority status = %d, want 400", status)
	}

	env.store.AddTask(context.Background(), core.Task{Title: "Other", CreatorID: "u3", AssigneeID: "u3"})
	var mine struct {
		Count int `json:"count"`
	}
	env.do(t, "GET", "/api/v1/tasks?mine=true", "", &mine)
	if mine.Count != 1 {
		t.Errorf("mine count = %d, want 1", mine.Count)
	}

	if status := env.do(t, "DELETE", "/api/v1/tasks/"+task.ID, "", nil); status != 204 {
		t.Errorf("delete status = %d, want 204", status)
	}
	if _, ok := env.store.Task(task.ID); ok {
		t.Error("task still present after delete")
	}
}

func TestServer_MyTasksWithoutSession(t *testing.T) {
	env := newTestEnv(t, "", nil)
	if status := env.do(t, "GET", "/api/v1/tasks?mine=true", "", nil); status != 401 {
		t.Errorf("status = %d, want 401", status)
	}
}

func TestServer_Notifications(t *testing.T) {
	env := newTestEnv(t, "u1", nil)
	ctx := context.Background()
	n1, _ := env.store.AddNotification(ctx, core.NewNotification("", core.NotificationSystem, "a", "b", testNow))
	env.store.AddNotification(ctx, core.NewNotification("", core.NotificationSystem, "c", "d", testNow))

	var list struct {
		Notifications []core.AppNotification `json:"notifications"`
		Unread        int                    `json:"unread"`
	}
	env.do(t, "GET", "/api/v1/notifications", "", &list)
	if len(list.Notifications) != 2 || list.Unread != 2 {
		t.Fatalf("list = %+v", list)
	}

	if status := env.do(t, "POST", "/api/v1/notifications/"+n1.ID+"/read", "", nil); status != 204 {
		t.Errorf("read status = %d, want 204", status)
	}
	if env.store.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", env.store.UnreadCount())
	}
	if status := env.do(t, "POST", "/api/v1/notifications/missing/read", "", nil); status != 404 {
		t.Errorf("read missing status = %d, want 404", status)
	}

	var cleared struct {
		Cleared int `json:"cleared"`
	}
	env.do(t, "DELETE", "/api/v1/notifications", "", &cleared)
	if cleared.Cleared != 2 || len(env.store.Notifications()) != 0 {
		t.Errorf("cleared = %d, remaining = %d", cleared.Cleared, len(env.store.Notifications()))
	}
}

func TestServer_Session(t *testing.T) {
	env := newTestEnv(t, "", nil)
	ctx := context.Background()
	env.remote.Set(ctx, state.TransactionsCollection("u9"), "t1", map[string]any{
		"id": "t1", "date": "2024-06-02", "amount": 42.0, "categoryId": "food",
		"type": "expense", "paymentMethod": "cash",
	})

	var got struct {
		UserID string `json:"userId"`
		Synced bool   `json:"synced"`
	}
	if status := env.do(t, "PUT", "/api/v1/session", `{"uid":"u9"}`, &got); status != 200 {
		t.Fatalf("sign-in status = %d", status)
	}
	if got.UserID != "u9" || !got.Synced {
		t.Errorf("sign-in = %+v", got)
	}
	if len(env.store.Transactions()) != 1 {
		t.Errorf("transactions after sign-in = %d, want 1", len(env.store.Transactions()))
	}
	if env.remote.Subscriptions() != 2 {
		t.Errorf("subscriptions = %d, want 2", env.remote.Subscriptions())
	}

	if status := env.do(t, "PUT", "/api/v1/session", `{"uid":" "}`, nil); status != 400 {
		t.Errorf("blank uid status = %d, want 400", status)
	}

	if status := env.do(t, "DELETE", "/api/v1/session", "", nil); status != 204 {
		t.Errorf("sign-out status = %d, want 204", status)
	}
	env.do(t, "GET", "/api/v1/session", "", &got)
	if got.UserID != "" {
		t.Errorf("userId after sign-out = %q", got.UserID)
	}
	if env.remote.Subscriptions() != 0 {
		t.Errorf("subscriptions after sign-out = %d, want 0", env.remote.Subscriptions())
	}
}

func TestServer_SummaryCache(t *testing.T) {
	env := newTestEnv(t, "u1", nil)
	ctx := context.Background()
	add := func(day int, amount float64, typ core.TransactionType, cat string) {
		t.Helper()
		tx := core.Transaction{Date: core.NewDate(2024, 6, day), Amount: amount, CategoryID: cat, Type: typ, PaymentMethod: core.Cash}
		if err := env.store.AddTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}
	add(1, 300, core.Income, "salary")
	add(2, 100, core.Expense, "food")

	get := func() (analytics.Summary, string) {
		t.Helper()
		req := httptest.NewRequest("GET", "/api/v1/analytics/summary?year=2024&month=6", nil)
		resp, err := env.server.App().Test(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var s analytics.Summary
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			t.Fatal(err)
		}
		return s, resp.Header.Get("X-Cache")
	}

	s, hit := get()
	if hit != "MISS" || s.Totals.Balance != 200 {
		t.Fatalf("first = %s %+v", hit, s.Totals)
	}
	if _, hit := get(); hit != "HIT" {
		t.Errorf("second X-Cache = %s, want HIT", hit)
	}

	add(3, 50, core.Expense, "fun")
	s, hit = get()
	if hit != "MISS" {
		t.Errorf("after write X-Cache = %s, want MISS", hit)
	}
	if s.Totals.Expense != 150 {
		t.Errorf("expense = %v, want 150", s.Totals.Expense)
	}

	var top analytics.Summary
	env.do(t, "GET", "/api/v1/analytics/summary?year=2024&month=6&top=1", "", &top)
	if len(top.Categories) != 1 || top.Categories[0].CategoryID != "food" {
		t.Errorf("top categories = %+v", top.Categories)
	}
}

func TestServer_Export(t *testing.T) {
	env := newTestEnv(t, "u1", nil)
	env.store.AddTransaction(context.Background(), core.Transaction{Date: core.NewDate(2024, 5, 3), Amount: 70, CategoryID: "food", Type: core.Expense, PaymentMethod: core.Cash})

	var got struct {
		Ref string `json:"ref"`
	}
	if status := env.do(t, "POST", "/api/v1/export?year=2024&month=5", "", &got); status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}
	if got.Ref != "2024-05" {
		t.Errorf("ref = %q, want 2024-05", got.Ref)
	}
	if _, ok := env.sheet.Rows("2024-05"); !ok {
		t.Error("no rows written")
	}
}

func TestServer_ExportNotConfigured(t *testing.T) {
	tests := []struct {
		name     string
		exporter Exporter
	}{
		{"no exporter", nil},
		{"exporter without writer", sheets.NewExporter(nil, nil, log.Discard())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "u1", func(o *Options) { o.Exporter = tt.exporter })
			if status := env.do(t, "POST", "/api/v1/export", "", nil); status != 503 {
				t.Errorf("status = %d, want 503", status)
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{state.ErrNotFound, 404},
		{core.ErrInvalidAmount, 400},
		{fmt.Errorf("add transaction: %w", core.ErrDescriptionTooLong), 400},
		{core.ErrTaskDone, 409},
		{sheets.ErrNotConfigured, 503},
		{errNoSession, 401},
		{io.ErrUnexpectedEOF, 500},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusOf(tt.err); got != tt.want {
				t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"a\x00b\x07c", "abc"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
