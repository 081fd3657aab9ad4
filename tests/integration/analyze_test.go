//go:build integration
// +build integration

// Package integration provides end-to-end tests for the fakeguard account
// analysis service.
//
// These tests drive the complete HTTP pipeline against a running server:
//
//	Upload → Analyze → Check / Dashboard / Export
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// Each test uses its own tenant, so runs never see each other's uploads.
// No custom rules are required; if any are loaded on the server the score
// assertions below may not hold.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig(t *testing.T) TestConfig {
	baseURL := os.Getenv("FAKEGUARD_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("it-%s-%d", strings.NewReplacer("_", "-", "/", ".").Replace(strings.ToLower(t.Name())), time.Now().UnixNano()),
	}
}

// Analysis mirrors one flagged account in the analyze response.
type Analysis struct {
	Username       string         `json:"username"`
	SuspicionScore int            `json:"suspicionScore"`
	RiskLevel      string         `json:"riskLevel"`
	Flags          []string       `json:"flags"`
	Details        map[string]any `json:"details"`
}

// AnalyzeResponse is what POST /api/analyze returns
type AnalyzeResponse struct {
	Success bool `json:"success"`
	Summary struct {
		TotalProcessed    int    `json:"totalProcessed"`
		TotalFlagged      int    `json:"totalFlagged"`
		FlaggedPercentage string `json:"flaggedPercentage"`
	} `json:"summary"`
	FlaggedAccounts []Analysis `json:"flaggedAccounts"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func send(t *testing.T, config TestConfig, method, path, contentType string, body io.Reader) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if config.TenantID != "" {
		req.Header.Set("X-Tenant-ID", config.TenantID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func upload(t *testing.T, config TestConfig, records []map[string]any) {
	t.Helper()

	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("Failed to marshal records: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "accounts.json")
	part.Write(data)
	mw.Close()

	status, resp := send(t, config, http.MethodPost, "/api/upload", mw.FormDataContentType(), &body)
	if status != http.StatusOK {
		t.Fatalf("Upload: expected status 200, got %d: %s", status, resp)
	}
}

func analyze(t *testing.T, config TestConfig) AnalyzeResponse {
	t.Helper()

	status, body := send(t, config, http.MethodPost, "/api/analyze", "", nil)
	if status != http.StatusOK {
		t.Fatalf("Analyze: expected status 200, got %d: %s", status, body)
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, body)
	}
	return result
}

func daysAgo(n int) string {
	return time.Now().AddDate(0, 0, -n).Format(time.RFC3339)
}

// baseAccount is a complete, verified profile whose only weakness is a
// numbered username.
func baseAccount() map[string]any {
	return map[string]any{
		"username":        "user12345",
		"created_at":      daysAgo(40),
		"posts":           10,
		"followers":       50,
		"following":       20,
		"bio":             "hi",
		"profile_picture": "x",
		"full_name":       "A",
		"website":         "w",
		"location":        "L",
		"email":           "a@gmail.com",
		"email_verified":  true,
		"phone_verified":  true,
	}
}

// ============================================================================
// SCENARIO 1: Numbered username alone stays LOW
// ============================================================================

func TestUsernameOnly_NotFlagged(t *testing.T) {
	/*
	   username pattern (+2) is the only signal → score 2 → LOW, not flagged
	*/
	config := getTestConfig(t)

	upload(t, config, []map[string]any{baseAccount()})
	result := analyze(t, config)

	if result.Summary.TotalProcessed != 1 || result.Summary.TotalFlagged != 0 {
		t.Errorf("Expected 1 processed and 0 flagged, got %+v", result.Summary)
	}
	if result.Summary.FlaggedPercentage != "0.00" {
		t.Errorf("Expected 0.00%%, got %s", result.Summary.FlaggedPercentage)
	}
}

// ============================================================================
// SCENARIO 2: New account posting at machine rate
// ============================================================================

func TestBurstNewAccount_High(t *testing.T) {
	/*
	   burst posting (+2, ~100/day) + new account (+1) + username (+2) = 5 → HIGH
	*/
	config := getTestConfig(t)

	acct := baseAccount()
	acct["created_at"] = daysAgo(5)
	acct["posts"] = 500

	upload(t, config, []map[string]any{acct})
	result := analyze(t, config)

	if len(result.FlaggedAccounts) != 1 {
		t.Fatalf("Expected 1 flagged account, got %d", len(result.FlaggedAccounts))
	}

	flagged := result.FlaggedAccounts[0]
	if flagged.SuspicionScore != 5 || flagged.RiskLevel != "HIGH" {
		t.Errorf("Expected score 5 HIGH, got %d %s", flagged.SuspicionScore, flagged.RiskLevel)
	}
	if !strings.HasPrefix(flagged.Flags[0], "High posting frequency") {
		t.Errorf("Expected burst flag first, got %v", flagged.Flags)
	}
}

// ============================================================================
// SCENARIO 3: Shared profile picture in one batch
// ============================================================================

func TestDuplicatePicture_LaterAccountFlagged(t *testing.T) {
	config := getTestConfig(t)

	alice := baseAccount()
	alice["username"] = "alice"
	alice["profile_picture"] = "http://x/pic.jpg"
	bob := baseAccount()
	bob["username"] = "bob"
	bob["profile_picture"] = "http://x/pic.jpg"

	upload(t, config, []map[string]any{alice, bob})
	result := analyze(t, config)

	if len(result.FlaggedAccounts) != 1 || result.FlaggedAccounts[0].Username != "bob" {
		t.Fatalf("Expected only bob flagged, got %+v", result.FlaggedAccounts)
	}

	dup, _ := result.FlaggedAccounts[0].Details["duplicateProfile"].(map[string]any)
	if dup["originalAccount"] != "alice" {
		t.Errorf("Expected originalAccount alice, got %v", dup["originalAccount"])
	}

	// A standalone check uses a fresh index and never sees the duplicate
	status, body := send(t, config, http.MethodPost, "/api/check", "application/json", strings.NewReader(`{"username":"BOB"}`))
	if status != http.StatusOK {
		t.Fatalf("Check: expected status 200, got %d: %s", status, body)
	}
	if !strings.Contains(string(body), `"riskLevel":"LOW"`) {
		t.Errorf("Expected bob LOW on a standalone check: %s", body)
	}
}

// ============================================================================
// SCENARIO 4: Dashboard and export after analysis
// ============================================================================

func TestDashboardAndExport(t *testing.T) {
	config := getTestConfig(t)

	bot := baseAccount()
	bot["email"] = "a@mailinator.com"
	bot["email_verified"] = false
	bot["phone_verified"] = false

	upload(t, config, []map[string]any{bot})
	analyze(t, config)

	status, body := send(t, config, http.MethodGet, "/api/dashboard", "", nil)
	if status != http.StatusOK {
		t.Fatalf("Dashboard: expected status 200, got %d", status)
	}
	if !strings.Contains(string(body), `"totalFlagged":1`) {
		t.Errorf("Expected one flagged account on the dashboard: %s", body)
	}

	status, body = send(t, config, http.MethodGet, "/api/export", "", nil)
	if status != http.StatusOK {
		t.Fatalf("Export: expected status 200, got %d: %s", status, body)
	}

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if lines[0] != "Username,Email,Followers,Following,Posts,Account Age (days),Suspicion Score,Risk Level,Flags" {
		t.Errorf("Unexpected export header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], `"user12345","a@mailinator.com","50","20","10","40","6","HIGH",`) {
		t.Errorf("Unexpected export row %q", lines[1])
	}
}

// ============================================================================
// ERROR CASES
// ============================================================================

func TestAnalyzeWithoutUpload_Error(t *testing.T) {
	config := getTestConfig(t)

	status, body := send(t, config, http.MethodPost, "/api/analyze", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", status, body)
	}
}

func TestCheckUnknownAccount_Error(t *testing.T) {
	config := getTestConfig(t)
	upload(t, config, []map[string]any{baseAccount()})

	status, _ := send(t, config, http.MethodPost, "/api/check", "application/json", strings.NewReader(`{"username":"ghost"}`))
	if status != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", status)
	}
}

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getTestConfig(t)
	config.TenantID = ""

	status, _ := send(t, config, http.MethodGet, "/api/dashboard", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", status)
	}
}
