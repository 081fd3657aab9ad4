package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/opensource-finance/fakeguard/internal/api"
	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/rules"
)

// Client talks to a running fakeguard server.
type Client struct {
	BaseURL  string
	TenantID string
	HTTP     *http.Client
}

// NewClient returns a client with a request timeout.
func NewClient(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		TenantID: tenantID,
		HTTP:     &http.Client{Timeout: 60 * time.Second},
	}
}

// CheckHealth verifies the server answers /health.
func (c *Client) CheckHealth() error {
	resp, err := c.HTTP.Get(c.BaseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Upload sends data as a multipart file named filename.
func (c *Client) Upload(filename string, data []byte) (*api.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out api.UploadResponse
	if err := c.do(http.MethodPost, "/api/upload", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze runs a batch analysis over the last upload.
func (c *Client) Analyze() (*api.AnalyzeResponse, error) {
	var out api.AnalyzeResponse
	if err := c.do(http.MethodPost, "/api/analyze", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InstallSampleRules saves the sample custom rules and reloads the engine.
func (c *Client) InstallSampleRules() (int, error) {
	samples := rules.SampleRules()
	for _, rule := range samples {
		req := api.CreateRuleRequest{
			ID:          rule.ID,
			Name:        rule.Name,
			Description: rule.Description,
			Expression:  rule.Expression,
			Bands:       rule.Bands,
			Weight:      &rule.Weight,
			Enabled:     rule.Enabled,
		}
		payload, err := json.Marshal(req)
		if err != nil {
			return 0, err
		}
		if err := c.do(http.MethodPost, "/api/rules", "application/json", bytes.NewReader(payload), nil); err != nil {
			return 0, fmt.Errorf("create rule %s: %w", rule.ID, err)
		}
	}

	if err := c.do(http.MethodPost, "/api/rules/reload", "", nil, nil); err != nil {
		return 0, fmt.Errorf("reload rules: %w", err)
	}
	return len(samples), nil
}

func (c *Client) do(method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(api.TenantIDHeader, c.TenantID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Metrics tracks detection results against the labels.
type Metrics struct {
	TruePositives  int // fake flagged
	FalsePositives int // genuine flagged
	TrueNegatives  int // genuine not flagged
	FalseNegatives int // fake missed

	ByRisk map[domain.RiskLevel]int
}

// Evaluate builds the confusion matrix for one analysis.
func Evaluate(labels map[string]bool, flagged []domain.AccountAnalysis) *Metrics {
	m := &Metrics{ByRisk: make(map[domain.RiskLevel]int)}

	hit := make(map[string]bool, len(flagged))
	for _, a := range flagged {
		hit[a.Username] = true
		m.ByRisk[a.RiskLevel]++
	}

	for username, fake := range labels {
		switch {
		case fake && hit[username]:
			m.TruePositives++
		case fake:
			m.FalseNegatives++
		case hit[username]:
			m.FalsePositives++
		default:
			m.TrueNegatives++
		}
	}
	return m
}

// Precision is the share of flagged accounts that are fake.
func (m *Metrics) Precision() float64 {
	if m.TruePositives+m.FalsePositives == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
}

// Recall is the share of fakes that were flagged.
func (m *Metrics) Recall() float64 {
	if m.TruePositives+m.FalseNegatives == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m *Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func printResults(m *Metrics, analyze time.Duration) {
	fmt.Println("\n=================== BENCHMARK RESULTS ===================")

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                    Predicted")
	fmt.Println("                 FLAGGED     CLEAN")
	fmt.Printf("   Actual fake   %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("       genuine   %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", m.Precision())
	fmt.Printf("   Recall:     %.4f\n", m.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", m.F1())

	fmt.Printf("\nFLAGGED BY RISK\n")
	for _, level := range []domain.RiskLevel{domain.RiskHigh, domain.RiskMedium} {
		fmt.Printf("   %-7s %d\n", level, m.ByRisk[level])
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Analyze round trip: %v\n", analyze.Round(time.Millisecond))
	fmt.Println()
}
