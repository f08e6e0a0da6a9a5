package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// Extractor turns a local PDF into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// LocalPDFExtractor reads the text layer of a PDF without any network calls.
// Pages whose content cannot be decoded are logged and skipped.
type LocalPDFExtractor struct {
	Logger *slog.Logger
}

func (e LocalPDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Skipping unreadable PDF page", "path", path, "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no text extracted from %s", path)
	}
	return sb.String(), nil
}

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// MistralOCRExtractor sends the PDF to the Mistral OCR API and returns the
// page markdown. Useful for scanned papers without a text layer.
type MistralOCRExtractor struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func NewMistralOCRExtractor(apiKey string) *MistralOCRExtractor {
	return &MistralOCRExtractor{
		APIKey:     apiKey,
		BaseURL:    "https://api.mistral.ai/v1/ocr",
		Model:      "mistral-ocr-latest",
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (m *MistralOCRExtractor) Extract(ctx context.Context, path string) (string, error) {
	if m.APIKey == "" {
		return "", fmt.Errorf("MISTRAL_API_KEY is not set")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}

	reqBody := map[string]interface{}{
		"model": m.Model,
		"document": map[string]string{
			"type":         "document_url",
			"document_url": "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
		"include_image_base64": false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var ocrResponse OcrResponse
	if err := json.Unmarshal(body, &ocrResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var pages []string
	for _, page := range ocrResponse.Pages {
		if md := strings.TrimSpace(page.Markdown); md != "" {
			pages = append(pages, md)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("no text extracted from %s", path)
	}
	return strings.Join(pages, "\n\n"), nil
}
