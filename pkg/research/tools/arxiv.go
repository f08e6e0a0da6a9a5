package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultArxivURL is the public arXiv query endpoint.
const DefaultArxivURL = "http://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []ArxivAuthor `xml:"author"`
	Link      []ArxivLink   `xml:"link"`
}

// ArxivAuthor struct to hold arXiv author data
type ArxivAuthor struct {
	Name string `xml:"name"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Paper is an arXiv search hit reduced to what ingestion needs.
type Paper struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Published string   `json:"published"`
	Authors   []string `json:"authors"`
	PDFURL    string   `json:"pdf_url"`
}

// ArxivClient searches the arXiv Atom API.
type ArxivClient struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	Logger     *slog.Logger
}

// NewArxivClient returns a client for baseURL, falling back to DefaultArxivURL.
func NewArxivClient(baseURL, userAgent string) *ArxivClient {
	if baseURL == "" {
		baseURL = DefaultArxivURL
	}
	return &ArxivClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		UserAgent:  userAgent,
		Logger:     slog.Default(),
	}
}

// Search runs an `all:` query and returns at most maxResults papers.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}
	if maxResults <= 0 {
		maxResults = 1
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("start", "0")
	params.Add("max_results", strconv.Itoa(maxResults))

	apiURL := c.BaseURL + "?" + params.Encode()
	c.Logger.Info("Searching arXiv", "query", query, "max_results", maxResults, "url", apiURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create arXiv request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.Logger.Error("API returned non-200 status code", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, string(body))
	}

	papers, err := ParseArxivFeed(body)
	if err != nil {
		return nil, err
	}

	c.Logger.Info("arXiv search finished", "query", query, "count", len(papers))
	return papers, nil
}

// ParseArxivFeed decodes an Atom response into papers.
func ParseArxivFeed(body []byte) ([]Paper, error) {
	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		p := Paper{
			ID:        strings.TrimSpace(entry.ID),
			Title:     collapseSpace(entry.Title),
			Summary:   collapseSpace(entry.Summary),
			Published: strings.TrimSpace(entry.Published),
			PDFURL:    pdfLink(entry),
		}
		for _, a := range entry.Authors {
			if name := collapseSpace(a.Name); name != "" {
				p.Authors = append(p.Authors, name)
			}
		}
		if p.PDFURL == "" {
			continue
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// pdfLink prefers the explicit PDF link and otherwise derives it from the
// abstract URL (/abs/ -> /pdf/).
func pdfLink(entry ArxivEntry) string {
	for _, link := range entry.Link {
		if link.Type == "application/pdf" || link.Title == "pdf" {
			return strings.TrimSpace(link.Href)
		}
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return ""
	}
	return strings.Replace(id, "/abs/", "/pdf/", 1)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
