package icyveins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// LoadFile reads a class document from a local JSON dump.
func LoadFile(path string) (*Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read talent data: %w", err)
	}
	var class Class
	if err := json.Unmarshal(data, &class); err != nil {
		return nil, fmt.Errorf("parse talent data: %w", err)
	}
	return &class, nil
}

// Fetcher pulls the class document straight from the talent calculator page.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with a sane request timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads the calculator page and extracts the embedded talent JSON.
// The calculator inlines its data as a JSON script tag; we locate it with
// goquery rather than regexing the whole page.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Class, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "talentbeam/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch talent page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch talent page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse talent page: %w", err)
	}

	var raw string
	doc.Find(`script[type="application/json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.Contains(text, `"specNodes"`) {
			raw = text
			return false
		}
		return true
	})
	if raw == "" {
		return nil, fmt.Errorf("no embedded talent data found at %s", url)
	}

	var class Class
	if err := json.Unmarshal([]byte(raw), &class); err != nil {
		return nil, fmt.Errorf("parse embedded talent data: %w", err)
	}
	return &class, nil
}
