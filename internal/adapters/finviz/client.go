// Package finviz implements the screener port by scraping the Finviz Elite
// screener grid. All scraping logic is contained here so it can be swapped
// for an API-based implementation later.
package finviz

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"finvizTraderBot/internal/ports"
)

var (
	// symbolPattern rejects stray "-" rows and anything that does not look
	// like a real ticker.
	symbolPattern = regexp.MustCompile(`^[A-Z](?:[A-Z0-9]{0,4})(?:[.-][A-Z0-9]{1,2})?$`)
	anchorPattern = regexp.MustCompile(`(?i)quote\.ashx\?t=`)
)

// priceColumn is the Price cell index in the v=111 screener grid.
const priceColumn = 8

// Client fetches and parses the Finviz screener page.
type Client struct {
	url        string
	cookie     string
	logger     ports.Logger
	httpClient *http.Client
}

// Config holds configuration for the Finviz client.
type Config struct {
	URL    string
	Cookie string // optional Elite session cookie
	Logger ports.Logger
}

// New creates a Finviz screener client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for the Finviz client")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("screener URL is required")
	}
	return &Client{
		url:        cfg.URL,
		cookie:     cfg.Cookie,
		logger:     cfg.Logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Poll fetches the screener page and returns the parsed candidate rows.
// Network failures wrap ports.ErrTransient so the orchestrator retries on
// the next tick instead of halting.
func (c *Client) Poll(ctx context.Context) ([]ports.ScreenerResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build screener request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; finviz-trader/0.1)")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: screener fetch: %v", ports.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: screener returned status %d", ports.ErrTransient, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: screener parse: %v", ports.ErrTransient, err)
	}

	results := parseDocument(doc)
	if len(results) == 0 {
		c.logger.Warn(ctx, "Parsed 0 symbols from screener HTML")
	} else {
		c.logger.Debug(ctx, "Parsed symbols from screener", map[string]interface{}{"count": len(results)})
	}
	return results, nil
}

// ParseHTML parses screener HTML directly; used by tests to inject fixtures.
func ParseHTML(html string) ([]ports.ScreenerResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse screener HTML: %w", err)
	}
	return parseDocument(doc), nil
}

func parseDocument(doc *goquery.Document) []ports.ScreenerResult {
	found := make(map[string]float64)

	// Primary: pull only the ticker cell anchors (tab-link) from the grid.
	doc.Find("table.screener_table tr.styled-row, table.screener-view-table tr.styled-row").Each(func(_ int, row *goquery.Selection) {
		symbol := strings.ToUpper(strings.TrimSpace(row.Find("a.tab-link").First().Text()))
		if !symbolPattern.MatchString(symbol) {
			return
		}
		found[symbol] = parsePriceCell(row)
	})

	// Fallback for HTML variants: anchors inside screener tables, still
	// requiring a valid-looking ticker.
	if len(found) == 0 {
		doc.Find("table.screener-view-table a, table.screener-table a").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !anchorPattern.MatchString(href) {
				return
			}
			symbol := strings.ToUpper(strings.TrimSpace(a.Text()))
			if symbolPattern.MatchString(symbol) {
				found[symbol] = 0
			}
		})
	}

	symbols := make([]string, 0, len(found))
	for sym := range found {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	results := make([]ports.ScreenerResult, 0, len(symbols))
	for _, sym := range symbols {
		results = append(results, ports.ScreenerResult{Symbol: sym, Price: found[sym]})
	}
	return results
}

// parsePriceCell reads the screener-listed price from the row, returning 0
// when the column is absent or not numeric.
func parsePriceCell(row *goquery.Selection) float64 {
	cell := row.Find("td").Eq(priceColumn)
	if cell.Length() == 0 {
		return 0
	}
	text := strings.ReplaceAll(strings.TrimSpace(cell.Text()), ",", "")
	price, err := strconv.ParseFloat(text, 64)
	if err != nil || price <= 0 {
		return 0
	}
	return price
}
