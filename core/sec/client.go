package sec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
	"golang.org/x/time/rate"
)

var (
	ErrTickerNotFound = errors.New("ticker not found in SEC database")
	ErrNoFiling       = errors.New("no matching filing found")
)

const (
	DefaultBaseURL           = "https://www.sec.gov"
	DefaultDataURL           = "https://data.sec.gov"
	DefaultRequestsPerSecond = 10
)

// Client reads EDGAR. Every request carries the configured User-Agent
// and waits on a shared limiter, since SEC blocks clients above 10 req/s.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	baseURL   string
	dataURL   string
	cacheDir  string
	cache     TickerCache
	logger    *slog.Logger
}

func NewClient(config helper.SECConfiguration, cache TickerCache, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(config.UserAgent) == "" {
		return nil, helper.NewError("create sec client", fmt.Errorf("user agent is required"))
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.DataURL == "" {
		config.DataURL = DefaultDataURL
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if config.CacheDir == "" {
		config.CacheDir = filepath.Join(os.TempDir(), "filingqa")
	}
	if cache == nil {
		cache = NewMemoryTickerCache(0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:      &http.Client{Timeout: 60 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		userAgent: config.UserAgent,
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		dataURL:   strings.TrimRight(config.DataURL, "/"),
		cacheDir:  config.CacheDir,
		cache:     cache,
		logger:    logger,
	}, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("sec error (status %d) for %s", resp.StatusCode, url)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Tickers returns the ticker map, loading company_tickers.json on a cache miss.
func (c *Client) Tickers(ctx context.Context) (map[string]CompanyTicker, error) {
	tickers, ok, err := c.cache.Get(ctx)
	if err != nil {
		c.logger.Warn("Ticker cache read failed", slog.Any("error", err))
	} else if ok {
		return tickers, nil
	}

	var raw map[string]CompanyTicker
	err = c.getJSON(ctx, c.baseURL+"/files/company_tickers.json", &raw)
	if err != nil {
		return nil, helper.NewError("load company tickers", err)
	}

	tickers = make(map[string]CompanyTicker, len(raw))
	for _, t := range raw {
		t.Ticker = model.NormalizeTicker(t.Ticker)
		tickers[t.Ticker] = t
	}

	if err := c.cache.Set(ctx, tickers); err != nil {
		c.logger.Warn("Ticker cache write failed", slog.Any("error", err))
	}
	c.logger.Debug("Loaded company tickers", slog.Int("count", len(tickers)))

	return tickers, nil
}

// LookupTicker resolves a ticker symbol to its SEC entry.
func (c *Client) LookupTicker(ctx context.Context, ticker string) (CompanyTicker, error) {
	tickers, err := c.Tickers(ctx)
	if err != nil {
		return CompanyTicker{}, err
	}

	t, ok := tickers[model.NormalizeTicker(ticker)]
	if !ok {
		return CompanyTicker{}, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
	}
	return t, nil
}

type submissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// LatestFiling returns the most recent filing of filingType for ticker.
// The returned filing is not persisted.
func (c *Client) LatestFiling(ctx context.Context, ticker string, filingType string) (*model.Filing, error) {
	company, err := c.LookupTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var subs submissions
	err = c.getJSON(ctx, fmt.Sprintf("%s/submissions/CIK%010d.json", c.dataURL, company.CIK), &subs)
	if err != nil {
		return nil, helper.NewError("load submissions", err)
	}

	recent := subs.Filings.Recent
	for i, form := range recent.Form {
		if form != filingType || i >= len(recent.AccessionNumber) || i >= len(recent.PrimaryDocument) {
			continue
		}

		reportDate, err := time.Parse(time.DateOnly, at(recent.ReportDate, i))
		if err != nil {
			c.logger.Warn("Skipping filing without report date", slog.String("accession_number", recent.AccessionNumber[i]))
			continue
		}

		name := subs.Name
		if name == "" {
			name = company.Title
		}

		filing := &model.Filing{
			Ticker:          company.Ticker,
			CompanyName:     name,
			CIK:             fmt.Sprintf("%010d", company.CIK),
			FilingType:      filingType,
			ReportDate:      reportDate,
			AccessionNumber: recent.AccessionNumber[i],
			DocumentURL: fmt.Sprintf(
				"%s/Archives/edgar/data/%d/%s/%s",
				c.baseURL,
				company.CIK,
				strings.ReplaceAll(recent.AccessionNumber[i], "-", ""),
				recent.PrimaryDocument[i],
			),
			Metadata: model.Metadata{"primary_document": recent.PrimaryDocument[i]},
		}
		if filingDate, err := time.Parse(time.DateOnly, at(recent.FilingDate, i)); err == nil {
			filing.FilingDate = &filingDate
		}
		return filing, nil
	}

	return nil, fmt.Errorf("%w: %s %s", ErrNoFiling, company.Ticker, filingType)
}

// Download stores the filing document in the cache directory, sets
// filing.ContentRef to its path and returns the path. An already
// downloaded document is not fetched again.
func (c *Client) Download(ctx context.Context, filing *model.Filing) (string, error) {
	if filing.DocumentURL == "" {
		return "", helper.NewError("download filing", fmt.Errorf("filing has no document url"))
	}

	name := fmt.Sprintf("%s_%s_%s.htm", filing.Ticker, filing.FilingType, filing.ReportDate.Format(time.DateOnly))
	path := filepath.Join(c.cacheDir, name)
	if _, err := os.Stat(path); err == nil {
		filing.ContentRef = path
		return path, nil
	}

	err := os.MkdirAll(c.cacheDir, 0o750)
	if err != nil {
		return "", helper.NewError("create cache dir", err)
	}

	resp, err := c.get(ctx, filing.DocumentURL)
	if err != nil {
		return "", helper.NewError("download filing", err)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(c.cacheDir, name+".*")
	if err != nil {
		return "", helper.NewError("create file", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", helper.NewError("write file", err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return "", helper.NewError("rename file", err)
	}

	c.logger.Info("Downloaded filing", slog.String("ticker", filing.Ticker), slog.String("path", path))

	filing.ContentRef = path
	return path, nil
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
