package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	edgarTickersURL     = "https://www.sec.gov/files/company_tickers.json"
	edgarSubmissionsURL = "https://data.sec.gov/submissions/CIK%010d.json"
)

// EdgarClient fetches company profiles from the SEC EDGAR public API.
// EDGAR requires a contact identity in the User-Agent header.
type EdgarClient struct {
	identity       string
	tickersURL     string
	submissionsURL string
	httpClient     *http.Client
}

// NewEdgarClient creates a new EDGAR client.
func NewEdgarClient(identity string) *EdgarClient {
	return &EdgarClient{
		identity:       identity,
		tickersURL:     edgarTickersURL,
		submissionsURL: edgarSubmissionsURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// CompanyProfile is the EDGAR view of a registrant.
type CompanyProfile struct {
	CompanyName   string   `json:"company_name"`
	Ticker        string   `json:"ticker"`
	CIK           string   `json:"cik"`
	Industry      string   `json:"industry"`
	Location      string   `json:"location"`
	SICCode       string   `json:"sic_code"`
	FiscalYearEnd string   `json:"fiscal_year_end"`
	Exchanges     []string `json:"exchanges"`
}

type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

type submissionsResponse struct {
	CIK            string   `json:"cik"`
	Name           string   `json:"name"`
	SIC            string   `json:"sic"`
	SICDescription string   `json:"sicDescription"`
	FiscalYearEnd  string   `json:"fiscalYearEnd"`
	Tickers        []string `json:"tickers"`
	Exchanges      []string `json:"exchanges"`
	Addresses      struct {
		Business struct {
			City              string `json:"city"`
			StateOrCountryDes string `json:"stateOrCountryDescription"`
		} `json:"business"`
	} `json:"addresses"`
}

// Profile resolves a ticker to its CIK and fetches the registrant's profile.
func (c *EdgarClient) Profile(ctx context.Context, ticker string) (*CompanyProfile, error) {
	cik, err := c.lookupCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var sub submissionsResponse
	url := fmt.Sprintf(c.submissionsURL, cik)
	if err := c.getJSON(ctx, url, &sub); err != nil {
		return nil, fmt.Errorf("fetching submissions for %s: %w", ticker, err)
	}

	location := "N/A"
	if sub.Addresses.Business.City != "" {
		location = sub.Addresses.Business.City + ", " + sub.Addresses.Business.StateOrCountryDes
	}

	return &CompanyProfile{
		CompanyName:   sub.Name,
		Ticker:        strings.ToUpper(ticker),
		CIK:           fmt.Sprintf("%010d", cik),
		Industry:      sub.SICDescription,
		Location:      location,
		SICCode:       sub.SIC,
		FiscalYearEnd: sub.FiscalYearEnd,
		Exchanges:     sub.Exchanges,
	}, nil
}

// lookupCIK resolves a ticker symbol via the public ticker index.
func (c *EdgarClient) lookupCIK(ctx context.Context, ticker string) (int64, error) {
	var index map[string]tickerEntry
	if err := c.getJSON(ctx, c.tickersURL, &index); err != nil {
		return 0, fmt.Errorf("fetching ticker index: %w", err)
	}

	want := strings.ToUpper(ticker)
	for _, entry := range index {
		if strings.ToUpper(entry.Ticker) == want {
			return entry.CIK, nil
		}
	}
	return 0, fmt.Errorf("unknown ticker %q", ticker)
}

func (c *EdgarClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.identity)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("EDGAR error %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
