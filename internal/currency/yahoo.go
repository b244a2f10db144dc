package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/debtbot/internal/domain"
	apperrors "github.com/Proton-105/debtbot/internal/errors"
)

const (
	yahooAPIName        = "yahoo-finance"
	defaultLookbackDays = 10
)

// YahooProvider reads daily closes from the Yahoo Finance chart API.
type YahooProvider struct {
	baseURL      string
	lookbackDays int
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewYahooProvider builds a provider for baseURL, e.g. https://query1.finance.yahoo.com.
func NewYahooProvider(baseURL string, timeout time.Duration, lookbackDays int, logger *slog.Logger) *YahooProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &YahooProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		lookbackDays: lookbackDays,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Rate returns the last close on or before day within the lookback window.
// Quotes against RUB are fetched for the inverse pair and inverted.
func (p *YahooProvider) Rate(ctx context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	invert := from == domain.RUB
	if invert {
		from, to = to, from
	}

	rate, err := p.lastClose(ctx, from, to, Day(day))
	if err != nil {
		return decimal.Zero, err
	}

	if invert {
		rate = decimal.NewFromInt(1).DivRound(rate, 16)
	}

	return rate, nil
}

func (p *YahooProvider) lastClose(ctx context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error) {
	end := day.Add(24 * time.Hour)
	start := day.AddDate(0, 0, -p.lookbackDays)

	query := url.Values{}
	query.Set("period1", fmt.Sprintf("%d", start.Unix()))
	query.Set("period2", fmt.Sprintf("%d", end.Unix()))
	query.Set("interval", "1d")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s%s=X?%s", p.baseURL, from, to, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, apperrors.NewExternalAPIError(yahooAPIName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, apperrors.NewExternalAPIError(yahooAPIName, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return decimal.Zero, apperrors.NewExternalAPIError(yahooAPIName, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, apperrors.NewConversionError(fmt.Errorf("%s%s: status %d", from, to, resp.StatusCode))
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return decimal.Zero, apperrors.NewExternalAPIError(yahooAPIName, fmt.Errorf("decode response: %w", err))
	}
	if chart.Chart.Error != nil {
		return decimal.Zero, apperrors.NewConversionError(fmt.Errorf("%s%s: %s", from, to, chart.Chart.Error.Description))
	}

	rate, ok := pickClose(chart, end)
	if !ok {
		p.logger.Warn("no quotes in lookback window",
			slog.String("pair", string(from)+string(to)),
			slog.Time("day", day),
			slog.Int("lookback_days", p.lookbackDays),
		)
		return decimal.Zero, apperrors.NewConversionError(fmt.Errorf("%s%s on %s: %w", from, to, day.Format(time.DateOnly), ErrNoQuotes))
	}

	return rate, nil
}

// pickClose returns the latest positive close stamped before end.
func pickClose(chart chartResponse, end time.Time) (decimal.Decimal, bool) {
	if len(chart.Chart.Result) == 0 {
		return decimal.Zero, false
	}
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return decimal.Zero, false
	}
	closes := result.Indicators.Quote[0].Close

	for i := len(result.Timestamp) - 1; i >= 0; i-- {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		if result.Timestamp[i] >= end.Unix() {
			continue
		}
		return decimal.NewFromFloat(*closes[i]), true
	}

	return decimal.Zero, false
}
