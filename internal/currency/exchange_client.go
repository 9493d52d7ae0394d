// Package currency は取引金額の基準通貨への換算を提供する。
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

	"github.com/shopspring/decimal"

	"github.com/hitoshi/expensebook/internal/model"
)

const (
	// DefaultEndpoint はexchangerate-api v6のベースURL。
	DefaultEndpoint = "https://v6.exchangerate-api.com/v6"
	// maxResponseSize はレスポンスボディの読み取り上限（1 MiB）。
	maxResponseSize = 1 << 20
)

// pairResponse はpairエンドポイントのレスポンス。
type pairResponse struct {
	Result           string          `json:"result"`
	ErrorType        string          `json:"error-type"`
	ConversionResult decimal.Decimal `json:"conversion_result"`
}

// ExchangeRateClient はexchangerate-apiのpairエンドポイントを呼び出すRateSource実装。
type ExchangeRateClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
}

// NewExchangeRateClient はExchangeRateClientを生成する。
// endpointが空の場合はDefaultEndpointを使用する。
func NewExchangeRateClient(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey string) *ExchangeRateClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &ExchangeRateClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
	}
}

// Convert はamountをfromからtoへ換算した金額を返す。
// リクエストの期限はctxで指定する。
func (c *ExchangeRateClient) Convert(ctx context.Context, from, to model.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	reqURL := fmt.Sprintf("%s/%s/pair/%s/%s/%s",
		c.endpoint,
		url.PathEscape(c.apiKey),
		url.PathEscape(string(from)),
		url.PathEscape(string(to)),
		amount.String(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create exchange rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "expensebook/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("exchange rate request failed",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.String("error", err.Error()),
		)
		return decimal.Zero, fmt.Errorf("exchange rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("exchange rate API returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("from", string(from)),
		)
		return decimal.Zero, fmt.Errorf("exchange rate API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read exchange rate response: %w", err)
	}

	var result pairResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse exchange rate response: %w", err)
	}
	if result.Result != "success" {
		c.logger.Warn("exchange rate API reported failure",
			slog.String("error_type", result.ErrorType),
			slog.String("from", string(from)),
		)
		return decimal.Zero, fmt.Errorf("exchange rate API reported %q: %s", result.Result, result.ErrorType)
	}
	if !result.ConversionResult.IsPositive() {
		return decimal.Zero, fmt.Errorf("exchange rate API returned non-positive conversion result %s", result.ConversionResult)
	}

	return result.ConversionResult, nil
}

// compile-time interface check
var _ RateSource = (*ExchangeRateClient)(nil)
