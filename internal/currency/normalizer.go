package currency

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/expensebook/internal/metrics"
	"github.com/hitoshi/expensebook/internal/model"
)

// DefaultTimeout は為替レート呼び出しの既定のタイムアウト。
const DefaultTimeout = 5 * time.Second

// normalizedPlaces は換算結果の小数点以下の桁数。
const normalizedPlaces = 2

// RateSource は外部の為替換算サービス。
type RateSource interface {
	Convert(ctx context.Context, from, to model.Currency, amount decimal.Decimal) (decimal.Decimal, error)
}

// Normalizer は金額を基準通貨（ILS）に換算する。
// キャッシュや再試行は行わず、失敗時は呼び出し元が書き込みを中止する。
type Normalizer struct {
	source  RateSource
	timeout time.Duration
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewNormalizer はNormalizerを生成する。timeoutが正でない場合はDefaultTimeoutを使用する。
func NewNormalizer(source RateSource, timeout time.Duration, mc metrics.MetricsCollector, logger *slog.Logger) *Normalizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Normalizer{source: source, timeout: timeout, metrics: mc, logger: logger}
}

// Normalize はamountを基準通貨の金額に換算する。
// fromが基準通貨の場合は外部呼び出しを行わずにそのまま返す。
// 外部呼び出しの失敗・タイムアウトはCurrencyConversionUnavailableを返す。
func (n *Normalizer) Normalize(ctx context.Context, amount decimal.Decimal, from model.Currency) (decimal.Decimal, error) {
	if from == model.BaseCurrency {
		n.metrics.RecordConversion(metrics.OutcomeSkipped)
		return amount, nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	converted, err := n.source.Convert(ctx, from, model.BaseCurrency, amount)
	n.metrics.RecordConversionLatency(time.Since(start))
	if err != nil {
		n.metrics.RecordConversion(metrics.OutcomeFailure)
		n.logger.Error("currency conversion failed",
			slog.String("from", string(from)),
			slog.String("to", string(model.BaseCurrency)),
			slog.String("error", err.Error()),
		)
		return decimal.Zero, model.NewConversionUnavailableError(from, model.BaseCurrency)
	}

	n.metrics.RecordConversion(metrics.OutcomeSuccess)
	return converted.Round(normalizedPlaces), nil
}
