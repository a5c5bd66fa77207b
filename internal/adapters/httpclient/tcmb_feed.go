package httpclient

import (
	"context"
	"encoding/xml"
	"fmt"
	"fxquotes/internal/domain"
	"fxquotes/internal/platform/metrics"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// TCMBFeedClient downloads the central bank's one-document-per-day rate feed.
type TCMBFeedClient struct {
	http    *http.Client
	baseURL string
	metrics *metrics.Metrics
}

type feedDocument struct {
	Currencies []feedCurrency `xml:"Currency"`
}

type feedCurrency struct {
	Code         string `xml:"CurrencyCode,attr"`
	Name         string `xml:"CurrencyName"`
	ForexBuying  string `xml:"ForexBuying"`
	ForexSelling string `xml:"ForexSelling"`
}

// FeedURL builds the document location for date: {base}/{YYYYMM}/{DDMMYYYY}.xml.
func FeedURL(baseURL string, date time.Time) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + date.Format("200601") + "/" + date.Format("02012006") + ".xml"
	return u.String(), nil
}

// Fetch returns the quotes published for date. An empty slice means the document
// carried no currencies. Any transport problem is reported as domain.ErrFetchFailed.
func (c *TCMBFeedClient) Fetch(ctx context.Context, date time.Time) ([]domain.Quote, error) {
	feedURL, err := FeedURL(c.baseURL, date)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	quotes, err := c.fetch(ctx, feedURL, date)
	c.metrics.FeedRequestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		c.metrics.FeedRequestsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if len(quotes) == 0 {
		c.metrics.FeedRequestsTotal.WithLabelValues("empty").Inc()
	} else {
		c.metrics.FeedRequestsTotal.WithLabelValues("ok").Inc()
	}
	return quotes, nil
}

func (c *TCMBFeedClient) fetch(ctx context.Context, feedURL string, date time.Time) ([]domain.Quote, error) {
	day := date.Format(time.DateOnly)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request for %s: %w", day, err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to execute request for %s: %w", domain.ErrFetchFailed, day, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status code %d for %s", domain.ErrFetchFailed, resp.StatusCode, day)
	}

	dec := xml.NewDecoder(resp.Body)
	dec.CharsetReader = charset.NewReaderLabel

	var doc feedDocument
	if err = dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode feed for %s: %w", domain.ErrFetchFailed, day, err)
	}

	quotes := make([]domain.Quote, 0, len(doc.Currencies))
	for _, cur := range doc.Currencies {
		code := strings.ToUpper(strings.TrimSpace(cur.Code))
		if code == "" {
			logrus.WithField("date", day).Warn("Skipping feed currency without code")
			continue
		}
		if !domain.IsCurrencyCode(code) {
			c.metrics.FeedDegradedFields.WithLabelValues("currency_code").Inc()
			logrus.WithFields(logrus.Fields{"date": day, "currency": code}).Warn("Skipping feed currency with malformed code")
			continue
		}
		quotes = append(quotes, domain.Quote{
			CurrencyCode: code,
			CurrencyName: c.currencyName(cur.Name, code, day),
			ForexBuying:  c.parseRate(cur.ForexBuying, "forex_buying", code, day),
			ForexSelling: c.parseRate(cur.ForexSelling, "forex_selling", code, day),
			Date:         date,
		})
	}
	return quotes, nil
}

// currencyName cuts names longer than the stored column so one entry cannot fail the day's insert.
func (c *TCMBFeedClient) currencyName(raw, code, day string) string {
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) <= domain.MaxCurrencyNameLen {
		return name
	}
	c.metrics.FeedDegradedFields.WithLabelValues("currency_name").Inc()
	logrus.WithFields(logrus.Fields{"date": day, "currency": code}).Warn("Feed currency name too long, truncating")
	return string([]rune(name)[:domain.MaxCurrencyNameLen])
}

// parseRate never fails: a missing or malformed value becomes zero so that one bad
// field does not drop the rest of the day.
func (c *TCMBFeedClient) parseRate(raw, field, code, day string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if field == "forex_buying" {
			c.degraded(field, code, day, raw)
		}
		return decimal.Zero
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		c.degraded(field, code, day, raw)
		return decimal.Zero
	}
	return v.Round(domain.RatePrecision)
}

func (c *TCMBFeedClient) degraded(field, code, day, raw string) {
	c.metrics.FeedDegradedFields.WithLabelValues(field).Inc()
	logrus.WithFields(logrus.Fields{"date": day, "currency": code, "field": field, "value": raw}).Warn("Feed field is not a number, defaulting to zero")
}

func NewTCMBFeedClient(httpClient *http.Client, baseURL string, m *metrics.Metrics) *TCMBFeedClient {
	return &TCMBFeedClient{http: httpClient, baseURL: baseURL, metrics: m}
}
