// Package relay fetches rendered pages through a FlareSolverr-compatible
// bypass endpoint, falling back to direct requests when none is configured.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hltvharvest/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/relay")

// Kind selects the timeout/retry policy for a fetch.
type Kind int

const (
	KindListing Kind = iota
	KindDetail
)

func (k Kind) String() string {
	switch k {
	case KindListing:
		return "listing"
	case KindDetail:
		return "detail"
	}
	return "unknown"
}

// TransientError marks a fetch that failed after exhausting its retry
// budget but may succeed on a later run.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch failure for %s: %s", e.URL, e.Err.Error())
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a target that is gone for good. callers must not
// schedule it for retry.
type PermanentError struct {
	URL    string
	Reason string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent fetch failure for %s: %s", e.URL, e.Reason)
}

func IsPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}

type Options struct {
	// FlareSolverr-compatible endpoint, e.g. http://localhost:8191/v1.
	// when empty, pages are fetched directly through a cloudflare
	// bypass transport instead.
	Endpoint       string
	MaxRetries     uint64
	InitialBackoff time.Duration
	ListingTimeout time.Duration
	DetailTimeout  time.Duration
}

const DefaultEndpoint = "http://localhost:8191/v1"

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = time.Second * 2
	}
	if o.ListingTimeout == 0 {
		o.ListingTimeout = time.Second * 60
	}
	if o.DetailTimeout == 0 {
		o.DetailTimeout = time.Second * 90
	}
	return o
}

type Client struct {
	http *resty.Client
	opts Options
}

func NewClient(opts Options) *Client {
	opts = opts.withDefaults()

	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("accept-language", "en-US,en;q=0.9")

	telemetry.InstrumentResty(client, "relay/http")

	return &Client{http: client, opts: opts}
}

func (c *Client) timeoutFor(kind Kind) time.Duration {
	if kind == KindDetail {
		return c.opts.DetailTimeout
	}
	return c.opts.ListingTimeout
}

type solverRequest struct {
	Cmd        string `json:"cmd"`
	Url        string `json:"url"`
	MaxTimeout int64  `json:"maxTimeout"`
}

type solverResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		Status   int    `json:"status"`
		Response string `json:"response"`
	} `json:"solution"`
}

// Fetch returns the rendered html of the target page. transient failures
// are retried internally with exponential backoff and jitter; the caller
// only ever sees a *TransientError once the budget is exhausted, or a
// *PermanentError which must never be retried. the ledger bookkeeping
// for either belongs to the caller.
func (c *Client) Fetch(ctx context.Context, pageUrl string, kind Kind) (string, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("url", pageUrl),
		attribute.String("kind", kind.String()),
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialBackoff
	bo.MaxElapsedTime = 0

	html, err := backoff.RetryWithData(func() (string, error) {
		return c.fetchOnce(ctx, pageUrl, kind)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, c.opts.MaxRetries), ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if IsPermanent(err) {
			return "", err
		}
		var terr *TransientError
		if errors.As(err, &terr) {
			return "", terr
		}
		return "", &TransientError{URL: pageUrl, Err: err}
	}

	return html, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageUrl string, kind Kind) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeoutFor(kind)+time.Second*10)
	defer cancel()

	if c.opts.Endpoint == "" {
		return c.fetchDirect(ctx, pageUrl)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(solverRequest{
			Cmd:        "request.get",
			Url:        pageUrl,
			MaxTimeout: c.timeoutFor(kind).Milliseconds(),
		}).
		Post(c.opts.Endpoint)
	if err != nil {
		return "", &TransientError{URL: pageUrl, Err: err}
	}
	if res.StatusCode() != 200 {
		return "", &TransientError{
			URL: pageUrl,
			Err: fmt.Errorf("relay returned status %d", res.StatusCode()),
		}
	}

	var solved solverResponse
	err = json.Unmarshal(res.Body(), &solved)
	if err != nil {
		return "", &TransientError{
			URL: pageUrl,
			Err: fmt.Errorf("relay returned unparseable body: %w", err),
		}
	}

	if solved.Status != "ok" {
		return "", &TransientError{
			URL: pageUrl,
			Err: fmt.Errorf("relay returned non-ok status: %s", solved.Message),
		}
	}
	if gone(solved.Solution.Status) {
		return "", backoff.Permanent(&PermanentError{
			URL:    pageUrl,
			Reason: fmt.Sprintf("target returned status %d", solved.Solution.Status),
		})
	}
	if solved.Solution.Response == "" {
		// a solved challenge with no body means the relay gave up mid-render
		return "", &TransientError{
			URL: pageUrl,
			Err: errors.New("relay returned empty response"),
		}
	}

	return solved.Solution.Response, nil
}

func (c *Client) fetchDirect(ctx context.Context, pageUrl string) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("referer", "https://www.hltv.org/").
		Get(pageUrl)
	if err != nil {
		return "", &TransientError{URL: pageUrl, Err: err}
	}

	if gone(res.StatusCode()) {
		return "", backoff.Permanent(&PermanentError{
			URL:    pageUrl,
			Reason: fmt.Sprintf("target returned status %d", res.StatusCode()),
		})
	}
	if res.StatusCode() != 200 {
		return "", &TransientError{
			URL: pageUrl,
			Err: fmt.Errorf("target returned status %d", res.StatusCode()),
		}
	}

	return res.String(), nil
}

func gone(status int) bool {
	return status == 404 || status == 410
}
