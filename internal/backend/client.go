package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/scribeforge/scribe/internal/retry"
	"github.com/scribeforge/scribe/internal/subproc"
	"github.com/scribeforge/scribe/internal/telemetry"
)

// Client is the resilient call path: one provider call = subprocess spawn,
// failure classification, retry on transients, and one telemetry entry.
type Client struct {
	backend  Backend
	invoker  *subproc.Invoker
	retry    retry.Options
	recorder *telemetry.Recorder
	logger   *slog.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Recorder   *telemetry.Recorder
	Logger     *slog.Logger
}

// NewClient wires a backend to the subprocess invoker and retry policy.
func NewClient(b Backend, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		backend: b,
		invoker: subproc.New(opts.Timeout),
		retry: retry.Options{
			MaxRetries:  opts.MaxRetries,
			BaseDelay:   opts.BaseDelay,
			MaxDelay:    opts.MaxDelay,
			Multiplier:  2,
			IsRetryable: IsRetryable,
		},
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// Backend returns the provider this client talks to.
func (c *Client) Backend() Backend { return c.backend }

// Call runs one provider call to completion, retrying rate limits and
// timeouts. Parse errors and generic nonzero exits surface immediately.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	ropts := c.retry
	ropts.OnRetry = func(attempt int, err error) {
		c.logger.Warn("retrying provider call",
			"backend", c.backend.Name(),
			"attempt", attempt,
			"error", err)
	}

	var lastExit int
	resp, retries, err := retry.Do(ctx, ropts, func(ctx context.Context) (*Response, error) {
		res := c.invoker.Run(ctx, c.backend.Command(), c.backend.BuildArgs(req), c.backend.StdinPayload(req))
		lastExit = res.ExitCode
		if !res.Success() {
			return nil, classify(c.backend.Name(), res)
		}
		return c.backend.ParseResponse(res.Stdout)
	})

	entry := telemetry.Entry{
		Prompt:  req.UserPrompt,
		Model:   req.Model,
		Backend: c.backend.Name(),
		Latency: time.Since(start),
		Retries: retries,
	}
	if err != nil {
		entry.Error = err.Error()
		entry.ExitCode = lastExit
	} else {
		entry.Response = resp.Content
		entry.TokensIn = resp.TokensIn
		entry.TokensOut = resp.TokensOut
		entry.TokensCacheRead = resp.TokensCacheRead
		entry.TokensCacheWrite = resp.TokensCacheWrite
		entry.CostUSD = resp.CostUSD
		if resp.Model != "" {
			entry.Model = resp.Model
		}
	}
	if c.recorder != nil {
		c.recorder.Record(entry)
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}
