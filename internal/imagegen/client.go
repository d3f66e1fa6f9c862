// Package imagegen drives asynchronous text-to-image jobs for enriched
// papers: prompt construction, submission, and adaptive polling until the
// job completes, fails, or runs out its deadline.
//
// A deadline elapse is an outcome, not an error: the returned job carries
// status timed_out and the caller decides what to do with the paper.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
	"github.com/scholaris/paper-enrichment-service/internal/providers"
	"github.com/scholaris/paper-enrichment-service/internal/resilience"
)

// Defaults for the adaptive poll schedule and the job deadline.
const (
	DefaultPollInitialInterval = 2 * time.Second
	DefaultPollGrowthFactor    = 1.5
	DefaultPollMaxInterval     = 10 * time.Second
	DefaultJobTimeout          = 5 * time.Minute
)

// Config holds image job client configuration.
type Config struct {
	// PollInitialInterval is the wait after the first status poll. Default: 2s.
	PollInitialInterval time.Duration
	// PollGrowthFactor multiplies the interval after each poll. Default: 1.5.
	PollGrowthFactor float64
	// PollMaxInterval caps the interval growth. Default: 10s.
	PollMaxInterval time.Duration
	// JobTimeout bounds one job from submission to terminal status. Default: 5m.
	JobTimeout time.Duration

	// Width and Height select the output resolution. Zero values use the
	// provider's default size.
	Width  int
	Height int

	// NegativePrompt is sent with every submission. Optional.
	NegativePrompt string

	// RetryPolicy governs individual submit/poll/resolve calls. Zero value
	// means the default policy.
	RetryPolicy resilience.Policy
}

func (c *Config) applyDefaults() {
	if c.PollInitialInterval == 0 {
		c.PollInitialInterval = DefaultPollInitialInterval
	}
	if c.PollGrowthFactor <= 1 {
		c.PollGrowthFactor = DefaultPollGrowthFactor
	}
	if c.PollMaxInterval == 0 {
		c.PollMaxInterval = DefaultPollMaxInterval
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.RetryPolicy.MaxAttempts == 0 {
		c.RetryPolicy = resilience.DefaultPolicy()
		// Concurrent jobs share one provider; spread their retries out.
		c.RetryPolicy.Jitter = true
	}
}

// Client runs image generation jobs against an ImageJobProvider.
type Client struct {
	provider providers.ImageJobProvider
	config   Config
	logger   zerolog.Logger
}

// New creates an image job client.
func New(provider providers.ImageJobProvider, cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		provider: provider,
		config:   cfg,
		logger:   logger.With().Str("component", "imagegen").Logger(),
	}
}

// Enabled reports whether the underlying provider is configured.
func (c *Client) Enabled() bool {
	return c.provider.IsEnabled()
}

// Submit posts a generation request through the retry envelope and returns
// the provider job ID. A permanent rejection or an exhausted retry budget
// surfaces as an error.
func (c *Client) Submit(ctx context.Context, prompt string, width, height int) (string, error) {
	var jobID string
	err := resilience.Do(ctx, c.config.RetryPolicy, c.logger, "submit_image_job", func(ctx context.Context) error {
		var submitErr error
		jobID, submitErr = c.provider.SubmitJob(ctx, providers.SubmitRequest{
			Prompt:         prompt,
			NegativePrompt: c.config.NegativePrompt,
			Width:          width,
			Height:         height,
		})
		return submitErr
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// AwaitCompletion polls the job on an adaptive interval until its status is
// terminal or the timeout elapses. A zero timeout uses the configured default.
//
// Poll failures never abort the job: each poll call carries its own retry
// budget, and even an exhausted budget only records the error and waits for
// the next interval. The only exits are a terminal status and the deadline.
func (c *Client) AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) domain.ImageJob {
	if timeout <= 0 {
		timeout = c.config.JobTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	job := domain.ImageJob{
		ProviderJobID: jobID,
		Status:        domain.ImageJobStatusPending,
	}
	interval := c.config.PollInitialInterval

	for {
		snapshot, err := c.poll(ctx, jobID)
		job.Attempts++

		if err != nil {
			if ctx.Err() != nil {
				job.Status = domain.ImageJobStatusTimedOut
				job.LastError = err
				return job
			}
			job.LastError = err
			c.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Int("attempts", job.Attempts).
				Msg("job poll failed, waiting for next interval")
		} else {
			job.Status = snapshot.Status
			job.Progress = snapshot.Progress

			switch snapshot.Status {
			case domain.ImageJobStatusSucceeded:
				urls, resolveErr := c.resolve(ctx, snapshot.AssetIDs)
				if resolveErr != nil {
					job.Status = domain.ImageJobStatusFailed
					job.LastError = resolveErr
					return job
				}
				job.ResultURLs = urls
				return job
			case domain.ImageJobStatusFailed:
				job.LastError = providerFailure(snapshot.Error)
				return job
			}
		}

		if !waitBeforeNextPoll(ctx, interval) {
			job.Status = domain.ImageJobStatusTimedOut
			job.LastError = ctx.Err()
			return job
		}
		interval = c.nextInterval(interval)
	}
}

// Generate composes prompt build, submit, and await for one paper. The
// returned job always carries the paper's batch index.
func (c *Client) Generate(ctx context.Context, paper domain.EnrichedPaper, index int) domain.ImageJob {
	prompt := BuildPrompt(paper)

	jobID, err := c.Submit(ctx, prompt, c.config.Width, c.config.Height)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Int("paper_index", index).
			Msg("image job submission failed")
		return domain.ImageJob{
			PaperIndex: index,
			Status:     domain.ImageJobStatusFailed,
			LastError:  err,
		}
	}

	job := c.AwaitCompletion(ctx, jobID, c.config.JobTimeout)
	job.PaperIndex = index
	return job
}

func (c *Client) poll(ctx context.Context, jobID string) (*providers.JobPoll, error) {
	var snapshot *providers.JobPoll
	err := resilience.Do(ctx, c.config.RetryPolicy, c.logger, "poll_image_job", func(ctx context.Context) error {
		var pollErr error
		snapshot, pollErr = c.provider.PollJob(ctx, jobID)
		return pollErr
	})
	return snapshot, err
}

func (c *Client) resolve(ctx context.Context, assetIDs []string) ([]string, error) {
	var urls []string
	err := resilience.Do(ctx, c.config.RetryPolicy, c.logger, "resolve_image_assets", func(ctx context.Context) error {
		var resolveErr error
		urls, resolveErr = c.provider.ResolveAssets(ctx, assetIDs)
		return resolveErr
	})
	return urls, err
}

func (c *Client) nextInterval(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.config.PollGrowthFactor)
	if next > c.config.PollMaxInterval {
		next = c.config.PollMaxInterval
	}
	return next
}

// waitBeforeNextPoll sleeps for the interval. Returns false when the context
// ended first.
func waitBeforeNextPoll(ctx context.Context, interval time.Duration) bool {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func providerFailure(message string) error {
	if message == "" {
		return errors.New("provider reported failure")
	}
	return fmt.Errorf("provider reported failure: %s", message)
}
