/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pulsefit/aithrottle/gemini"
	"github.com/pulsefit/aithrottle/httpclient"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/throttle"
)

type promptOptions struct {
	priority int
	timeout  time.Duration
}

func newPromptCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &promptOptions{}
	cmd := &cobra.Command{
		Use:   "prompt TEXT...",
		Short: "Send prompts to Gemini through an in-process limiter and print the answers",
		Long: `Every TEXT is sent as a separate prompt. All prompts are submitted concurrently
and admitted by one limiter, so quotas and backoff apply as in the service.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(rootOpts.configFile)
			if err != nil {
				return err
			}
			logger, closeLogger := log.NewLogger(cfg.Log)
			defer closeLogger()

			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			answers, err := runPrompts(ctx, cfg, logger, args, opts.priority)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, answer := range answers {
				if len(answers) > 1 {
					if _, err = fmt.Fprintf(out, "[%d] %s\n", i+1, args[i]); err != nil {
						return err
					}
				}
				if _, err = fmt.Fprintln(out, answer); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.priority, "priority", "p", throttle.DefaultPriority, "priority of the prompts in the limiter queue (higher goes first)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall timeout including time spent in the queue")
	return cmd
}

// runPrompts submits the prompts concurrently and returns the answers in the order of prompts.
// The first failure cancels the remaining prompts.
func runPrompts(
	ctx context.Context, cfg *appConfig, logger log.FieldLogger, prompts []string, priority int,
) ([]string, error) {
	limiter, err := throttle.New(cfg.Limiter, throttle.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create limiter: %w", err)
	}
	httpClient := httpclient.NewClientWithOpts(cfg.HTTPClient, logger, nil, httpclient.Opts{RequestType: geminiRequestType})
	client, err := gemini.NewClient(cfg.Gemini, limiter, gemini.WithHTTPClient(httpClient), gemini.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	limiterDone := make(chan error, 1)
	go func() { limiterDone <- limiter.Run(limiterCtx) }()
	defer func() {
		stopLimiter()
		<-limiterDone
	}()

	answers := make([]string, len(prompts))
	g, gCtx := errgroup.WithContext(ctx)
	for i, prompt := range prompts {
		g.Go(func() error {
			answer, genErr := client.GenerateText(gCtx, prompt, throttle.WithPriority(priority))
			if genErr != nil {
				return fmt.Errorf("prompt #%d: %w", i+1, genErr)
			}
			answers[i] = answer
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	usage := client.Usage()
	logger.Info("prompts completed", log.Int("prompts", len(prompts)),
		log.Int64("total_tokens", usage.TotalTokens), log.Int64("requests", usage.Requests))
	return answers, nil
}
