/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsefit/aithrottle/httpclient"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/restapi"
	"github.com/pulsefit/aithrottle/statsstore"
	"github.com/pulsefit/aithrottle/throttle"
)

const statusPath = "/api/v1/limiter/status"

const (
	outputTable = "table"
	outputJSON  = "json"
)

type statusOptions struct {
	addr    string
	redis   bool
	output  string
	timeout time.Duration
}

func newStatusCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &statusOptions{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the limiter state of a running service",
		Long: `Fetches the limiter stats from the status server (--addr) or reads the latest
snapshot published to Redis (--redis, the default when no address is given).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.output != outputTable && opts.output != outputJSON {
				return fmt.Errorf("unsupported output format: %s", opts.output)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			var stats throttle.Stats
			var err error
			if opts.addr != "" {
				stats, err = fetchStatusHTTP(ctx, opts.addr)
			} else {
				stats, err = fetchStatusRedis(ctx, rootOpts.configFile)
			}
			if err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), stats, opts.output)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "base URL of the status server, e.g. http://localhost:8080")
	cmd.Flags().BoolVar(&opts.redis, "redis", false, "read the latest snapshot from Redis (redis.* config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputTable, "output format: table or json")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout of the request")
	cmd.MarkFlagsMutuallyExclusive("addr", "redis")
	return cmd
}

func fetchStatusHTTP(ctx context.Context, addr string) (throttle.Stats, error) {
	client := httpclient.NewClientWithOpts(nil, log.NewDisabledLogger(), nil, httpclient.Opts{RequestType: "status"})
	endpoint := strings.TrimRight(addr, "/") + statusPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return throttle.Stats{}, fmt.Errorf("build status request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return throttle.Stats{}, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		var errData restapi.ErrorResponseData
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&errData); decodeErr == nil &&
			errData.Err != nil && errData.Err.Message != "" {
			return throttle.Stats{}, fmt.Errorf("fetch status: %d: %s", resp.StatusCode, errData.Err.Message)
		}
		return throttle.Stats{}, fmt.Errorf("fetch status: unexpected status code %d", resp.StatusCode)
	}
	var stats throttle.Stats
	if err = json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return throttle.Stats{}, fmt.Errorf("decode status: %w", err)
	}
	return stats, nil
}

func fetchStatusRedis(ctx context.Context, configFile string) (throttle.Stats, error) {
	cfg, err := loadAppConfig(configFile)
	if err != nil {
		return throttle.Stats{}, err
	}
	client := statsstore.NewClient(cfg.Redis)
	defer client.Close() // nolint:errcheck // best-effort cleanup

	stats, err := statsstore.NewStore(client, cfg.Redis.StoreKeyPrefix).Latest(ctx)
	if err != nil {
		if errors.Is(err, statsstore.ErrNoSnapshot) {
			return throttle.Stats{}, fmt.Errorf("no limiter snapshot in redis at %s, is the service running with redis.enabled?",
				cfg.Redis.Address)
		}
		return throttle.Stats{}, err
	}
	return stats, nil
}
