// Package deploy uploads a rendered site according to the configured
// strategy.
package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/kalamos/internal/config"
)

// StrategyS3AndCloudfront publishes the output tree to an S3 bucket
// fronted by CloudFront.
const StrategyS3AndCloudfront = "s3_and_cloudfront"

// Deploy dispatches on the configured strategy. A nil deploy config is a
// no-op so `kalamos deploy` can always be invoked.
func Deploy(ctx context.Context, cfg *config.DeployConfig, outputDir string) error {
	if cfg == nil {
		slog.Info("no [deploy] section configured, skipping")
		return nil
	}

	switch cfg.Strategy {
	case StrategyS3AndCloudfront:
		return deployS3AndCloudfront(ctx, cfg, outputDir)
	default:
		return fmt.Errorf("unknown deploy strategy %q", cfg.Strategy)
	}
}

// TODO: perform the actual S3 sync and CloudFront invalidation; for now
// this logs the plan only.
func deployS3AndCloudfront(_ context.Context, cfg *config.DeployConfig, outputDir string) error {
	if cfg.Bucket == "" {
		return fmt.Errorf("deploy strategy %q requires a bucket", cfg.Strategy)
	}
	slog.Info("deploying to S3 and CloudFront", "bucket", cfg.Bucket, "output", outputDir)
	return nil
}
