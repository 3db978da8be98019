package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/codex-k8s/stacksync/internal/config"
	"github.com/codex-k8s/stacksync/internal/engine"
)

type callerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type bucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type templateAPI interface {
	ValidateTemplate(ctx context.Context, params *cloudformation.ValidateTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ValidateTemplateOutput, error)
}

// doctorDeps are the remote calls made by doctor.
type doctorDeps struct {
	identity  callerIdentityAPI
	buckets   bucketAPI
	templates templateAPI
	engine    *engine.Engine
}

func runDoctorChecks(ctx context.Context, logger *slog.Logger, deps doctorDeps, cfg *config.DeployConfig, tctx config.TemplateContext) error {
	if logger == nil {
		logger = slog.Default()
	}

	var failed []string

	ident, err := deps.identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		logger.Error("doctor check failed: AWS credentials", "error", err)
		failed = append(failed, "credentials")
	} else {
		logger.Info("doctor check ok: AWS credentials", "account", aws.ToString(ident.Account), "arn", aws.ToString(ident.Arn))
	}

	seen := make(map[string]struct{})
	for _, a := range cfg.Assets {
		if _, dup := seen[a.Bucket]; dup {
			continue
		}
		seen[a.Bucket] = struct{}{}
		if _, err := deps.buckets.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.Bucket)}); err != nil {
			logger.Error("doctor check failed: bucket not reachable", "asset", a.Name, "bucket", a.Bucket, "error", err)
			failed = append(failed, "bucket "+a.Bucket)
			continue
		}
		logger.Info("doctor check ok: bucket reachable", "asset", a.Name, "bucket", a.Bucket)
	}

	if cfg.Stack.Enabled() {
		if err := checkStackTemplate(ctx, deps, cfg, tctx); err != nil {
			logger.Error("doctor check failed: stack template", "stack", cfg.Stack.Name, "error", err)
			failed = append(failed, "template")
		} else {
			logger.Info("doctor check ok: stack template", "stack", cfg.Stack.Name, "template", cfg.Stack.Template)
		}
	} else {
		logger.Warn("no stack declared; deploy only synchronizes assets")
	}

	if len(failed) > 0 {
		return fmt.Errorf("doctor checks failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

// checkStackTemplate renders the template the way deploy would and validates it remotely.
func checkStackTemplate(ctx context.Context, deps doctorDeps, cfg *config.DeployConfig, tctx config.TemplateContext) error {
	assetCtx, err := deps.engine.AssetContext(ctx, cfg, tctx)
	if err != nil {
		return err
	}
	desc, err := engine.BuildDescriptor(cfg, assetCtx)
	if err != nil {
		return err
	}
	_, err = deps.templates.ValidateTemplate(ctx, &cloudformation.ValidateTemplateInput{
		TemplateBody: aws.String(desc.TemplateBody),
	})
	return err
}
