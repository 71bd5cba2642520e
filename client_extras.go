package litellm

import (
	"context"
	"fmt"
	"io"
	"time"

	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/provider"
	"github.com/BerriAI/litellm-go/pkg/router"
)

// ImageGeneration sends an image generation request. The chosen
// provider must implement the ImageProvider capability.
func (c *Client) ImageGeneration(ctx context.Context, req *ImageGenerationRequest) (*ImageResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if c.rateLimiterConfig.Enabled && c.rateLimiter != nil {
		key := c.buildRateLimitKey(req.Model, req.User, rateLimitCredential(ctx))
		if err := c.checkRateLimit(ctx, key, req.Model, 0); err != nil {
			return nil, err
		}
	}

	reqCtx := &router.RequestContext{Model: req.Model}
	deployment, prov, err := c.pickForContext(ctx, reqCtx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
			if c.config.FallbackEnabled {
				if newDep, newProv, pickErr := c.pickForContext(ctx, reqCtx); pickErr == nil {
					deployment, prov = newDep, newProv
				}
			}
		}

		imgProv, ok := prov.(provider.ImageProvider)
		if !ok {
			return nil, llmerrors.NewInvalidRequestError(
				deployment.ProviderName, req.Model, "provider does not support image generation")
		}

		resp, err := c.executeImageOnce(ctx, imgProv, deployment, req)
		if err == nil {
			return resp, nil
		}
		if err == ctx.Err() {
			return nil, err
		}
		lastErr = err
		if !llmerrors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) executeImageOnce(
	ctx context.Context,
	prov provider.ImageProvider,
	deployment *provider.Deployment,
	req *ImageGenerationRequest,
) (*ImageResponse, error) {
	start := time.Now()

	httpReq, err := prov.BuildImageRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	c.router.ReportRequestStart(ctx, deployment)
	defer c.router.ReportRequestEnd(ctx, deployment)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		connErr := llmerrors.NewAPIConnectionError(deployment.ProviderName, deployment.ModelName, err.Error())
		c.router.ReportFailure(ctx, deployment, connErr)
		return nil, connErr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		base, _ := prov.(provider.Provider)
		llmErr := c.normalizeUpstreamError(base, deployment, resp.StatusCode, resp.Header, body)
		c.router.ReportFailure(ctx, deployment, llmErr)
		return nil, llmErr
	}

	imgResp, err := prov.ParseImageResponse(resp)
	if err != nil {
		c.router.ReportFailure(ctx, deployment, err)
		return nil, fmt.Errorf("parse image response: %w", err)
	}

	metrics := &router.ResponseMetrics{Latency: time.Since(start)}
	if imgResp.Usage != nil {
		imgResp.Usage.Provider = deployment.ProviderName
		metrics.InputTokens = imgResp.Usage.PromptTokens
		metrics.TotalTokens = imgResp.Usage.TotalTokens
	}
	c.router.ReportSuccess(ctx, deployment, metrics)

	return imgResp, nil
}

// Moderation sends a moderation request. The chosen provider must
// implement the ModerationProvider capability.
func (c *Client) Moderation(ctx context.Context, req *ModerationRequest) (*ModerationResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	reqCtx := &router.RequestContext{Model: req.Model}
	deployment, prov, err := c.pickForContext(ctx, reqCtx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
			if c.config.FallbackEnabled {
				if newDep, newProv, pickErr := c.pickForContext(ctx, reqCtx); pickErr == nil {
					deployment, prov = newDep, newProv
				}
			}
		}

		modProv, ok := prov.(provider.ModerationProvider)
		if !ok {
			return nil, llmerrors.NewInvalidRequestError(
				deployment.ProviderName, req.Model, "provider does not support moderations")
		}

		resp, err := c.executeModerationOnce(ctx, modProv, deployment, req)
		if err == nil {
			return resp, nil
		}
		if err == ctx.Err() {
			return nil, err
		}
		lastErr = err
		if !llmerrors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) executeModerationOnce(
	ctx context.Context,
	prov provider.ModerationProvider,
	deployment *provider.Deployment,
	req *ModerationRequest,
) (*ModerationResponse, error) {
	start := time.Now()

	httpReq, err := prov.BuildModerationRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build moderation request: %w", err)
	}

	c.router.ReportRequestStart(ctx, deployment)
	defer c.router.ReportRequestEnd(ctx, deployment)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		connErr := llmerrors.NewAPIConnectionError(deployment.ProviderName, deployment.ModelName, err.Error())
		c.router.ReportFailure(ctx, deployment, connErr)
		return nil, connErr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		base, _ := prov.(provider.Provider)
		llmErr := c.normalizeUpstreamError(base, deployment, resp.StatusCode, resp.Header, body)
		c.router.ReportFailure(ctx, deployment, llmErr)
		return nil, llmErr
	}

	modResp, err := prov.ParseModerationResponse(resp)
	if err != nil {
		c.router.ReportFailure(ctx, deployment, err)
		return nil, fmt.Errorf("parse moderation response: %w", err)
	}

	c.router.ReportSuccess(ctx, deployment, &router.ResponseMetrics{
		Latency: time.Since(start),
	})

	return modResp, nil
}

// Rerank sends a rerank request. The chosen provider must implement
// the RerankProvider capability.
func (c *Client) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if c.rateLimiterConfig.Enabled && c.rateLimiter != nil {
		key := c.buildRateLimitKey(req.Model, "", rateLimitCredential(ctx))
		if err := c.checkRateLimit(ctx, key, req.Model, 0); err != nil {
			return nil, err
		}
	}

	reqCtx := &router.RequestContext{Model: req.Model}
	deployment, prov, err := c.pickForContext(ctx, reqCtx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
			if c.config.FallbackEnabled {
				if newDep, newProv, pickErr := c.pickForContext(ctx, reqCtx); pickErr == nil {
					deployment, prov = newDep, newProv
				}
			}
		}

		rerankProv, ok := prov.(provider.RerankProvider)
		if !ok {
			return nil, llmerrors.NewInvalidRequestError(
				deployment.ProviderName, req.Model, "provider does not support rerank")
		}

		resp, err := c.executeRerankOnce(ctx, rerankProv, deployment, req)
		if err == nil {
			return resp, nil
		}
		if err == ctx.Err() {
			return nil, err
		}
		lastErr = err
		if !llmerrors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) executeRerankOnce(
	ctx context.Context,
	prov provider.RerankProvider,
	deployment *provider.Deployment,
	req *RerankRequest,
) (*RerankResponse, error) {
	start := time.Now()

	httpReq, err := prov.BuildRerankRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}

	c.router.ReportRequestStart(ctx, deployment)
	defer c.router.ReportRequestEnd(ctx, deployment)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		connErr := llmerrors.NewAPIConnectionError(deployment.ProviderName, deployment.ModelName, err.Error())
		c.router.ReportFailure(ctx, deployment, connErr)
		return nil, connErr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		base, _ := prov.(provider.Provider)
		llmErr := c.normalizeUpstreamError(base, deployment, resp.StatusCode, resp.Header, body)
		c.router.ReportFailure(ctx, deployment, llmErr)
		return nil, llmErr
	}

	rerankResp, err := prov.ParseRerankResponse(resp)
	if err != nil {
		c.router.ReportFailure(ctx, deployment, err)
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}

	metrics := &router.ResponseMetrics{Latency: time.Since(start)}
	if rerankResp.Usage != nil {
		rerankResp.Usage.Provider = deployment.ProviderName
		metrics.InputTokens = rerankResp.Usage.PromptTokens
		metrics.TotalTokens = rerankResp.Usage.TotalTokens
	}
	c.router.ReportSuccess(ctx, deployment, metrics)

	return rerankResp, nil
}
