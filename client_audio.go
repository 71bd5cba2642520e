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

// Transcription sends an audio transcription request. The chosen
// provider must implement the TranscriptionProvider capability.
func (c *Client) Transcription(ctx context.Context, req *TranscriptionRequest) (*TranscriptionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
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

		transcrProv, ok := prov.(provider.TranscriptionProvider)
		if !ok {
			return nil, llmerrors.NewInvalidRequestError(
				deployment.ProviderName, req.Model, "provider does not support audio transcription")
		}

		resp, err := c.executeTranscriptionOnce(ctx, transcrProv, deployment, req)
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

func (c *Client) executeTranscriptionOnce(
	ctx context.Context,
	prov provider.TranscriptionProvider,
	deployment *provider.Deployment,
	req *TranscriptionRequest,
) (*TranscriptionResponse, error) {
	start := time.Now()

	httpReq, err := prov.BuildTranscriptionRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
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

	transcrResp, err := prov.ParseTranscriptionResponse(resp)
	if err != nil {
		c.router.ReportFailure(ctx, deployment, err)
		return nil, fmt.Errorf("parse transcription response: %w", err)
	}

	metrics := &router.ResponseMetrics{Latency: time.Since(start)}
	if transcrResp.Usage != nil {
		transcrResp.Usage.Provider = deployment.ProviderName
		metrics.InputTokens = transcrResp.Usage.PromptTokens
		metrics.TotalTokens = transcrResp.Usage.TotalTokens
	}
	c.router.ReportSuccess(ctx, deployment, metrics)

	return transcrResp, nil
}

// Speech sends a text-to-speech request. The chosen provider must
// implement the SpeechProvider capability.
func (c *Client) Speech(ctx context.Context, req *SpeechRequest) (*SpeechResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
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

		speechProv, ok := prov.(provider.SpeechProvider)
		if !ok {
			return nil, llmerrors.NewInvalidRequestError(
				deployment.ProviderName, req.Model, "provider does not support audio speech")
		}

		resp, err := c.executeSpeechOnce(ctx, speechProv, deployment, req)
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

func (c *Client) executeSpeechOnce(
	ctx context.Context,
	prov provider.SpeechProvider,
	deployment *provider.Deployment,
	req *SpeechRequest,
) (*SpeechResult, error) {
	start := time.Now()

	httpReq, err := prov.BuildSpeechRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
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

	speechResp, err := prov.ParseSpeechResponse(resp)
	if err != nil {
		c.router.ReportFailure(ctx, deployment, err)
		return nil, fmt.Errorf("parse speech response: %w", err)
	}

	c.router.ReportSuccess(ctx, deployment, &router.ResponseMetrics{
		Latency: time.Since(start),
	})

	return speechResp, nil
}
