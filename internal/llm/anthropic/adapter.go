package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/httpclient"
	"github.com/nulzo/capability-router/internal/llm"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	llm.Register(domain.ProtocolAnthropic, NewAdapter)
}

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

type Adapter struct {
	config domain.ProviderConfig
	client httpclient.HTTPClient
}

func NewAdapter(config domain.ProviderConfig, client httpclient.HTTPClient) (llm.Adapter, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	return &Adapter{config: config, client: client}, nil
}

func (a *Adapter) ProviderID() string {
	return a.config.ID
}

func (a *Adapter) Protocol() domain.ProtocolType {
	return domain.ProtocolAnthropic
}

func (a *Adapter) headers() map[string]string {
	headers := llm.ExtraHeaders(a.config)
	headers["x-api-key"] = a.config.Credential
	headers["anthropic-version"] = apiVersion
	if v := llm.ExtraString(a.config, "anthropic_version"); v != "" {
		headers["anthropic-version"] = v
	}
	return headers
}

func (a *Adapter) url(path string) string {
	return strings.TrimRight(a.config.BaseURL, "/") + path
}

func (a *Adapter) Invoke(ctx context.Context, inv llm.Invocation) (*llm.Result, error) {
	if inv.Capability != domain.CapabilityChat && inv.Capability != domain.CapabilityVision {
		return nil, &llm.UnsupportedCapabilityError{Protocol: domain.ProtocolAnthropic, Capability: inv.Capability}
	}

	body, err := llm.WithModel(inv.Payload, inv.Model)
	if err != nil {
		return nil, err
	}
	// the messages API rejects requests without max_tokens
	if !gjson.GetBytes(body, "max_tokens").Exists() {
		if body, err = sjson.SetBytes(body, "max_tokens", defaultMaxTokens); err != nil {
			return nil, fmt.Errorf("set max_tokens: %w", err)
		}
	}

	resp, err := httpclient.Do(ctx, a.client, http.MethodPost, a.url("/messages"), a.headers(), body)
	if err != nil {
		return nil, err
	}

	return &llm.Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	}, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := httpclient.Do(ctx, a.client, http.MethodGet, a.url("/models?limit=1"), a.headers(), nil); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
