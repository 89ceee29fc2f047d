package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/httpclient"
	"github.com/nulzo/capability-router/internal/llm"
)

func init() {
	llm.Register(domain.ProtocolOpenAI, NewAdapter)
}

const defaultBaseURL = "https://api.openai.com/v1"

// endpoints maps capabilities onto OpenAI compatible paths.
var endpoints = map[domain.Capability]string{
	domain.CapabilityChat:     "/chat/completions",
	domain.CapabilityVision:   "/chat/completions",
	domain.CapabilityImageGen: "/images/generations",
	domain.CapabilityAudioSTT: "/audio/transcriptions",
	domain.CapabilityAudioTTS: "/audio/speech",
}

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
	return domain.ProtocolOpenAI
}

func (a *Adapter) headers() map[string]string {
	headers := llm.ExtraHeaders(a.config)
	if a.config.Credential != "" {
		headers["Authorization"] = "Bearer " + a.config.Credential
	}
	if a.config.OrgID != "" {
		headers["OpenAI-Organization"] = a.config.OrgID
	}
	return headers
}

func (a *Adapter) url(path string) string {
	return strings.TrimRight(a.config.BaseURL, "/") + path
}

func (a *Adapter) Invoke(ctx context.Context, inv llm.Invocation) (*llm.Result, error) {
	path, ok := endpoints[inv.Capability]
	if !ok {
		return nil, &llm.UnsupportedCapabilityError{Protocol: domain.ProtocolOpenAI, Capability: inv.Capability}
	}

	body, err := llm.WithModel(inv.Payload, inv.Model)
	if err != nil {
		return nil, err
	}

	headers := a.headers()
	if inv.Capability == domain.CapabilityAudioSTT {
		form, contentType, err := transcriptionForm(body)
		if err != nil {
			return nil, err
		}
		body = form
		headers["Content-Type"] = contentType
	}

	resp, err := httpclient.Do(ctx, a.client, http.MethodPost, a.url(path), headers, body)
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
	var models struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := httpclient.SendRequest(ctx, a.client, http.MethodGet, a.url("/models"), a.headers(), nil, &models); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
