// Package inference turns generate and explain requests into model prompts
// and sends them to the model server.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codegenie/apiserver/internal/apperr"
)

// Client completes a rendered prompt with a model.
type Client interface {
	Complete(ctx context.Context, model Model, prompt string, params Params) (string, error)
}

// HTTPClient speaks the text-generation-inference /generate protocol.
type HTTPClient struct {
	http  *http.Client
	token string
}

func NewHTTPClient(token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		http:  &http.Client{Timeout: timeout},
		token: strings.TrimSpace(token),
	}
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *HTTPClient) Complete(ctx context.Context, model Model, prompt string, params Params) (string, error) {
	body, err := json.Marshal(generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens: params.MaxNewTokens,
			Temperature:  params.Temperature,
			DoSample:     true,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, model.Endpoint+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(apperr.ErrUpstream, "build model request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if model.ID != "" {
		req.Header.Set("X-Model-Id", model.ID)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrUpstream, "call model "+model.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", apperr.Wrap(apperr.ErrUpstream, "read model response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return "", apperr.Wrap(apperr.ErrUpstream, "call model "+model.Name,
			fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperr.Wrap(apperr.ErrUpstream, "decode model response", err)
	}
	return out.GeneratedText, nil
}
