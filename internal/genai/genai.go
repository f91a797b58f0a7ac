// Package genai is the remote text-generation capability consumed by the
// validation-code authoring feature. The merge pipeline never calls it;
// it is an opaque generate(prompt) -> text boundary with a small error
// taxonomy the caller can branch on.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stigtools/estig/internal/model"
)

const generatePath = "api/generate"

// Generator produces text from a prompt. Fails with model.ErrConnection,
// model.ErrTimeout or model.ErrServer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client talks to an Ollama-compatible /api/generate endpoint.
type Client struct {
	requestURL *url.URL
	model      string
	client     *http.Client
}

// NewClient validates serverURL (scheme and host, no path) and returns a
// client using modelName with the given per-request timeout.
func NewClient(serverURL, modelName string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the server url with a scheme and without path, e.g. `http://localhost:11434`")
	}
	parsedURL.Path = generatePath

	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		requestURL: parsedURL,
		model:      modelName,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", model.ErrServer, resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", model.ErrServer, err)
	}
	return out.Response, nil
}

// Ping checks connectivity with a trivial prompt and a short deadline,
// independent of the configured generation timeout.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.Generate(ctx, "Respond with OK")
	return err
}

func transportError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", model.ErrConnection, err)
}

// StripFences removes a surrounding markdown code fence, including a
// language tag on the opening line, and trims whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ValidationPrompt asks for a PowerShell validation snippet for one rule.
func ValidationPrompt(stigName, vKey, ruleTitle, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a PowerShell validation script for STIG rule %s of %s.\n", vKey, stigName)
	fmt.Fprintf(&b, "Rule title: %s\n", ruleTitle)
	if description != "" {
		fmt.Fprintf(&b, "Rule description: %s\n", description)
	}
	b.WriteString("Return only the PowerShell code, no explanation.")
	return b.String()
}
