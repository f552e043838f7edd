package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteConfig configures the remote sandbox backend: a generalized
// REST-based execution service reached over plain HTTP. The shape
// (APIKey/APIURL/Target, per-session client) mirrors the request/response
// pattern of hosted sandbox providers without depending on any particular
// vendor SDK.
type RemoteConfig struct {
	APIURL  string        // base URL of the remote sandbox service
	APIKey  string        // bearer token
	Target  string        // region or pool identifier, provider-defined
	Timeout time.Duration // per-request HTTP timeout
}

// remoteClient is a thin REST client for the remote sandbox backend.
type remoteClient struct {
	cfg        RemoteConfig
	httpClient *http.Client
}

// newRemoteClient validates cfg and probes the remote service's health
// endpoint so callers can fall back to the container backend immediately
// on misconfiguration rather than failing on the first execution.
func newRemoteClient(cfg *RemoteConfig) (*remoteClient, error) {
	if cfg == nil {
		return nil, errors.New("remote sandbox backend selected but no remote config provided")
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("remote sandbox config missing api_url")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("remote sandbox config missing api_key")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &remoteClient{
		cfg:        *cfg,
		httpClient: &http.Client{Timeout: timeout},
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.healthCheck(ctx); err != nil {
		return nil, fmt.Errorf("remote sandbox health check failed: %w", err)
	}

	return c, nil
}

func (c *remoteClient) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/health"), nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *remoteClient) url(path string) string {
	return strings.TrimRight(c.cfg.APIURL, "/") + path
}

func (c *remoteClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Target != "" {
		req.Header.Set("X-Sandbox-Target", c.cfg.Target)
	}
}

type remoteExecRequest struct {
	Language string            `json:"language"`
	Code     string            `json:"code"`
	Stdin    string            `json:"stdin,omitempty"`
	Files    map[string]string `json:"files,omitempty"`
	CPU      int               `json:"cpu_millicores,omitempty"`
	Memory   int               `json:"memory_mb,omitempty"`
	Network  bool              `json:"network_allowed,omitempty"`
}

type remoteExecResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (c *remoteClient) execute(ctx context.Context, params *ExecuteParams) (*ExecuteResult, error) {
	body, err := json.Marshal(remoteExecRequest{
		Language: params.Language,
		Code:     params.Code,
		Stdin:    params.Stdin,
		Files:    params.Files,
		CPU:      params.CPULimit,
		Memory:   params.MemLimit,
		Network:  params.NetworkAllowed,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/v1/executions"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &ExecuteResult{Status: ExitTimeout, Timeout: true, Error: "execution timeout"}, nil
		}
		return &ExecuteResult{Status: ExitSandboxDown, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &ExecuteResult{Status: ExitSandboxDown, Error: fmt.Sprintf("remote sandbox returned %d", resp.StatusCode)}, nil
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &ExecuteResult{Error: fmt.Sprintf("remote sandbox rejected request: %s", strings.TrimSpace(string(data)))}, nil
	}

	var out remoteExecResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &ExecuteResult{Status: ExitSandboxDown, Error: fmt.Sprintf("invalid remote sandbox response: %v", err)}, nil
	}

	return &ExecuteResult{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
		Status:   out.Status,
		Error:    out.Error,
		Timeout:  out.Status == ExitTimeout,
	}, nil
}

// remoteExecutor implements RuntimeExecutor against the remote sandbox service.
type remoteExecutor struct {
	language string
	client   *remoteClient
}

func newRemoteExecutor(language string, client *remoteClient) *remoteExecutor {
	return &remoteExecutor{language: language, client: client}
}

// Run sends the code to the remote sandbox service for execution.
func (r *remoteExecutor) Run(ctx context.Context, params *ExecuteParams, workspace string) (*ExecuteResult, error) {
	return r.client.execute(ctx, params)
}

// Language returns the language this executor handles.
func (r *remoteExecutor) Language() string {
	return r.language
}

// Close is a no-op: the remote client is shared across executors.
func (r *remoteExecutor) Close() error {
	return nil
}
