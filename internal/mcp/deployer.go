package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aixtiv/sallyport/internal/common/config"

	"go.uber.org/zap"
)

// Deployer submits a deployment descriptor to whatever actually runs MCP
// servers. Submission is synchronous; the server comes up asynchronously and
// the deployment stays in deploying until something else moves it.
type Deployer interface {
	Deploy(ctx context.Context, d *Descriptor) error
}

// NewDeployer creates a deployer based on the configuration
func NewDeployer(logger *zap.Logger, cfg *config.DeployerConfig) (Deployer, error) {
	switch cfg.Type {
	case "stub":
		return &StubDeployer{logger: logger.Named("deployer.stub")}, nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("http deployer requires an endpoint")
		}
		return &HTTPDeployer{
			endpoint: cfg.Endpoint,
			client:   &http.Client{Timeout: cfg.Timeout},
			logger:   logger.Named("deployer.http"),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported deployer type: %s", cfg.Type)
	}
}

// StubDeployer accepts every submission. Default for development and tests.
type StubDeployer struct {
	logger *zap.Logger
}

func (s *StubDeployer) Deploy(ctx context.Context, d *Descriptor) error {
	s.logger.Debug("accepted deployment",
		zap.String("tenant", d.Tenant),
		zap.String("name", d.Name),
		zap.String("type", d.Type))
	return nil
}

// HTTPDeployer posts the descriptor JSON to a deployment API.
type HTTPDeployer struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func (h *HTTPDeployer) Deploy(ctx context.Context, d *Descriptor) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("deployment submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("deployment API returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
