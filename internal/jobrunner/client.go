// ABOUTME: RPA orchestrator client: credential acquisition and job start.
// ABOUTME: Client-credentials grant against the identity server, OData StartJobs submission.

package jobrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// authScope is the only permission the bridge needs: starting jobs.
const authScope = "OR.Jobs.Write"

// Config holds the orchestrator connection settings.
type Config struct {
	BaseURL      string
	AppID        string
	AppSecret    string
	Organization string
	Tenant       string
	FolderID     string
	ProcessName  string
}

// Credential is a short-lived bearer token for the orchestrator API.
type Credential struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
}

// Job describes a started orchestrator job.
type Job struct {
	ID    int64  `json:"Id"`
	Key   string `json:"Key"`
	State string `json:"State"`
}

// Client starts jobs on the orchestrator. It does not poll for results.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates an orchestrator client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger.With("component", "jobrunner"),
	}
}

// Authenticate exchanges the application identity for a bearer credential.
// Failures are logged with whatever detail the identity server returned
// and surfaced as an error; there is no automatic retry.
func (c *Client) Authenticate(ctx context.Context) (*Credential, error) {
	cc := &clientcredentials.Config{
		ClientID:     c.cfg.AppID,
		ClientSecret: c.cfg.AppSecret,
		TokenURL:     strings.TrimSuffix(c.cfg.BaseURL, "/") + "/identity_/connect/token",
		Scopes:       []string{authScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		c.logger.Error("credential acquisition failed", "error", err)
		return nil, fmt.Errorf("acquiring orchestrator credential: %w", err)
	}

	c.logger.Info("orchestrator credential acquired",
		"token_type", tok.TokenType,
		"expires_at", tok.Expiry.Format(time.RFC3339),
	)

	return &Credential{
		Token:     tok.AccessToken,
		TokenType: tok.TokenType,
		ExpiresAt: tok.Expiry,
	}, nil
}

// startJobsPayload is the OData StartJobs request body. InputArguments is
// a JSON document encoded as a string, as the orchestrator API requires.
type startJobsPayload struct {
	StartInfo startInfo `json:"startInfo"`
}

type startInfo struct {
	ReleaseName    string `json:"ReleaseName"`
	Strategy       string `json:"Strategy"`
	JobsCount      int    `json:"JobsCount"`
	InputArguments string `json:"InputArguments"`
}

// StartJob submits a job-start request for the configured process with
// the given input arguments. Fire-and-forget: on success the returned Job
// carries enough detail to log an identifier, and nothing here ever looks
// at the job again.
func (c *Client) StartJob(ctx context.Context, cred *Credential, args map[string]any) (*Job, error) {
	if cred == nil {
		return nil, fmt.Errorf("no orchestrator credential; cannot start job")
	}

	inputArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding input arguments: %w", err)
	}

	payload := startJobsPayload{
		StartInfo: startInfo{
			ReleaseName:    c.cfg.ProcessName,
			Strategy:       "JobsCount",
			JobsCount:      1,
			InputArguments: string(inputArgs),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding job request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s/%s/odata/Jobs/UiPath.Server.Configuration.OData.StartJobs",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.Organization, c.cfg.Tenant)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating job request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-UIPATH-OrganizationUnitId", c.cfg.FolderID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("job start request failed", "error", err)
		return nil, fmt.Errorf("starting job: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("job start rejected",
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(respBody)),
		)
		return nil, fmt.Errorf("starting job: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Value []Job `json:"value"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding job response: %w", err)
	}
	if len(result.Value) == 0 {
		return nil, fmt.Errorf("job response contained no jobs")
	}

	job := result.Value[0]
	c.logger.Info("job started",
		"job_id", job.ID,
		"process", c.cfg.ProcessName,
		"state", job.State,
	)
	return &job, nil
}
