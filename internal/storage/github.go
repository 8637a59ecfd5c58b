package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tongbuying/internal/member"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubBackend persists the member collection as a JSON blob in a Git
// repository through the GitHub contents API. The file's content sha is the
// version token: a save carrying a stale sha is rejected by the API and
// surfaces as ErrVersionConflict.
type GitHubBackend struct {
	client *http.Client
	apiURL string
	repo   string // "owner/name"
	path   string // path of the JSON file inside the repository
	token  string
	tracer trace.Tracer
}

// NewGitHubBackend creates a backend for the given repo and file path. An
// empty token is not rejected here; the API's authentication failure
// propagates on the first call instead.
func NewGitHubBackend(apiURL, repo, path, token string) *GitHubBackend {
	if apiURL == "" {
		apiURL = defaultGitHubAPI
	}
	return &GitHubBackend{
		client: &http.Client{Timeout: 15 * time.Second},
		apiURL: strings.TrimRight(apiURL, "/"),
		repo:   repo,
		path:   path,
		token:  token,
		tracer: otel.Tracer("tongbuying/storage"),
	}
}

func (b *GitHubBackend) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", b.apiURL, b.repo, b.path)
}

// Load fetches the blob and returns the parsed members together with the
// content sha to present on the next save.
func (b *GitHubBackend) Load(ctx context.Context) ([]member.Member, string, error) {
	ctx, span := b.tracer.Start(ctx, "github.load",
		trace.WithAttributes(attribute.String("github.repo", b.repo)),
	)
	defer span.End()

	var file struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	if err := b.doJSON(ctx, http.MethodGet, nil, &file); err != nil {
		span.RecordError(err)
		return nil, "", err
	}

	// The contents API returns base64 with embedded newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("decode blob content: %w", err)
	}

	var doc member.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("parse members document: %w", err)
	}
	if doc.Members == nil {
		doc.Members = []member.Member{}
	}

	span.SetAttributes(attribute.Int("members.count", len(doc.Members)))
	return doc.Members, file.SHA, nil
}

// Save writes the full collection back, guarded by the sha obtained at read
// time. A stale sha yields ErrVersionConflict: first writer after a read
// wins and the loser must re-read and re-apply.
func (b *GitHubBackend) Save(ctx context.Context, members []member.Member, version, message string) (string, error) {
	ctx, span := b.tracer.Start(ctx, "github.save",
		trace.WithAttributes(
			attribute.String("github.repo", b.repo),
			attribute.Int("members.count", len(members)),
		),
	)
	defer span.End()

	if message == "" {
		message = "Update members data"
	}

	doc := member.Document{Members: members, LastUpdated: timestamp()}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal members document: %w", err)
	}

	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(raw),
		"sha":     version,
	}

	var result struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
	}
	if err := b.doJSON(ctx, http.MethodPut, body, &result); err != nil {
		span.RecordError(err)
		return "", err
	}

	return result.Content.SHA, nil
}

// doJSON performs one contents-API call, marshalling body as JSON and
// unmarshalling the response into out. Non-2xx responses become errors
// carrying a snippet of the response body; a sha mismatch becomes
// ErrVersionConflict.
func (b *GitHubBackend) doJSON(ctx context.Context, method string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.contentsURL(), bodyReader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "token "+b.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "tongbuying-app")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("contents api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		io.Copy(io.Discard, resp.Body)
		return ErrVersionConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("contents api: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
