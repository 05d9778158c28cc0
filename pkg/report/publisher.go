package report

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

// Publisher files grade reports as GitHub issues.
type Publisher struct {
	client *gh.Client
	owner  string
	name   string
	labels []string
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// WithBaseURL points the publisher at a GitHub Enterprise or test API.
func WithBaseURL(raw string) PublisherOption {
	return func(p *Publisher) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		p.client.BaseURL = u
		return nil
	}
}

// WithLabels sets the labels applied to every issue.
func WithLabels(labels ...string) PublisherOption {
	return func(p *Publisher) error {
		p.labels = labels
		return nil
	}
}

// NewPublisher creates a publisher for repo, given as owner/name.
func NewPublisher(token, repo string, opts ...PublisherOption) (*Publisher, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
	}

	p := &Publisher{client: gh.NewClient(httpClient), owner: owner, name: name}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Repo returns the target repository as owner/name.
func (p *Publisher) Repo() string {
	return p.owner + "/" + p.name
}

// Publish creates an issue and returns its URL.
func (p *Publisher) Publish(ctx context.Context, title, body string) (string, error) {
	req := &gh.IssueRequest{
		Title: &title,
		Body:  &body,
	}
	if len(p.labels) > 0 {
		labels := append([]string(nil), p.labels...)
		req.Labels = &labels
	}

	issue, _, err := p.client.Issues.Create(ctx, p.owner, p.name, req)
	if err != nil {
		return "", fmt.Errorf("publish report: API error: %w", err)
	}
	return issue.GetHTMLURL(), nil
}

func splitRepo(repo string) (string, string, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", fmt.Errorf("repo must be in owner/name format, got %q", repo)
	}
	return parts[0], parts[1], nil
}
