package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"job-scheduler/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderJobID        = "X-Job-Id"
	HeaderJobExecution = "X-Job-Execution"
)

// StatusError is returned when the target answers with a 4xx or 5xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.StatusCode >= 500 {
		return fmt.Sprintf("http request returned 5xx server error: %s", e.Status)
	}
	return fmt.Sprintf("http request returned 4xx client error: %s", e.Status)
}

// Code returns the HTTP status code, recorded as the job failure code.
func (e *StatusError) Code() int { return e.StatusCode }

type httpProgram struct {
	client *http.Client
	url    string
	method string
	tracer trace.Tracer
}

// NewHttpClient returns the client shared by HTTP programs.
func NewHttpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewHttpProgram creates a program that performs a single HTTP request.
func NewHttpProgram(client *http.Client, url, method string) domain.DescribedProgram {
	if client == nil {
		client = NewHttpClient(0)
	}
	if method == "" {
		method = http.MethodGet
	}
	return &httpProgram{
		client: client,
		url:    url,
		method: method,
		tracer: otel.Tracer("job-scheduler-http-program"),
	}
}

func (p *httpProgram) Descriptor() domain.ProgramDescriptor {
	return domain.ProgramDescriptor{
		Type:   domain.ProgramTypeHTTP,
		URL:    p.url,
		Method: p.method,
	}
}

// Execute performs one HTTP request. Retries are left to the caller.
func (p *httpProgram) Execute(ctx context.Context, runner domain.Runner) error {
	ctx, span := p.tracer.Start(ctx, "program.http.Execute",
		trace.WithAttributes(
			attribute.String("http.method", p.method),
			attribute.String("http.url", p.url),
		))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, p.method, p.url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid http request")
		return fmt.Errorf("failed to create http request: %w", err)
	}
	if runner != nil && runner.Job() != nil {
		job := runner.Job()
		req.Header.Set(HeaderJobID, job.ID())
		req.Header.Set(HeaderJobExecution, strconv.Itoa(job.ExecutionCount()+1))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http request failed")
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read a small portion of the body for diagnostics.
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		err := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(bodyBytes)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "http request returned error status")
		return err
	}
	return nil
}
