// Command healthcheck probes the bot's ops server and exits non-zero when it
// is unhealthy. It is meant for container HEALTHCHECK instructions.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "base URL of the ops server")
	path := flag.String("path", "/healthz", "endpoint to probe (/healthz or /readyz)")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	if err := probe(context.Background(), &http.Client{Timeout: *timeout}, *addr+*path); err != nil {
		log.Printf("healthcheck failed: %v", err)
		os.Exit(1)
	}
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "unexpected status " + http.StatusText(e.code) }
