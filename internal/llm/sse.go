package llm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxSSELine = 1 << 20

// serverSentEventScanner yields the data payloads of a Server-Sent Events stream.
type serverSentEventScanner struct {
	scanner *bufio.Scanner
	data    string
}

func newServerSentEventScanner(r io.Reader) *serverSentEventScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &serverSentEventScanner{scanner: s}
}

// Next advances to the next data line. Comment, event and blank lines are skipped.
func (s *serverSentEventScanner) Next() bool {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			s.data = strings.TrimPrefix(data, " ")
			return true
		}
	}
	return false
}

// Data returns the payload of the current data line.
func (s *serverSentEventScanner) Data() string { return s.data }

// Err returns the first non-EOF read error.
func (s *serverSentEventScanner) Err() error { return s.scanner.Err() }

// emit sends ev unless ctx is done. Returns false when the consumer is gone.
func emit(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// checkStatus turns a non-200 response into a ProviderError, consuming the body.
func checkStatus(provider string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return &ProviderError{
		Provider: provider,
		Code:     resp.StatusCode,
		Message:  strings.TrimSpace(string(body)),
	}
}

func requestError(provider string, err error) error {
	return &ProviderError{Provider: provider, Message: fmt.Sprintf("request failed: %v", err)}
}
