package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/vinayprograms/ans/bus"
)

// Watch connects to an SSE endpoint and calls fn for every event until ctx
// is done or the server ends the stream. Frames that do not decode as events
// are skipped. A nil client uses http.DefaultClient.
func Watch(ctx context.Context, client *http.Client, url string, fn func(bus.Event)) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: %s: unexpected status %s", url, resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// End of event
			if data.Len() > 0 {
				if ev, err := bus.DecodeEvent(data.Bytes()); err == nil {
					fn(ev)
				}
				data.Reset()
			}
			continue
		}

		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimPrefix(rest, " "))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}
