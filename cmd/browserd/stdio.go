package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/entrhq/browserd/pkg/dispatch"
)

const (
	maxStdioCall = 10 * 1024 * 1024
	closeTag     = "</tool>"
)

// stdioResponse is one line written by the stdio transport.
type stdioResponse struct {
	dispatch.Result
	// Error on the envelope covers calls that never reached a tool
	Error string `json:"error,omitempty"`
}

// serveStdio reads <tool> calls from r and writes one JSON result per call
// to w. Text between calls is ignored. It returns at EOF or when ctx is done.
func serveStdio(ctx context.Context, d *dispatch.Dispatcher, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxStdioCall)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	enc := json.NewEncoder(w)
	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			buf.WriteString(line)
			buf.WriteString("\n")

			text := buf.String()
			buf.Reset()
			for {
				end := strings.Index(text, closeTag)
				if end < 0 {
					break
				}
				if err := handleCall(ctx, d, enc, text[:end+len(closeTag)]); err != nil {
					return err
				}
				text = text[end+len(closeTag):]
			}
			if len(text) > maxStdioCall {
				text = ""
				if err := enc.Encode(stdioResponse{Error: "tool call exceeds maximum size"}); err != nil {
					return err
				}
			}
			buf.WriteString(text)
		}
	}
}

func handleCall(ctx context.Context, d *dispatch.Dispatcher, enc *json.Encoder, call string) error {
	res, err := d.CallXML(ctx, call)
	resp := stdioResponse{Result: res, Error: res.Error}
	if err != nil && !errors.Is(err, context.Canceled) {
		resp.Error = err.Error()
	}
	return enc.Encode(resp)
}
