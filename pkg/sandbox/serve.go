package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/aretw0/brickrt/pkg/templates"
)

// maxRequestSize bounds a single request line.
const maxRequestSize = 8 << 20

// Serve answers line-delimited JSON requests from r on w until r is exhausted
// or ctx is done. Each line is one domain.SandboxRequest and each reply one
// domain.SandboxResponse.
func Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRequestSize)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var reply []byte
		req, err := DecodeRequest(line)
		if err != nil {
			reply = encodeResponse("", err)
		} else {
			reply = encodeResponse(templates.RenderIsolated(req))
		}

		if _, err := out.Write(append(reply, '\n')); err != nil {
			return fmt.Errorf("failed to write sandbox reply: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("failed to write sandbox reply: %w", err)
		}
	}
	return scanner.Err()
}
