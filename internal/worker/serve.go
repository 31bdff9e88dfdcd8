package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/AnyUserName/imgcrush/internal/pipeline"
)

// maxLine bounds one request line. Files travel base64-encoded.
const maxLine = 128 << 20

// Serve runs a worker over newline-delimited JSON: requests on r, responses
// on out. It returns once r is exhausted and every queued request has been
// answered. When ctx ends it returns a cancelled error without waiting for r.
func Serve(ctx context.Context, orch *pipeline.Orchestrator, r io.Reader, out io.Writer, log *zap.Logger) error {
	var (
		mu       sync.Mutex
		writeErr error
	)
	enc := json.NewEncoder(out)
	post := func(resp Response) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil {
			return
		}
		if err := enc.Encode(resp); err != nil {
			writeErr = fmt.Errorf("write response: %w", err)
		}
	}

	w := New(orch, post, log, 16)
	w.Start(ctx)
	select {
	case <-w.Ready():
	case <-w.Done():
		return fmt.Errorf("worker failed to initialize")
	}

	lines, scanErr := scanLines(r, w.Done())
	for {
		select {
		case <-w.Done():
			// The loop only stops early when ctx ends; queued requests
			// have been answered. The reader may stay blocked on r.
			return &pipeline.Error{Err: fmt.Errorf("%w: %w", pipeline.ErrCancelled, ctx.Err())}
		case line, ok := <-lines:
			if !ok {
				w.Close()
				<-w.Done()
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read requests: %w", err)
				}
				mu.Lock()
				defer mu.Unlock()
				return writeErr
			}
			req, err := ParseRequest(line)
			if err != nil {
				w.Reject(req.ID, err)
				continue
			}
			w.Submit(req)
		}
	}
}

// scanLines feeds non-empty lines of r to the returned channel until EOF or
// until stop closes. The error channel receives the scanner error once lines
// is closed.
func scanLines(r io.Reader, stop <-chan struct{}) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64<<10), maxLine)
		for sc.Scan() {
			if len(sc.Bytes()) == 0 {
				continue
			}
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-stop:
				errc <- nil
				return
			}
		}
		errc <- sc.Err()
	}()
	return lines, errc
}
