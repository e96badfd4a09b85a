package workerpool

import (
	"bufio"
	"io"

	"go.uber.org/zap"
)

// forwardInput drains q onto a worker's stdin pipe (via enc) until it sees
// the terminate sentinel or the worker's done channel closes. It returns
// without draining further WorkItems left in q — those survive for the next
// incarnation's forwarder, since the queue outlives any one process.
func forwardInput(q <-chan WorkItem, enc *wireEncoder, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case item, ok := <-q:
			if !ok {
				return
			}
			if item.Terminate {
				_ = enc.encode(wireFrame{Kind: wireTerminate})
				return
			}
			if err := enc.encode(wireFrame{Kind: wireRequest, Request: item.Request}); err != nil {
				return
			}
		}
	}
}

// readOutput decodes Results from a worker's stdout pipe into out until the
// pipe closes.
func readOutput(r io.Reader, out chan<- Result, log *zap.Logger) {
	dec := newWireDecoder(r)
	for {
		frame, err := dec.decode()
		if err != nil {
			if err != io.EOF {
				log.Warn("output pipe decode failed", zap.Error(err))
			}
			return
		}
		if frame.Kind == wireResult {
			out <- frame.Result
		}
	}
}

// drainStderr copies a worker's stderr, line by line, into its log buffer.
func drainStderr(r io.Reader, buf *logBuffer) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		buf.Append(sc.Text())
	}
}
