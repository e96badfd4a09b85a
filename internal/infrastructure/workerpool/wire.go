package workerpool

import (
	"encoding/gob"
	"io"
)

// wireKind distinguishes the frames that travel over a worker's stdin/stdout
// pipe (in fork mode, wrapped in supFrames over the supervisor's own
// stdin/stdout, which the supervisor relays to and from its children).
type wireKind uint8

const (
	wireRequest   wireKind = iota // coordinator → worker: one line of work
	wireTerminate                 // coordinator → worker: terminate sentinel
	wireResult                    // worker → coordinator: success or structured error
	wireBootstrap                 // coordinator → worker: one-time startup payload
)

// wireFrame is the single envelope type gob-encoded across the process
// boundary. Exactly one of the payload fields is meaningful for a given Kind.
type wireFrame struct {
	Kind      wireKind
	Request   Request
	Result    Result
	Bootstrap bootstrapPayload
}

// bootstrapPayload is sent once, before the first Request, carrying the
// per-process state that cannot be inherited any other way in a cold-exec'd
// Go process: the operation context snapshot and (in fork mode) the path to
// the warm executor snapshot written by the supervisor.
type bootstrapPayload struct {
	OperationContext OperationContext
	SnapshotPath     string // empty in cold-spawn mode
}

// wireEncoder serializes frames onto a worker's stdin pipe.
type wireEncoder struct{ enc *gob.Encoder }

func newWireEncoder(w io.Writer) *wireEncoder { return &wireEncoder{enc: gob.NewEncoder(w)} }

func (e *wireEncoder) encode(f wireFrame) error { return e.enc.Encode(f) }

// wireDecoder deserializes frames from a worker's stdout pipe (or, inside the
// worker, from os.Stdin).
type wireDecoder struct{ dec *gob.Decoder }

func newWireDecoder(r io.Reader) *wireDecoder { return &wireDecoder{dec: gob.NewDecoder(r)} }

func (d *wireDecoder) decode() (wireFrame, error) {
	var f wireFrame
	err := d.dec.Decode(&f)
	return f, err
}
