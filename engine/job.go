package engine

import (
	"context"
	"io"

	"github.com/franksops/gocopy/provider"
)

// CopyJob describes copying a single file from a source provider to a
// destination provider. It is created by the Partitioner and never modified.
type CopyJob struct {
	// ID is unique per run and keys the job in the state store.
	ID string

	// QueueID is the index of the worker queue the job was assigned to.
	QueueID int

	// SourcePath is the file path to read from the source provider.
	SourcePath string

	// DestinationPath is the file path to write to the destination provider.
	DestinationPath string

	// FileInfo holds the metadata of the source file to be preserved at the
	// destination.
	FileInfo provider.FileInfo
}

// CopyResult is what a successful Execute reports back.
type CopyResult struct {
	Bytes    int64
	Checksum uint64 // CRC64-ISO of the bytes read
}

// CopyOptions tunes a single Execute call.
type CopyOptions struct {
	// Buffer is used for the copy loop. A 32KB buffer is allocated when empty.
	Buffer []byte

	// WrapWriter, when set, wraps the destination writer, e.g. for
	// checkpointing.
	WrapWriter func(io.Writer) io.Writer
}

// JobHandler is a function that processes a CopyJob.
type JobHandler func(context.Context, CopyJob) (CopyResult, error)

// Execute streams the raw bytes of SourcePath into DestinationPath. The
// destination only appears once all bytes are written; on failure whatever was
// written is discarded and an *IOError is returned.
func (j CopyJob) Execute(ctx context.Context, src, dst provider.Provider, opts CopyOptions) (CopyResult, error) {
	r, err := src.OpenRead(ctx, j.SourcePath)
	if err != nil {
		return CopyResult{}, &IOError{Op: "open", Path: j.SourcePath, Err: err}
	}
	defer r.Close()

	w, err := dst.OpenWrite(ctx, j.DestinationPath, j.FileInfo)
	if err != nil {
		return CopyResult{}, &IOError{Op: "create", Path: j.DestinationPath, Err: err}
	}

	// Hiding ReaderFrom keeps os.File from bypassing the buffer.
	var out io.Writer = struct{ io.Writer }{w}
	if opts.WrapWriter != nil {
		out = opts.WrapWriter(out)
	}

	buf := opts.Buffer
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	// ChecksumReader hides any WriterTo on r.
	cr := NewChecksumReader(r)
	if _, err := io.CopyBuffer(out, cr, buf); err != nil {
		_ = provider.Abort(w)
		return CopyResult{}, &IOError{Op: "copy", Path: j.DestinationPath, Err: err}
	}

	if err := w.Close(); err != nil {
		return CopyResult{}, &IOError{Op: "commit", Path: j.DestinationPath, Err: err}
	}

	return CopyResult{Bytes: cr.BytesRead(), Checksum: cr.Checksum()}, nil
}
