// Package filetransfer implements the chunked upload/download session:
// StartUpload/FileChunk on the way in, ReadFile/Metadata+FileChunk on the
// way out, with optional checksum verification, rate limiting, and a
// filesystem root restriction.
package filetransfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/shi-yan/kerr/internal/kerrors"
	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// DefaultChunkSize matches spec's default transfer chunk size.
const DefaultChunkSize = 64 * 1024

// Server implements the server side of the file transfer session: it
// handles a sequence of requests (StartUpload, ReadFile, or
// MetadataRequest) on one session, running each request's reply sequence
// to completion before reading the next.
type Server struct {
	// Root, when non-empty, restricts every request to paths contained
	// within it. Empty means unrestricted filesystem access.
	Root string

	ChunkSize            int
	RateLimitBytesPerSec int64
	VerifyChecksum       bool
}

func (srv *Server) chunkSize() int {
	if srv.ChunkSize > 0 {
		return srv.ChunkSize
	}
	return DefaultChunkSize
}

// normalizePath applies Unicode NFC normalization before any comparison
// or filesystem call, so two byte-distinct but canonically equal paths
// can't be used to smuggle a request past the root check below.
func normalizePath(path string) string {
	return filepath.Clean(norm.NFC.String(path))
}

func (srv *Server) resolvePath(path string) (string, error) {
	path = normalizePath(path)
	if srv.Root == "" {
		return path, nil
	}
	root, err := filepath.Abs(normalizePath(srv.Root))
	if err != nil {
		return "", kerrors.New(kerrors.KindIoError, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", kerrors.New(kerrors.KindIoError, err)
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", kerrors.Newf(kerrors.KindPermissionDenied, "path escapes filesystem root")
	}
	return abs, nil
}

// Serve loops handling one file-transfer request after another on the
// same session until the stream ends.
func (srv *Server) Serve(ctx context.Context, s *mux.Session) error {
	for {
		p, err := s.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch req := p.(type) {
		case wire.StartUpload:
			if err := srv.handleUpload(ctx, s, req); err != nil {
				return err
			}
		case wire.ReadFile:
			if err := srv.handleReadFile(s, req); err != nil {
				return err
			}
		case wire.MetadataRequest:
			if err := srv.handleMetadataPull(ctx, s, req); err != nil {
				return err
			}
		default:
			s.Logger.Warn("file transfer session received unexpected payload", "type", fmt.Sprintf("%T", p))
			return kerrors.Newf(kerrors.KindProtocolViolation, "unexpected payload in file transfer session")
		}
	}
}

func (srv *Server) handleUpload(ctx context.Context, s *mux.Session, req wire.StartUpload) error {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		_ = s.Send(wire.UploadAck{Accept: false, Reason: kerrors.Message(err)})
		return nil
	}

	if info, statErr := os.Stat(target); statErr == nil {
		if info.IsDir() != req.IsDir {
			_ = s.Send(wire.UploadAck{Accept: false, Reason: "existing path has a different type"})
			return nil
		}
		if !req.Force {
			_ = s.Send(wire.UploadAck{Accept: false, Reason: "exists"})
			return nil
		}
	} else if !os.IsNotExist(statErr) {
		_ = s.Send(wire.UploadAck{Accept: false, Reason: statErr.Error()})
		return nil
	}

	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		_ = s.Send(wire.UploadAck{Accept: false, Reason: "parent directory unwritable"})
		return nil
	}

	if err := s.Send(wire.UploadAck{Accept: true}); err != nil {
		return err
	}

	hasher := sha256.New()
	var pipeWriter *io.PipeWriter
	var untarErrCh chan error
	var dest io.Writer

	if req.IsDir {
		if err := os.MkdirAll(target, 0755); err != nil {
			_ = s.SendError(fmt.Sprintf("create directory: %v", err))
			return nil
		}
		pr, pw := io.Pipe()
		pipeWriter = pw
		untarErrCh = make(chan error, 1)
		go func() {
			untarErrCh <- untarDirectory(pr, target)
		}()
		dest = &pipeAndHashWriter{pw: pw, hasher: hasher}
	} else {
		file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			_ = s.SendError(fmt.Sprintf("create file: %v", err))
			return nil
		}
		defer file.Close()
		dest = io.MultiWriter(file, hasher)
	}

	if srv.RateLimitBytesPerSec > 0 {
		dest = newRateLimitedWriter(ctx, dest, srv.RateLimitBytesPerSec)
	}

	// abortDir closes the tar pipe (if any) and waits for the untar
	// goroutine to unwind before the caller removes the directory,
	// since removing it while the goroutine still writes would race.
	abortDir := func() {
		if pipeWriter == nil {
			return
		}
		pipeWriter.CloseWithError(io.ErrClosedPipe)
		<-untarErrCh
	}

	var expectedSeq uint64
	for {
		p, err := s.Recv()
		if err != nil {
			abortDir()
			srv.abortUpload(target, req.IsDir)
			return err
		}
		fc, ok := p.(wire.FileChunk)
		if !ok {
			abortDir()
			srv.abortUpload(target, req.IsDir)
			_ = s.SendError("expected FileChunk")
			return kerrors.Newf(kerrors.KindProtocolViolation, fmt.Sprintf("expected FileChunk, got %T", p))
		}
		if fc.Seq != expectedSeq {
			abortDir()
			srv.abortUpload(target, req.IsDir)
			_ = s.SendError("out of order chunk")
			return kerrors.Newf(kerrors.KindProtocolViolation, fmt.Sprintf("out of order chunk: got seq %d, want %d", fc.Seq, expectedSeq))
		}
		if _, err := dest.Write(fc.Bytes); err != nil {
			abortDir()
			srv.abortUpload(target, req.IsDir)
			_ = s.SendError(fmt.Sprintf("write failed: %v", err))
			return kerrors.New(kerrors.KindIoError, err)
		}
		expectedSeq++
		if fc.Last {
			break
		}
	}

	if pipeWriter != nil {
		pipeWriter.Close()
		if err := <-untarErrCh; err != nil {
			srv.abortUpload(target, req.IsDir)
			_ = s.SendError(fmt.Sprintf("extract failed: %v", err))
			return kerrors.New(kerrors.KindIoError, err)
		}
	}

	if srv.VerifyChecksum && req.Checksum != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, req.Checksum) {
			srv.abortUpload(target, req.IsDir)
			_ = s.SendError("checksum mismatch")
			return kerrors.Newf(kerrors.KindProtocolViolation, fmt.Sprintf("checksum mismatch: got %s, want %s", sum, req.Checksum))
		}
	}

	return s.Send(wire.Ok{})
}

// pipeAndHashWriter feeds both the untar pipe and the checksum hasher,
// closing the pipe writer only once the upload loop finishes.
type pipeAndHashWriter struct {
	pw     *io.PipeWriter
	hasher io.Writer
}

func (w *pipeAndHashWriter) Write(p []byte) (int, error) {
	if _, err := w.hasher.Write(p); err != nil {
		return 0, err
	}
	return w.pw.Write(p)
}

// abortUpload enforces "no partial success": on any fatal error the
// partially written target is removed rather than left truncated.
func (srv *Server) abortUpload(target string, isDir bool) {
	if isDir {
		_ = os.RemoveAll(target)
		return
	}
	_ = os.Remove(target)
}

func (srv *Server) handleReadFile(s *mux.Session, req wire.ReadFile) error {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		return s.SendError(kerrors.Message(err))
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return s.SendError("not found")
		}
		return s.SendError(err.Error())
	}
	return s.Send(wire.FileContent{Bytes: data})
}

func (srv *Server) handleMetadataPull(ctx context.Context, s *mux.Session, req wire.MetadataRequest) error {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		return s.SendError(kerrors.Message(err))
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return s.SendError("not found")
		}
		return s.SendError(err.Error())
	}

	meta := wire.FileMeta{
		Size:        uint64(info.Size()),
		IsDir:       info.IsDir(),
		Modified:    info.ModTime().Unix(),
		HasModified: true,
	}
	if err := s.Send(wire.MetadataReply{Meta: meta}); err != nil {
		return err
	}

	if info.IsDir() {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(tarDirectory(target, pw))
		}()
		return srv.streamChunks(ctx, s, pr)
	}

	file, err := os.Open(target)
	if err != nil {
		return s.SendError(err.Error())
	}
	defer file.Close()
	return srv.streamChunks(ctx, s, file)
}

func (srv *Server) streamChunks(ctx context.Context, s *mux.Session, r io.Reader) error {
	var src io.Reader = r
	if srv.RateLimitBytesPerSec > 0 {
		pr, pw := io.Pipe()
		limited := newRateLimitedWriter(ctx, pw, srv.RateLimitBytesPerSec)
		go func() {
			_, err := io.Copy(limited, r)
			pw.CloseWithError(err)
		}()
		src = pr
	}

	buf := make([]byte, srv.chunkSize())
	var seq uint64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			last := err == io.EOF
			if sendErr := s.Send(wire.FileChunk{Seq: seq, Bytes: append([]byte(nil), buf[:n]...), Last: last}); sendErr != nil {
				return sendErr
			}
			seq++
			if last {
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return s.Send(wire.FileChunk{Seq: seq, Bytes: nil, Last: true})
			}
			_ = s.SendError(err.Error())
			return kerrors.New(kerrors.KindIoError, err)
		}
	}
}
