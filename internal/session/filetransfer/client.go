package filetransfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// Client drives one file-transfer session's request/reply protocol from
// the caller side: one call corresponds to one upload or download.
type Client struct {
	Session   *mux.Session
	ChunkSize int
}

func (c *Client) chunkSize() int {
	if c.ChunkSize > 0 {
		return c.ChunkSize
	}
	return DefaultChunkSize
}

// UploadFile sends localPath to remotePath. When localPath is a
// directory the content is streamed as a single gzip-tar body. checksum
// may be empty to skip server-side verification.
func (c *Client) UploadFile(localPath, remotePath string, force bool, checksum string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local path: %w", err)
	}

	var size uint64
	if !info.IsDir() {
		size = uint64(info.Size())
	}

	if err := c.Session.Send(wire.StartUpload{
		Path:     remotePath,
		Size:     size,
		IsDir:    info.IsDir(),
		Force:    force,
		Checksum: checksum,
	}); err != nil {
		return err
	}

	p, err := c.Session.Recv()
	if err != nil {
		return err
	}
	ack, ok := p.(wire.UploadAck)
	if !ok {
		return fmt.Errorf("expected UploadAck, got %T", p)
	}
	if !ack.Accept {
		return fmt.Errorf("upload refused: %s", ack.Reason)
	}

	var src io.Reader
	if info.IsDir() {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(tarDirectory(localPath, pw))
		}()
		src = pr
	} else {
		file, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("open local file: %w", err)
		}
		defer file.Close()
		src = file
	}

	if err := c.streamFile(src); err != nil {
		return err
	}

	p, err = c.Session.Recv()
	if err != nil {
		return err
	}
	if errMsg, ok := p.(wire.ErrorMessage); ok {
		return fmt.Errorf("upload failed: %s", errMsg.Message)
	}
	if _, ok := p.(wire.Ok); !ok {
		return fmt.Errorf("expected Ok, got %T", p)
	}
	return nil
}

func (c *Client) streamFile(r io.Reader) error {
	buf := make([]byte, c.chunkSize())
	var seq uint64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			last := err == io.EOF
			if sendErr := c.Session.Send(wire.FileChunk{Seq: seq, Bytes: append([]byte(nil), buf[:n]...), Last: last}); sendErr != nil {
				return sendErr
			}
			seq++
			if last {
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return c.Session.Send(wire.FileChunk{Seq: seq, Bytes: nil, Last: true})
			}
			return fmt.Errorf("read local content: %w", err)
		}
	}
}

// DownloadSmallFile requests remotePath's full content in a single round
// trip. Use DownloadLargeFile for anything chunk-sized or bigger.
func (c *Client) DownloadSmallFile(remotePath string) ([]byte, error) {
	if err := c.Session.Send(wire.ReadFile{Path: remotePath}); err != nil {
		return nil, err
	}
	p, err := c.Session.Recv()
	if err != nil {
		return nil, err
	}
	switch v := p.(type) {
	case wire.FileContent:
		return v.Bytes, nil
	case wire.ErrorMessage:
		return nil, fmt.Errorf("download failed: %s", v.Message)
	default:
		return nil, fmt.Errorf("expected FileContent, got %T", p)
	}
}

// DownloadLargeFile pulls remotePath via Metadata+FileChunk* into
// localPath, verifying chunk ordering on receipt. If the remote path is
// a directory, the chunk stream is a gzip-tar body extracted into
// localPath.
func (c *Client) DownloadLargeFile(remotePath, localPath string) error {
	if err := c.Session.Send(wire.MetadataRequest{Path: remotePath}); err != nil {
		return err
	}
	p, err := c.Session.Recv()
	if err != nil {
		return err
	}
	reply, ok := p.(wire.MetadataReply)
	if !ok {
		if errMsg, ok := p.(wire.ErrorMessage); ok {
			return fmt.Errorf("metadata request failed: %s", errMsg.Message)
		}
		return fmt.Errorf("expected MetadataReply, got %T", p)
	}

	if reply.Meta.IsDir {
		pr, pw := io.Pipe()
		done := make(chan error, 1)
		go func() {
			done <- untarDirectory(pr, localPath)
		}()
		if err := c.receiveChunks(pw); err != nil {
			pw.CloseWithError(err)
			<-done
			return err
		}
		pw.Close()
		return <-done
	}

	file, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer file.Close()
	return c.receiveChunks(file)
}

func (c *Client) receiveChunks(w io.Writer) error {
	var expectedSeq uint64
	for {
		p, err := c.Session.Recv()
		if err != nil {
			return err
		}
		switch v := p.(type) {
		case wire.FileChunk:
			if v.Seq != expectedSeq {
				return fmt.Errorf("out of order chunk: got seq %d, want %d", v.Seq, expectedSeq)
			}
			if len(v.Bytes) > 0 {
				if _, err := w.Write(v.Bytes); err != nil {
					return fmt.Errorf("write local content: %w", err)
				}
			}
			expectedSeq++
			if v.Last {
				return nil
			}
		case wire.ErrorMessage:
			return fmt.Errorf("transfer failed: %s", v.Message)
		default:
			return fmt.Errorf("expected FileChunk, got %T", p)
		}
	}
}

// ChecksumFile returns the SHA-256 hex digest of a local file, and an
// empty string (no checksum) for a directory (directory checksums are not
// meaningful over a tar stream whose bytes vary run to run).
func ChecksumFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", nil
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
