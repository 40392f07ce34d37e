// Package browser implements the filesystem browser session: a plain
// request/reply loop over ListDir/ReadFile/WriteFile/DeleteFile/
// Metadata/FileExists, one reply per request in the order received.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/wire"
)

// MaxReadFileSize bounds ReadFile per spec; larger files must go through
// the file transfer session instead.
const MaxReadFileSize = 16 * 1024 * 1024

// Server implements the server side of the filesystem browser session.
type Server struct {
	// Root, when non-empty, restricts every request to paths contained
	// within it. Empty means unrestricted filesystem access.
	Root string
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
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes filesystem root")
	}
	return abs, nil
}

// Serve answers one request per Recv with exactly one reply, never
// ending the session on a per-request filesystem error.
func (srv *Server) Serve(ctx context.Context, s *mux.Session) error {
	for {
		p, err := s.Recv()
		if err != nil {
			return nil
		}

		switch req := p.(type) {
		case wire.ListDir:
			srv.handleListDir(s, req)
		case wire.ReadFile:
			srv.handleReadFile(s, req)
		case wire.WriteFile:
			srv.handleWriteFile(s, req)
		case wire.DeleteFile:
			srv.handleDeleteFile(s, req)
		case wire.MetadataRequest:
			srv.handleMetadata(s, req)
		case wire.FileExists:
			srv.handleExists(s, req)
		default:
			_ = s.SendError(fmt.Sprintf("unexpected payload %T", p))
		}
	}
}

func (srv *Server) handleListDir(s *mux.Session, req wire.ListDir) {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}

	out := make([]wire.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		var size uint64
		var modified int64
		hasModified := err == nil
		if err == nil {
			size = uint64(info.Size())
			modified = info.ModTime().Unix()
		}
		out = append(out, wire.DirEntry{
			Name:        e.Name(),
			Path:        filepath.Join(req.Path, e.Name()),
			IsDir:       e.IsDir(),
			Size:        size,
			Modified:    modified,
			HasModified: hasModified,
		})
	}
	_ = s.Send(wire.DirListing{Entries: out})
}

func (srv *Server) handleReadFile(s *mux.Session, req wire.ReadFile) {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}
	info, err := os.Stat(target)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}
	if info.Size() > MaxReadFileSize {
		_ = s.SendError("file too large")
		return
	}
	data, err := os.ReadFile(target)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}
	_ = s.Send(wire.FileContent{Bytes: data})
}

func (srv *Server) handleWriteFile(s *mux.Session, req wire.WriteFile) {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		_ = s.SendError("parent directory does not exist")
		return
	}
	if err := os.WriteFile(target, req.Bytes, 0644); err != nil {
		_ = s.SendError(err.Error())
		return
	}
	_ = s.Send(wire.Ok{})
}

func (srv *Server) handleDeleteFile(s *mux.Session, req wire.DeleteFile) {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}

	info, err := os.Stat(target)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}

	if info.IsDir() {
		entries, err := os.ReadDir(target)
		if err != nil {
			_ = s.SendError(err.Error())
			return
		}
		if len(entries) > 0 && !req.Recursive {
			_ = s.SendError("directory is not empty")
			return
		}
		if req.Recursive {
			err = os.RemoveAll(target)
		} else {
			err = os.Remove(target)
		}
	} else {
		err = os.Remove(target)
	}

	if err != nil {
		_ = s.SendError(err.Error())
		return
	}
	_ = s.Send(wire.Ok{})
}

func (srv *Server) handleMetadata(s *mux.Session, req wire.MetadataRequest) {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}
	info, err := os.Stat(target)
	if err != nil {
		_ = s.SendError(err.Error())
		return
	}
	_ = s.Send(wire.MetadataReply{Meta: wire.FileMeta{
		Size:        uint64(info.Size()),
		IsDir:       info.IsDir(),
		Modified:    info.ModTime().Unix(),
		HasModified: true,
	}})
}

func (srv *Server) handleExists(s *mux.Session, req wire.FileExists) {
	target, err := srv.resolvePath(req.Path)
	if err != nil {
		_ = s.Send(wire.ExistsReply{Exists: false})
		return
	}
	_, err = os.Stat(target)
	_ = s.Send(wire.ExistsReply{Exists: err == nil})
}
