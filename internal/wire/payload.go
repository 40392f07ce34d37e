package wire

import "fmt"

// Tag identifies which payload variant follows the envelope's session_id
// in the wire encoding. Client-to-server and server-to-client tags share
// one numbering space; direction is implied by which tag appears.
type Tag uint8

const (
	TagHello Tag = iota + 1
	TagInput
	TagResize
	TagDisconnect
	TagStartUpload
	TagFileChunk
	TagListDir
	TagReadFile
	TagWriteFile
	TagDeleteFile
	TagMetadata
	TagFileExists
	TagTcpOpen
	TagTcpData
	TagTcpClose
	TagPingRequest

	TagOutput
	TagErrorMessage
	TagUploadAck
	TagDirListing
	TagFileContent
	TagMetadataReply
	TagExistsReply
	TagOk
	TagTcpOpened
	TagPingReply
)

// SessionKind names which session handler a Hello payload is requesting.
type SessionKind uint8

const (
	SessionShell SessionKind = iota + 1
	SessionFileTransfer
	SessionFileBrowser
	SessionTcpRelay
	SessionPing
)

func (k SessionKind) String() string {
	switch k {
	case SessionShell:
		return "Shell"
	case SessionFileTransfer:
		return "FileTransfer"
	case SessionFileBrowser:
		return "FileBrowser"
	case SessionTcpRelay:
		return "TcpRelay"
	case SessionPing:
		return "Ping"
	default:
		return "Unknown"
	}
}

// Payload is a single typed envelope body. Every variant knows its own
// Tag and how to append itself to a byteWriter; decoding is dispatched
// from decodePayload by tag.
type Payload interface {
	Tag() Tag
	encode(w *byteWriter)
}

func decodePayload(tag Tag, r *byteReader) (Payload, error) {
	switch tag {
	case TagHello:
		return decodeHello(r)
	case TagInput:
		return decodeInput(r)
	case TagResize:
		return decodeResize(r)
	case TagDisconnect:
		return Disconnect{}, nil
	case TagStartUpload:
		return decodeStartUpload(r)
	case TagFileChunk:
		return decodeFileChunk(r)
	case TagListDir:
		return decodeListDir(r)
	case TagReadFile:
		return decodeReadFile(r)
	case TagWriteFile:
		return decodeWriteFile(r)
	case TagDeleteFile:
		return decodeDeleteFile(r)
	case TagMetadata:
		return decodeMetadataReq(r)
	case TagFileExists:
		return decodeFileExists(r)
	case TagTcpOpen:
		return decodeTcpOpen(r)
	case TagTcpData:
		return decodeTcpData(r)
	case TagTcpClose:
		return decodeTcpClose(r)
	case TagPingRequest:
		return decodePingRequest(r)
	case TagOutput:
		return decodeOutput(r)
	case TagErrorMessage:
		return decodeErrorMessage(r)
	case TagUploadAck:
		return decodeUploadAck(r)
	case TagDirListing:
		return decodeDirListing(r)
	case TagFileContent:
		return decodeFileContent(r)
	case TagMetadataReply:
		return decodeMetadataReply(r)
	case TagExistsReply:
		return decodeExistsReply(r)
	case TagOk:
		return Ok{}, nil
	case TagTcpOpened:
		return decodeTcpOpened(r)
	case TagPingReply:
		return decodePingReply(r)
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownTag, tag)
	}
}

// --- Client -> Server -------------------------------------------------

// Hello names the session kind a freshly opened stream is requesting.
type Hello struct{ Kind SessionKind }

func (Hello) Tag() Tag              { return TagHello }
func (h Hello) encode(w *byteWriter) { w.putByte(byte(h.Kind)) }
func decodeHello(r *byteReader) (Hello, error) {
	b, err := r.getByte()
	return Hello{Kind: SessionKind(b)}, err
}

// Input carries raw bytes to write to the server-side PTY.
type Input struct{ Bytes []byte }

func (Input) Tag() Tag               { return TagInput }
func (p Input) encode(w *byteWriter) { w.putBytes32(p.Bytes) }
func decodeInput(r *byteReader) (Input, error) {
	b, err := r.getBytes32()
	return Input{Bytes: b}, err
}

// Resize requests a new PTY size.
type Resize struct{ Cols, Rows uint16 }

func (Resize) Tag() Tag { return TagResize }
func (p Resize) encode(w *byteWriter) {
	w.putUint16(p.Cols)
	w.putUint16(p.Rows)
}
func decodeResize(r *byteReader) (Resize, error) {
	cols, err := r.getUint16()
	if err != nil {
		return Resize{}, err
	}
	rows, err := r.getUint16()
	return Resize{Cols: cols, Rows: rows}, err
}

// Disconnect requests graceful session shutdown.
type Disconnect struct{}

func (Disconnect) Tag() Tag          { return TagDisconnect }
func (Disconnect) encode(*byteWriter) {}

// StartUpload begins a file (or, with IsDir, a gzip-tar-encoded
// directory) upload. Checksum is an optional SHA-256 hex digest of the
// complete body as transferred (for IsDir, the gzip-tar stream); an
// empty string means the
// upload carries no checksum and the server skips verification.
type StartUpload struct {
	Path     string
	Size     uint64
	IsDir    bool
	Force    bool
	Checksum string
}

func (StartUpload) Tag() Tag { return TagStartUpload }
func (p StartUpload) encode(w *byteWriter) {
	w.putString32(p.Path)
	w.putUint64(p.Size)
	w.putBool(p.IsDir)
	w.putBool(p.Force)
	w.putString32(p.Checksum)
}
func decodeStartUpload(r *byteReader) (StartUpload, error) {
	var p StartUpload
	var err error
	if p.Path, err = r.getString32(); err != nil {
		return p, err
	}
	if p.Size, err = r.getUint64(); err != nil {
		return p, err
	}
	if p.IsDir, err = r.getBool(); err != nil {
		return p, err
	}
	if p.Force, err = r.getBool(); err != nil {
		return p, err
	}
	p.Checksum, err = r.getString32()
	return p, err
}

// FileChunk carries one sequenced slice of a file transfer, used in both
// directions (upload chunks from the client, download chunks from the
// server).
type FileChunk struct {
	Seq   uint64
	Bytes []byte
	Last  bool
}

func (FileChunk) Tag() Tag { return TagFileChunk }
func (p FileChunk) encode(w *byteWriter) {
	w.putUint64(p.Seq)
	w.putBytes32(p.Bytes)
	w.putBool(p.Last)
}
func decodeFileChunk(r *byteReader) (FileChunk, error) {
	var p FileChunk
	var err error
	if p.Seq, err = r.getUint64(); err != nil {
		return p, err
	}
	if p.Bytes, err = r.getBytes32(); err != nil {
		return p, err
	}
	p.Last, err = r.getBool()
	return p, err
}

// ListDir requests a directory listing.
type ListDir struct{ Path string }

func (ListDir) Tag() Tag               { return TagListDir }
func (p ListDir) encode(w *byteWriter) { w.putString32(p.Path) }
func decodeListDir(r *byteReader) (ListDir, error) {
	p, err := r.getString32()
	return ListDir{Path: p}, err
}

// ReadFile requests the content of a small file.
type ReadFile struct{ Path string }

func (ReadFile) Tag() Tag               { return TagReadFile }
func (p ReadFile) encode(w *byteWriter) { w.putString32(p.Path) }
func decodeReadFile(r *byteReader) (ReadFile, error) {
	p, err := r.getString32()
	return ReadFile{Path: p}, err
}

// WriteFile writes a small file's full content in one request.
type WriteFile struct {
	Path  string
	Bytes []byte
}

func (WriteFile) Tag() Tag { return TagWriteFile }
func (p WriteFile) encode(w *byteWriter) {
	w.putString32(p.Path)
	w.putBytes32(p.Bytes)
}
func decodeWriteFile(r *byteReader) (WriteFile, error) {
	var p WriteFile
	var err error
	if p.Path, err = r.getString32(); err != nil {
		return p, err
	}
	p.Bytes, err = r.getBytes32()
	return p, err
}

// DeleteFile removes a file, or a directory when Recursive is set.
type DeleteFile struct {
	Path      string
	Recursive bool
}

func (DeleteFile) Tag() Tag { return TagDeleteFile }
func (p DeleteFile) encode(w *byteWriter) {
	w.putString32(p.Path)
	w.putBool(p.Recursive)
}
func decodeDeleteFile(r *byteReader) (DeleteFile, error) {
	var p DeleteFile
	var err error
	if p.Path, err = r.getString32(); err != nil {
		return p, err
	}
	p.Recursive, err = r.getBool()
	return p, err
}

// MetadataRequest asks for a single path's metadata.
type MetadataRequest struct{ Path string }

func (MetadataRequest) Tag() Tag               { return TagMetadata }
func (p MetadataRequest) encode(w *byteWriter) { w.putString32(p.Path) }
func decodeMetadataReq(r *byteReader) (MetadataRequest, error) {
	p, err := r.getString32()
	return MetadataRequest{Path: p}, err
}

// FileExists asks whether a path exists.
type FileExists struct{ Path string }

func (FileExists) Tag() Tag               { return TagFileExists }
func (p FileExists) encode(w *byteWriter) { w.putString32(p.Path) }
func decodeFileExists(r *byteReader) (FileExists, error) {
	p, err := r.getString32()
	return FileExists{Path: p}, err
}

// TcpOpen requests a forwarded TCP connection to remote_port on the
// opposite side.
type TcpOpen struct {
	StreamID   uint64
	RemotePort uint16
}

func (TcpOpen) Tag() Tag { return TagTcpOpen }
func (p TcpOpen) encode(w *byteWriter) {
	w.putUint64(p.StreamID)
	w.putUint16(p.RemotePort)
}
func decodeTcpOpen(r *byteReader) (TcpOpen, error) {
	var p TcpOpen
	var err error
	if p.StreamID, err = r.getUint64(); err != nil {
		return p, err
	}
	p.RemotePort, err = r.getUint16()
	return p, err
}

// TcpData carries forwarded bytes for an open relay stream, in either
// direction.
type TcpData struct {
	StreamID uint64
	Bytes    []byte
}

func (TcpData) Tag() Tag { return TagTcpData }
func (p TcpData) encode(w *byteWriter) {
	w.putUint64(p.StreamID)
	w.putBytes32(p.Bytes)
}
func decodeTcpData(r *byteReader) (TcpData, error) {
	var p TcpData
	var err error
	if p.StreamID, err = r.getUint64(); err != nil {
		return p, err
	}
	p.Bytes, err = r.getBytes32()
	return p, err
}

// TcpClose closes both directions of a relay stream, sent by either side.
type TcpClose struct{ StreamID uint64 }

func (TcpClose) Tag() Tag               { return TagTcpClose }
func (p TcpClose) encode(w *byteWriter) { w.putUint64(p.StreamID) }
func decodeTcpClose(r *byteReader) (TcpClose, error) {
	id, err := r.getUint64()
	return TcpClose{StreamID: id}, err
}

// PingRequest asks the peer to echo back a payload of the given size.
type PingRequest struct {
	ID          uint64
	PayloadSize uint32
	EchoBytes   bool
	Payload     []byte
}

func (PingRequest) Tag() Tag { return TagPingRequest }
func (p PingRequest) encode(w *byteWriter) {
	w.putUint64(p.ID)
	w.putUint32(p.PayloadSize)
	w.putBool(p.EchoBytes)
	w.putBytes32(p.Payload)
}
func decodePingRequest(r *byteReader) (PingRequest, error) {
	var p PingRequest
	var err error
	if p.ID, err = r.getUint64(); err != nil {
		return p, err
	}
	if p.PayloadSize, err = r.getUint32(); err != nil {
		return p, err
	}
	if p.EchoBytes, err = r.getBool(); err != nil {
		return p, err
	}
	p.Payload, err = r.getBytes32()
	return p, err
}

// --- Server -> Client -------------------------------------------------

// Output carries raw bytes read from the server-side PTY.
type Output struct{ Bytes []byte }

func (Output) Tag() Tag               { return TagOutput }
func (p Output) encode(w *byteWriter) { w.putBytes32(p.Bytes) }
func decodeOutput(r *byteReader) (Output, error) {
	b, err := r.getBytes32()
	return Output{Bytes: b}, err
}

// ErrorMessage reports a session-local or fatal error to the peer.
type ErrorMessage struct{ Message string }

func (ErrorMessage) Tag() Tag               { return TagErrorMessage }
func (p ErrorMessage) encode(w *byteWriter) { w.putString32(p.Message) }
func decodeErrorMessage(r *byteReader) (ErrorMessage, error) {
	m, err := r.getString32()
	return ErrorMessage{Message: m}, err
}

// UploadAck answers StartUpload.
type UploadAck struct {
	Accept bool
	Reason string
}

func (UploadAck) Tag() Tag { return TagUploadAck }
func (p UploadAck) encode(w *byteWriter) {
	w.putBool(p.Accept)
	w.putString32(p.Reason)
}
func decodeUploadAck(r *byteReader) (UploadAck, error) {
	var p UploadAck
	var err error
	if p.Accept, err = r.getBool(); err != nil {
		return p, err
	}
	p.Reason, err = r.getString32()
	return p, err
}

// DirEntry is one entry of a DirListing reply.
type DirEntry struct {
	Name        string
	Path        string
	IsDir       bool
	Size        uint64
	Modified    int64
	HasModified bool
}

// DirListing answers ListDir.
type DirListing struct{ Entries []DirEntry }

func (DirListing) Tag() Tag { return TagDirListing }
func (p DirListing) encode(w *byteWriter) {
	w.putUint32(uint32(len(p.Entries)))
	for _, e := range p.Entries {
		w.putString32(e.Name)
		w.putString32(e.Path)
		w.putBool(e.IsDir)
		w.putUint64(e.Size)
		w.putBool(e.HasModified)
		w.putInt64(e.Modified)
	}
}
func decodeDirListing(r *byteReader) (DirListing, error) {
	n, err := r.getUint32()
	if err != nil {
		return DirListing{}, err
	}
	if n > (MaxFrameSize / 8) {
		return DirListing{}, fmt.Errorf("%w: DirListing entry count implausibly large", ErrInvalidFrame)
	}
	entries := make([]DirEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		var e DirEntry
		if e.Name, err = r.getString32(); err != nil {
			return DirListing{}, err
		}
		if e.Path, err = r.getString32(); err != nil {
			return DirListing{}, err
		}
		if e.IsDir, err = r.getBool(); err != nil {
			return DirListing{}, err
		}
		if e.Size, err = r.getUint64(); err != nil {
			return DirListing{}, err
		}
		if e.HasModified, err = r.getBool(); err != nil {
			return DirListing{}, err
		}
		if e.Modified, err = r.getInt64(); err != nil {
			return DirListing{}, err
		}
		entries = append(entries, e)
	}
	return DirListing{Entries: entries}, nil
}

// FileContent answers ReadFile.
type FileContent struct{ Bytes []byte }

func (FileContent) Tag() Tag               { return TagFileContent }
func (p FileContent) encode(w *byteWriter) { w.putBytes32(p.Bytes) }
func decodeFileContent(r *byteReader) (FileContent, error) {
	b, err := r.getBytes32()
	return FileContent{Bytes: b}, err
}

// FileMeta is the metadata payload shared by MetadataReply entries and
// DirListing entries' size/modified fields are inlined directly rather
// than nesting this type, matching the wire format's flat field order.
type FileMeta struct {
	Size        uint64
	IsDir       bool
	Modified    int64
	HasModified bool
}

// MetadataReply answers MetadataRequest.
type MetadataReply struct{ Meta FileMeta }

func (MetadataReply) Tag() Tag { return TagMetadataReply }
func (p MetadataReply) encode(w *byteWriter) {
	w.putUint64(p.Meta.Size)
	w.putBool(p.Meta.IsDir)
	w.putBool(p.Meta.HasModified)
	w.putInt64(p.Meta.Modified)
}
func decodeMetadataReply(r *byteReader) (MetadataReply, error) {
	var p MetadataReply
	var err error
	if p.Meta.Size, err = r.getUint64(); err != nil {
		return p, err
	}
	if p.Meta.IsDir, err = r.getBool(); err != nil {
		return p, err
	}
	if p.Meta.HasModified, err = r.getBool(); err != nil {
		return p, err
	}
	p.Meta.Modified, err = r.getInt64()
	return p, err
}

// ExistsReply answers FileExists.
type ExistsReply struct{ Exists bool }

func (ExistsReply) Tag() Tag               { return TagExistsReply }
func (p ExistsReply) encode(w *byteWriter) { w.putBool(p.Exists) }
func decodeExistsReply(r *byteReader) (ExistsReply, error) {
	b, err := r.getBool()
	return ExistsReply{Exists: b}, err
}

// Ok is a bare success reply, used by WriteFile and DeleteFile.
type Ok struct{}

func (Ok) Tag() Tag          { return TagOk }
func (Ok) encode(*byteWriter) {}

// TcpOpened answers TcpOpen.
type TcpOpened struct {
	StreamID uint64
	Ok       bool
	Reason   string
}

func (TcpOpened) Tag() Tag { return TagTcpOpened }
func (p TcpOpened) encode(w *byteWriter) {
	w.putUint64(p.StreamID)
	w.putBool(p.Ok)
	w.putString32(p.Reason)
}
func decodeTcpOpened(r *byteReader) (TcpOpened, error) {
	var p TcpOpened
	var err error
	if p.StreamID, err = r.getUint64(); err != nil {
		return p, err
	}
	if p.Ok, err = r.getBool(); err != nil {
		return p, err
	}
	p.Reason, err = r.getString32()
	return p, err
}

// PingReply answers PingRequest.
type PingReply struct {
	ID    uint64
	Bytes []byte
}

func (PingReply) Tag() Tag { return TagPingReply }
func (p PingReply) encode(w *byteWriter) {
	w.putUint64(p.ID)
	w.putBytes32(p.Bytes)
}
func decodePingReply(r *byteReader) (PingReply, error) {
	var p PingReply
	var err error
	if p.ID, err = r.getUint64(); err != nil {
		return p, err
	}
	p.Bytes, err = r.getBytes32()
	return p, err
}
