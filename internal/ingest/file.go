package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// File is a single dropped or selected file.
type File interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// EncodedFile is a fully read file in its transferable form.
type EncodedFile struct {
	OriginalName string `json:"name"`
	Payload      string `json:"-"`
}

func Encode(name string, data []byte) EncodedFile {
	return EncodedFile{OriginalName: name, Payload: base64.StdEncoding.EncodeToString(data)}
}

func (f EncodedFile) Decode() ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.OriginalName, err)
	}
	return decoded, nil
}

// Accept is the declarative filter a drop is checked against before reading.
type Accept struct {
	MIMETypes  []string
	Extensions []string
}

var TorrentAccept = Accept{
	MIMETypes:  []string{"application/x-bittorrent"},
	Extensions: []string{".torrent"},
}

// Matches reports whether f's MIME type or extension is allowed.
func (a Accept) Matches(f File) bool {
	if mediaType, _, err := mime.ParseMediaType(f.ContentType()); err == nil {
		for _, allowed := range a.MIMETypes {
			if strings.EqualFold(mediaType, allowed) {
				return true
			}
		}
	}
	ext := filepath.Ext(f.Name())
	for _, allowed := range a.Extensions {
		if ext != "" && strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

func (a Accept) Filter(files []File) []File {
	accepted := make([]File, 0, len(files))
	for _, f := range files {
		if f != nil && a.Matches(f) {
			accepted = append(accepted, f)
		}
	}
	return accepted
}

type multipartFile struct {
	header *multipart.FileHeader
}

// FromMultipart adapts an uploaded form file.
func FromMultipart(header *multipart.FileHeader) File {
	return multipartFile{header: header}
}

func (m multipartFile) Name() string        { return m.header.Filename }
func (m multipartFile) ContentType() string { return m.header.Header.Get("Content-Type") }
func (m multipartFile) Size() int64         { return m.header.Size }

func (m multipartFile) Open() (io.ReadCloser, error) {
	return m.header.Open()
}

type memoryFile struct {
	name        string
	contentType string
	data        []byte
}

// NewMemoryFile wraps bytes already held in memory.
func NewMemoryFile(name, contentType string, data []byte) File {
	return memoryFile{name: name, contentType: contentType, data: data}
}

func (m memoryFile) Name() string        { return m.name }
func (m memoryFile) ContentType() string { return m.contentType }
func (m memoryFile) Size() int64         { return int64(len(m.data)) }

func (m memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}
