package stream

import (
	"os"
	"time"
)

// EntryInfo describes a file, directory or remote object.
type EntryInfo struct {
	Name     string            `json:"name"`
	Size     int64             `json:"size"`
	ModTime  time.Time         `json:"modTime"`
	Mode     os.FileMode       `json:"mode"`
	IsDir    bool              `json:"isDir"`
	Path     string            `json:"path"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ToFileInfo converts EntryInfo to a standard os.FileInfo.
func (e *EntryInfo) ToFileInfo() os.FileInfo {
	return &entryFileInfoWrap{e}
}

type entryFileInfoWrap struct {
	e *EntryInfo
}

func (w *entryFileInfoWrap) Name() string       { return w.e.Name }
func (w *entryFileInfoWrap) Size() int64        { return w.e.Size }
func (w *entryFileInfoWrap) Mode() os.FileMode  { return w.e.Mode }
func (w *entryFileInfoWrap) ModTime() time.Time { return w.e.ModTime }
func (w *entryFileInfoWrap) IsDir() bool        { return w.e.IsDir }
func (w *entryFileInfoWrap) Sys() any           { return nil }

// EntryFromFileInfo converts a standard os.FileInfo located at path.
func EntryFromFileInfo(path string, fi os.FileInfo) *EntryInfo {
	return &EntryInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Mode:    fi.Mode(),
		IsDir:   fi.IsDir(),
		Path:    path,
	}
}

// LockOp is an advisory lock operation.
type LockOp int

const (
	LockShared LockOp = 1 << iota
	LockExclusive
	LockUnlock
	// LockNonBlocking may be or'ed with the others.
	LockNonBlocking
)

// MetaData describes an open stream.
type MetaData struct {
	TimedOut    bool   `json:"timedOut"`
	Blocked     bool   `json:"blocked"`
	EOF         bool   `json:"eof"`
	WrapperType string `json:"wrapperType"`
	StreamType  string `json:"streamType"`
	Mode        Mode   `json:"mode"`
	UnreadBytes int    `json:"unreadBytes"`
	Seekable    bool   `json:"seekable"`
	URI         string `json:"uri"`
	WrapperData any    `json:"wrapperData,omitempty"`
}
