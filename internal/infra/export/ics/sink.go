package ics

import (
	"bytes"
	"context"
	"errors"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"hostboard/internal/infra/storage/s3"
)

const contentType = "text/calendar; charset=utf-8"

// Sink stores one rendered feed and returns where it can be fetched.
type Sink interface {
	Put(ctx context.Context, name string, body []byte) (string, error)
}

// FileSink writes feeds below Dir. Files are replaced atomically.
type FileSink struct {
	Fs  afero.Fs
	Dir string
}

func NewFileSink(dir string) FileSink {
	return FileSink{Fs: afero.NewOsFs(), Dir: dir}
}

func (s FileSink) Put(ctx context.Context, name string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Fs == nil {
		return "", errors.New("ics: file sink has no filesystem")
	}
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return "", errors.New("ics: feed name is required")
	}
	if err := s.Fs.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(s.Dir, name)
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.Fs, tmp, body, 0o644); err != nil {
		return "", err
	}
	if err := s.Fs.Rename(tmp, target); err != nil {
		_ = s.Fs.Remove(tmp)
		return "", err
	}
	return target, nil
}

// BucketSink uploads feeds under Prefix.
type BucketSink struct {
	Uploader s3.Uploader
	Prefix   string
}

func (s BucketSink) Put(ctx context.Context, name string, body []byte) (string, error) {
	if s.Uploader == nil {
		return "", errors.New("ics: bucket sink has no uploader")
	}
	return s.Uploader.Upload(ctx, path.Join(s.Prefix, name), bytes.NewReader(body), int64(len(body)), contentType)
}
