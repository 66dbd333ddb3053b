package recorder

import (
	"context"
	"os"
	"path/filepath"
)

// FileSink writes one JSON file per record into a directory, creating the
// directory on demand.
type FileSink struct {
	Dir string
}

func NewFileSink(dir string) *FileSink { return &FileSink{Dir: dir} }

func (s *FileSink) Type() string { return "file" }

// Path returns where a record with name is stored.
func (s *FileSink) Path(name string) string {
	return filepath.Join(s.Dir, name+".json")
}

func (s *FileSink) Write(_ context.Context, rec *Record) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path(rec.Name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(rec.Payload); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
