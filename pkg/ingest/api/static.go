package api

import (
	"io/fs"
	"net/http"
	"strings"
)

// dotlessFS hides every dot-prefixed name, including the temp files an
// in-flight upload writes next to its target.
type dotlessFS struct {
	fs http.FileSystem
}

func (d dotlessFS) Open(name string) (http.File, error) {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return nil, fs.ErrNotExist
		}
	}
	f, err := d.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return dotlessFile{f}, nil
}

type dotlessFile struct {
	http.File
}

func (f dotlessFile) Readdir(n int) ([]fs.FileInfo, error) {
	infos, err := f.File.Readdir(n)
	visible := infos[:0]
	for _, info := range infos {
		if !strings.HasPrefix(info.Name(), ".") {
			visible = append(visible, info)
		}
	}
	return visible, err
}
