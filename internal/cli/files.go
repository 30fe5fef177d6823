package cli

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fruitsalade/filebrowser/pkg/models"
)

// sniffLen is how many bytes http.DetectContentType looks at.
const sniffLen = 512

// detectType returns the MIME type of a local file: by extension first, then
// by content.
func detectType(name string) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

// localFile describes one local file as an upload. dir is the relative
// remote subdirectory, slash-separated.
func localFile(name, dir string, info fs.FileInfo) (models.UploadFile, error) {
	typ, err := detectType(name)
	if err != nil {
		return models.UploadFile{}, err
	}
	return models.UploadFile{
		Name: info.Name(),
		Dir:  dir,
		Size: info.Size(),
		Type: typ,
		Open: func() (io.ReadCloser, error) {
			return os.Open(name)
		},
	}, nil
}

// collectFiles turns command-line paths into uploads. Directories are only
// accepted with recursive set; their files keep the tree below the
// directory's own name.
func collectFiles(args []string, recursive bool) ([]models.UploadFile, error) {
	var files []models.UploadFile
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			f, err := localFile(arg, "", info)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use -r)", arg)
		}

		root, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		// "." and ".." name the directory they resolve to; a filesystem
		// root has no name and uploads straight into the destination.
		base := cleanRemote(filepath.ToSlash(filepath.Base(root)))
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, filepath.Dir(p))
			if err != nil {
				return err
			}
			dir := base
			if rel != "." {
				dir = models.JoinPath(base, filepath.ToSlash(rel))
			}
			f, err := localFile(p, dir, info)
			if err != nil {
				return err
			}
			files = append(files, f)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
