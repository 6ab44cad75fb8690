package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

const exportStampLayout = "20060102_150405"

// Export copies every regular file of an event into a new directory
// export_<id>_<YYYYMMDD_HHMMSS> under destRoot. It never writes into an
// existing directory. The bundle dir and the copied file names are returned.
func (s *Store) Export(eventID uuid.UUID, destRoot string) (string, []string, error) {
	files, err := s.ListFiles(eventID)
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return "", nil, fmt.Errorf("create export root: %w", err)
	}

	base := fmt.Sprintf("export_%s_%s", eventID, s.now().UTC().Format(exportStampLayout))
	dir, err := mkdirFresh(destRoot, base)
	if err != nil {
		return "", nil, err
	}

	src := s.EventDir(eventID)
	for _, name := range files {
		if err := copyFile(filepath.Join(src, name), filepath.Join(dir, name)); err != nil {
			return "", nil, err
		}
	}
	return dir, files, nil
}

func mkdirFresh(root, base string) (string, error) {
	for n := 1; n < 1000; n++ {
		name := base
		if n > 1 {
			name = base + "-" + strconv.Itoa(n)
		}
		dir := filepath.Join(root, name)
		err := os.Mkdir(dir, 0o755)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create export dir: %w", err)
		}
		return dir, nil
	}
	return "", fmt.Errorf("no free export directory for %s", base)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}

// HashDirectory is the SHA-256 over every regular file in dir, in name
// order, each contributing its name and content. Entries in override replace
// the on-disk content of the named file.
func HashDirectory(dir string, override map[string][]byte) (string, error) {
	files, err := listFiles(dir)
	if errors.Is(err, domain.ErrEventNotFound) {
		return "", fmt.Errorf("directory %s not found", dir)
	}
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, name := range files {
		io.WriteString(h, name)
		h.Write([]byte{0})
		if data, ok := override[name]; ok {
			h.Write(data)
		} else {
			f, err := os.Open(filepath.Join(dir, name))
			if err != nil {
				return "", fmt.Errorf("open %s: %w", name, err)
			}
			_, err = io.Copy(h, f)
			f.Close()
			if err != nil {
				return "", fmt.Errorf("hash %s: %w", name, err)
			}
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
