package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/organizer-backend/internal/types"
)

// writeShortcut creates a pointer from linkPath to targetPath in the given
// format. "auto" tries a relative symlink first and falls back to a .url
// file, which opens everywhere.
func writeShortcut(linkPath, targetPath, format string) (finalPath string, finalFormat string, err error) {
	switch format {
	case types.ShortcutFormatSymlink:
		return writeSymlink(linkPath, targetPath)
	case types.ShortcutFormatURL:
		return writeURLFile(linkPath, targetPath)
	case types.ShortcutFormatDesktop:
		return writeDesktopFile(linkPath, targetPath)
	default: // auto
		if p, f, sErr := writeSymlink(linkPath, targetPath); sErr == nil {
			return p, f, nil
		}
		return writeURLFile(linkPath, targetPath)
	}
}

func writeSymlink(linkPath, targetPath string) (string, string, error) {
	rel, err := filepath.Rel(filepath.Dir(linkPath), targetPath)
	if err != nil {
		rel = targetPath
	}
	if err := os.Symlink(rel, linkPath); err != nil {
		return "", "", err
	}
	return linkPath, types.ShortcutFormatSymlink, nil
}

// Both file formats use LF line endings and end with a newline.

func writeURLFile(linkPath, targetPath string) (string, string, error) {
	path := linkPath + ".url"
	body := fmt.Sprintf("[InternetShortcut]\nURL=file:///%s\n", filepath.ToSlash(strings.TrimPrefix(targetPath, "/")))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", "", err
	}
	return path, types.ShortcutFormatURL, nil
}

func writeDesktopFile(linkPath, targetPath string) (string, string, error) {
	path := linkPath + ".desktop"
	// Name is the shortcut's own name, not the target's.
	name := filepath.Base(linkPath)
	body := fmt.Sprintf("[Desktop Entry]\nType=Link\nName=%s\nURL=file:///%s\n", name, filepath.ToSlash(strings.TrimPrefix(targetPath, "/")))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", "", err
	}
	return path, types.ShortcutFormatDesktop, nil
}
