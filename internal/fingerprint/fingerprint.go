package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
)

type Info struct {
	ContentHash string
	SizeBytes   int64
	ModTime     time.Time
	MimeType    string
}

// File hashes the file with streaming SHA-256 and resolves its MIME type by
// extension table first, content sniff second.
func File(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.New(errkind.IO, "fingerprint.File", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errkind.New(errkind.IO, "fingerprint.File", err)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errkind.New(errkind.IO, "fingerprint.File", err)
	}
	head = head[:n]

	h := sha256.New()
	h.Write(head)
	if _, err := io.Copy(h, f); err != nil {
		return nil, errkind.New(errkind.IO, "fingerprint.File", err)
	}

	return &Info{
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		SizeBytes:   stat.Size(),
		ModTime:     stat.ModTime(),
		MimeType:    MimeType(path, head),
	}, nil
}

var mimeByExt = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".html": "text/html",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".rtf":  "application/rtf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".zip":  "application/zip",
}

func MimeType(path string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := mimeByExt[ext]; ok {
		return mt
	}
	if len(head) > 0 {
		// DetectContentType never fails; worst case it says octet-stream.
		ct := http.DetectContentType(head)
		return strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	}
	return "application/octet-stream"
}
