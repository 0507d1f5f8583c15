package dashboard

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Attachment is a file uploaded to the chat media store.
type Attachment struct {
	AttachmentID string `json:"attachment_id"`
	Filename     string `json:"filename"`
	Type         string `json:"type"`
}

// GetFile downloads a chat media file into the cache directory and returns
// its local path. Repeated calls for the same name reuse the download.
func (c *Client) GetFile(ctx context.Context, filename string) (string, error) {
	if filename == "" {
		return "", errEmptyID
	}
	c.mu.Lock()
	cached, ok := c.files[filename]
	c.mu.Unlock()
	if ok {
		if _, err := os.Stat(cached); err == nil {
			return cached, nil
		}
	}

	dir := c.cacheDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "bot-console-media")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media cache: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/chat/get_file?"+url.Values{"filename": {filename}}.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	dest := filepath.Join(dir, cacheName(filename))
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	c.mu.Lock()
	c.files[filename] = dest
	c.mu.Unlock()
	return dest, nil
}

// cacheName maps a server file name to a flat local name. Names with a
// directory part get a hash prefix so a/x.png and b/x.png stay distinct.
func cacheName(filename string) string {
	base := filepath.Base(filepath.FromSlash(filename))
	if base == filename && !strings.ContainsAny(filename, `/\`) && base != "." && base != ".." {
		return base
	}
	sum := sha256.Sum256([]byte(filename))
	return hex.EncodeToString(sum[:6]) + "-" + base
}

// UploadFile posts r as a multipart "file" field.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (Attachment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return Attachment{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return Attachment{}, err
	}
	if err := mw.Close(); err != nil {
		return Attachment{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat/post_file", &body)
	if err != nil {
		return Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out Attachment
	_, err = c.do(req, &out)
	return out, err
}

// StagedFile is an attachment waiting to be sent with a message.
type StagedFile struct {
	AttachmentID string `json:"attachment_id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	URL          string `json:"url,omitempty"`
	Type         string `json:"type"`
}

// IsImage reports whether the staged file is an image.
func (f StagedFile) IsImage() bool {
	return f.Type == "image" || strings.HasPrefix(f.Type, "image/")
}

// Staging holds attachments for the next message. Images and other files are
// indexed separately, matching how they are listed.
type Staging struct {
	files []StagedFile
}

// Add stages f.
func (s *Staging) Add(f StagedFile) {
	s.files = append(s.files, f)
}

// AddUpload stages an uploaded attachment.
func (s *Staging) AddUpload(a Attachment, originalName string) StagedFile {
	f := StagedFile{AttachmentID: a.AttachmentID, Filename: a.Filename, OriginalName: originalName, Type: a.Type}
	s.Add(f)
	return f
}

// Files returns every staged file in order.
func (s *Staging) Files() []StagedFile {
	return append([]StagedFile(nil), s.files...)
}

// Images returns the staged images.
func (s *Staging) Images() []StagedFile {
	return s.filter(true)
}

// NonImages returns the staged non-image files.
func (s *Staging) NonImages() []StagedFile {
	return s.filter(false)
}

func (s *Staging) filter(images bool) []StagedFile {
	var out []StagedFile
	for _, f := range s.files {
		if f.IsImage() == images {
			out = append(out, f)
		}
	}
	return out
}

// RemoveImage drops the i-th image. Out of range indexes are ignored.
func (s *Staging) RemoveImage(i int) {
	s.remove(i, true)
}

// RemoveFile drops the i-th non-image file. Out of range indexes are ignored.
func (s *Staging) RemoveFile(i int) {
	s.remove(i, false)
}

func (s *Staging) remove(i int, images bool) {
	if i < 0 {
		return
	}
	n := 0
	for pos, f := range s.files {
		if f.IsImage() != images {
			continue
		}
		if n == i {
			s.files = append(s.files[:pos], s.files[pos+1:]...)
			return
		}
		n++
	}
}

// Clear drops every staged file.
func (s *Staging) Clear() {
	s.files = nil
}
