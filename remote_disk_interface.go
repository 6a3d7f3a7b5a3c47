package buildfs

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// RemoteDiskInterface reads build artifacts from a fsserve endpoint
// through the same capability the engine uses for local disk. MakeDir
// and RemoveFile are not supported remotely; MakeDirs over this
// realization therefore only succeeds for paths whose ancestry the
// server already has.
type RemoteDiskInterface struct {
	BaseURL string
	Client  *http.Client
}

func NewRemoteDiskInterface(baseURL string) *RemoteDiskInterface {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &RemoteDiskInterface{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Transport: tr},
	}
}

type remoteStat struct {
	Path  string `json:"path"`
	Mtime int64  `json:"mtime"`
}

func (r *RemoteDiskInterface) Stat(path string) (TimeStamp, error) {
	defer MetricRecord("remote stat")()
	u := fmt.Sprintf("%s/stat?path=%s", r.BaseURL, url.QueryEscape(path))
	resp, err := r.Client.Get(u)
	if err != nil {
		return -1, fmt.Errorf("stat(%s): %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return -1, fmt.Errorf("stat(%s): server returned %s", path, resp.Status)
	}
	var st remoteStat
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return -1, fmt.Errorf("stat(%s): %v", path, err)
	}
	return TimeStamp(st.Mtime), nil
}

// ReadFile fetches path from the server. A 404 is swallowed the same
// way the local realization swallows ENOENT.
func (r *RemoteDiskInterface) ReadFile(path string, binary bool) (string, error) {
	defer MetricRecord("remote read")()
	resp, err := r.Client.Get(r.BaseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("ReadFile(%s): %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ReadFile(%s): server returned %s", path, resp.Status)
	}
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ReadFile(%s): %v", path, err)
	}
	if !binary {
		return readText(buf), nil
	}
	return string(buf), nil
}

// WriteFile uploads contents as a multipart form, keyed by the content
// hash of what is being stored.
func (r *RemoteDiskInterface) WriteFile(path, contents string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("path", path); err != nil {
		return fmt.Errorf("WriteFile(%s): %v", path, err)
	}
	key := RapidHash([]byte(contents), rapidSeed)
	if err := w.WriteField("content_hash", strconv.FormatUint(key, 16)); err != nil {
		return fmt.Errorf("WriteFile(%s): %v", path, err)
	}
	part, err := w.CreateFormFile("file", path)
	if err != nil {
		return fmt.Errorf("WriteFile(%s): %v", path, err)
	}
	if _, err := io.WriteString(part, contents); err != nil {
		return fmt.Errorf("WriteFile(%s): %v", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("WriteFile(%s): %v", path, err)
	}
	resp, err := r.Client.Post(r.BaseURL+"/upload", w.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("WriteFile(%s): %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("WriteFile(%s): server returned %s", path, resp.Status)
	}
	return nil
}

func (r *RemoteDiskInterface) MakeDir(path string) error {
	return fmt.Errorf("mkdir(%s): not supported on a remote disk", path)
}

func (r *RemoteDiskInterface) RemoveFile(path string) (RemoveStatus, error) {
	return RemoveError, fmt.Errorf("remove(%s): not supported on a remote disk", path)
}
