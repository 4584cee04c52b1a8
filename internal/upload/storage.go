package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

// maxResponseSize はアップロードサービスのレスポンスボディの上限。
const maxResponseSize = 64 << 10

// HostedStorage は外部のアップロードサービスへファイルを転送する。
// サービスはmultipartの"file"フィールドを受け取り、{"url": "..."} を返す。
type HostedStorage struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

// NewHostedStorage はHostedStorageを生成する。
// httpClientにはSSRF対策済みのクライアントを渡す。
func NewHostedStorage(httpClient *http.Client, endpoint, token string) *HostedStorage {
	return &HostedStorage{httpClient: httpClient, endpoint: endpoint, token: token}
}

type hostedResponse struct {
	URL string `json:"url"`
}

// Save はファイルをアップロードサービスへ送信し、公開URLを返す。
func (h *HostedStorage) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("multipartの書き込みに失敗しました: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Projecify/1.0")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		slog.Error("アップロードサービスの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("アップロードサービスがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("アップロードサービスがステータス %d を返しました", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	var result hostedResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("アップロードサービスのレスポンスにURLが含まれていません")
	}
	return result.URL, nil
}

// DiskStorage はローカルディレクトリにファイルを保存する。
// 保存したファイルはFileServerで /uploads/ 配下に配信する。
type DiskStorage struct {
	dir     string
	baseURL string
}

// NewDiskStorage はDiskStorageを生成する。baseURLは公開URLの接頭辞（例: http://localhost:8080/uploads）。
func NewDiskStorage(dir, baseURL string) *DiskStorage {
	return &DiskStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Save はファイルをディレクトリに書き込み、公開URLを返す。
func (d *DiskStorage) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("不正なファイル名です: %q", name)
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("アップロードディレクトリの作成に失敗しました: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("ファイルの書き込みに失敗しました: %w", err)
	}
	return d.baseURL + "/" + name, nil
}

// FileServer は保存済みファイルを配信するハンドラを返す。
// ディレクトリ一覧は返さない。
func (d *DiskStorage) FileServer() http.Handler {
	fs := http.FileServer(http.Dir(d.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	})
}

var (
	_ Storage = (*HostedStorage)(nil)
	_ Storage = (*DiskStorage)(nil)
)
