package network

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/upos-tools/go-uploader/v2/secretkeys"
	"github.com/upos-tools/go-uploader/v2/submission"
	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

// DefaultAPIBaseURL is the ingest service used when no base URL is configured.
const DefaultAPIBaseURL = "https://member.bilibili.com"

const (
	uploadProfile = "ugcupos/bup"
	uploadCDN     = "bda2"
	buildVersion  = "2.8.12"
	buildNumber   = 2081200

	authHeader   = "X-Upos-Auth"
	csrfCookie   = "bili_jct"
	defaultAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/87.0.4280.66 Safari/537.36"
)

type preuploadResponse struct {
	OK        int    `json:"OK"`
	Auth      string `json:"auth"`
	Endpoint  string `json:"endpoint"`
	UposURI   string `json:"upos_uri"`
	ChunkSize int64  `json:"chunk_size"`
	BizID     int64  `json:"biz_id"`
}

type uploadIDResponse struct {
	OK       int    `json:"OK"`
	UploadID string `json:"upload_id"`
}

type submitResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type coverResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
}

const defaultCoverMIMEType = "image/png"

// APIParams configures the ingest API client.
type APIParams struct {
	// BaseURL defaults to DefaultAPIBaseURL.
	BaseURL string
	// Cookies is a cookie header value of a logged-in web session, e.g. "SESSDATA=...; bili_jct=...".
	Cookies string
	// ForceHTTP downgrades every https URL to http.
	ForceHTTP bool
	Redactor  secretkeys.Redactor
}

type apiClient struct {
	httpClient  *retryablehttp.Client
	chunkClient *http.Client
	baseURL     string
	cookies     []*http.Cookie
	forceHTTP   bool
	redactor    secretkeys.Redactor
	logger      log.Logger
}

func newAPIClient(client *retryablehttp.Client, params APIParams, logger log.Logger) (apiClient, error) {
	cookies, err := parseCookies(params.Cookies)
	if err != nil {
		return apiClient{}, fmt.Errorf("parse cookies: %w", err)
	}

	baseURL := strings.TrimSuffix(params.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}

	redactor := params.Redactor
	for _, c := range cookies {
		redactor = redactor.With(c.Value)
	}

	return apiClient{
		httpClient:  client,
		chunkClient: chunkuploader.DefaultHTTPClient(),
		baseURL:     baseURL,
		cookies:     cookies,
		forceHTTP:   params.ForceHTTP,
		redactor:    redactor,
		logger:      logger,
	}, nil
}

// parseCookies accepts "k=v; k2=v2" strings. Items without a value are kept with an empty one.
func parseCookies(s string) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	for _, item := range strings.Split(strings.ReplaceAll(s, " ", ""), ";") {
		if item == "" {
			continue
		}
		name, value, _ := strings.Cut(item, "=")
		if name == "" {
			return nil, fmt.Errorf("cookie without name: %q", item)
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies, nil
}

func (c apiClient) csrf() string {
	for _, cookie := range c.cookies {
		if cookie.Name == csrfCookie {
			return cookie.Value
		}
	}
	return ""
}

func (c apiClient) url(u string) string {
	if c.forceHTTP && strings.HasPrefix(u, "https:") {
		return "http:" + strings.TrimPrefix(u, "https:")
	}
	return u
}

// endpointURL builds the per-file upload endpoint from a preupload response.
func (c apiClient) endpointURL(resp preuploadResponse) string {
	uri := resp.UposURI
	if i := strings.LastIndex(uri, "upos://"); i >= 0 {
		uri = uri[i+len("upos://"):]
	}
	return c.url(fmt.Sprintf("https:%s/%s", resp.Endpoint, uri))
}

func (c apiClient) preupload(ctx context.Context, name string, size int64) (preuploadResponse, error) {
	query := url.Values{}
	query.Set("name", name)
	query.Set("size", strconv.FormatInt(size, 10))
	query.Set("r", "upos")
	query.Set("profile", uploadProfile)
	query.Set("ssl", "0")
	query.Set("version", buildVersion)
	query.Set("build", strconv.Itoa(buildNumber))
	query.Set("upcdn", uploadCDN)
	query.Set("probe_version", strconv.Itoa(buildNumber))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url(c.baseURL+"/preupload?"+query.Encode()), nil)
	if err != nil {
		return preuploadResponse{}, err
	}

	var response preuploadResponse
	if err := c.doJSON(req, "Preupload", &response); err != nil {
		return preuploadResponse{}, err
	}
	if response.Endpoint == "" || response.UposURI == "" {
		return preuploadResponse{}, fmt.Errorf("preupload response has no endpoint (OK=%d)", response.OK)
	}
	if response.ChunkSize <= 0 {
		return preuploadResponse{}, fmt.Errorf("invalid chunk size: %d", response.ChunkSize)
	}
	return response, nil
}

func (c apiClient) uploadID(ctx context.Context, endpoint, auth string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?uploads&output=json", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set(authHeader, auth)

	var response uploadIDResponse
	if err := c.doJSON(req, "Upload ID", &response); err != nil {
		return "", err
	}
	if response.UploadID == "" {
		return "", fmt.Errorf("no upload ID in response (OK=%d)", response.OK)
	}
	return response.UploadID, nil
}

func (c apiClient) uploadStatus(ctx context.Context, session *chunkuploader.Session) (FinalizeResult, error) {
	query := url.Values{}
	query.Set("output", "json")
	query.Set("profile", uploadProfile)
	query.Set("name", session.Filename)
	query.Set("uploadId", session.UploadID)
	query.Set("biz_id", strconv.FormatInt(session.BizID, 10))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, session.EndpointURL+"?"+query.Encode(), nil)
	if err != nil {
		return FinalizeResult{}, err
	}
	req.Header.Set(authHeader, session.AuthToken)

	var details map[string]any
	if err := c.doJSON(req, "Upload status", &details); err != nil {
		return FinalizeResult{}, err
	}

	ok, _ := details["OK"].(float64)
	return FinalizeResult{OK: ok == 1, Details: details}, nil
}

func (c apiClient) uploadChunk(ctx context.Context, chunk chunkuploader.Chunk, body io.ReadSeeker) error {
	session := chunk.Session
	if session == nil {
		return fmt.Errorf("chunk %d of %s has no session", chunk.PartNumber(), chunk.Path)
	}

	query := url.Values{}
	query.Set("partNumber", strconv.Itoa(chunk.PartNumber()))
	query.Set("uploadId", session.UploadID)
	query.Set("chunk", strconv.Itoa(chunk.Index))
	query.Set("chunks", strconv.Itoa(chunk.Count))
	query.Set("start", strconv.FormatInt(chunk.Start, 10))
	query.Set("end", strconv.FormatInt(chunk.End, 10))
	query.Set("total", strconv.FormatInt(chunk.Total, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.EndpointURL+"?"+query.Encode(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(authHeader, session.AuthToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", defaultAgent)
	req.ContentLength = chunk.Size()

	resp, err := c.chunkClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warnf("close response body: %s", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapError(resp)
	}
	return nil
}

func (c apiClient) submit(ctx context.Context, payload map[string]any) (submission.Result, error) {
	csrf := c.csrf()
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["csrf"] = csrf

	data, err := json.Marshal(body)
	if err != nil {
		return submission.Result{}, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		c.url(c.baseURL+"/x/vu/web/add/v3?csrf="+url.QueryEscape(csrf)), data)
	if err != nil {
		return submission.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var raw json.RawMessage
	if err := c.doJSON(req, "Submit", &raw); err != nil {
		return submission.Result{}, err
	}
	var response submitResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return submission.Result{}, fmt.Errorf("decode submit response: %w", err)
	}
	return submission.Result{Code: response.Code, Message: response.Message, Raw: raw}, nil
}

// uploadCover sends an image as a base64 data URI and returns the URL the service stores it at.
func (c apiClient) uploadCover(ctx context.Context, image []byte) (string, error) {
	mimeType := coverMIMEType(image)
	c.logger.Debugf("Cover image: %d bytes of %s", len(image), mimeType)

	form := url.Values{}
	form.Set("cover", fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)))
	form.Set("csrf", c.csrf())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		c.url(c.baseURL+"/x/vu/web/cover/up"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var response coverResponse
	if err := c.doJSON(req, "Cover upload", &response); err != nil {
		return "", err
	}
	if response.Code != 0 {
		return "", fmt.Errorf("cover rejected (code %d): %s", response.Code, response.Message)
	}
	if response.Data.URL == "" {
		return "", fmt.Errorf("no cover URL in response")
	}
	return response.Data.URL, nil
}

// coverMIMEType detects the image type from its content, anything that is not an image is sent as png.
func coverMIMEType(image []byte) string {
	detected := mimetype.Detect(image).String()
	if !strings.HasPrefix(detected, "image/") {
		return defaultCoverMIMEType
	}
	return detected
}

// doJSON sends req with the session cookies and decodes a 200 response body into v.
func (c apiClient) doJSON(req *retryablehttp.Request, name string, v any) error {
	req.Header.Set("User-Agent", defaultAgent)
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	redactor := c.redactor.With(req.Header.Get(authHeader))

	dump, err := httputil.DumpRequest(req.Request, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
	}
	c.logger.Debugf("%s request dump: %s", name, redactor.Redact(string(dump)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Warnf("close response body: %s", err)
		}
	}(resp.Body)

	dump, err = httputil.DumpResponse(resp, true)
	if err != nil {
		c.logger.Warnf("error while dumping response: %s", err)
	}
	c.logger.Debugf("%s response dump: %s", name, redactor.Redact(string(dump)))

	if resp.StatusCode != http.StatusOK {
		return unwrapError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", strings.ToLower(name), err)
	}
	return nil
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp)
}
