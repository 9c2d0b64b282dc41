package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// APIError is a Bot API call answered with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type Client struct {
	http  *resty.Client
	files *resty.Client
}

func NewClient(apiURL, token string) *Client {
	apiURL = strings.TrimRight(apiURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &Client{
		http:  resty.New().SetBaseURL(apiURL + "/bot" + token),
		files: resty.New().SetBaseURL(apiURL + "/file/bot" + token),
	}
}

func call[T any](ctx context.Context, c *Client, method string, body any) (T, error) {
	var zero T
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req = req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	res, err := req.Post("/" + method)
	if err != nil {
		return zero, fmt.Errorf("telegram %s: %w", method, err)
	}
	return decode[T](method, res)
}

func decode[T any](method string, res *resty.Response) (T, error) {
	var out apiResponse[T]
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return out.Result, fmt.Errorf("telegram %s: status %d: malformed response: %w", method, res.StatusCode(), err)
	}
	if !out.OK {
		code := out.ErrorCode
		if code == 0 {
			code = res.StatusCode()
		}
		return out.Result, &APIError{Method: method, Code: code, Description: out.Description}
	}
	return out.Result, nil
}

func (c *Client) GetMe(ctx context.Context) (User, error) {
	return call[User](ctx, c, "getMe", nil)
}

// GetUpdates long-polls for up to timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}
	// leave room for the server side of the long poll
	cctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()
	return call[[]Update](cctx, c, "getUpdates", body)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := call[bool](ctx, c, "deleteWebhook", map[string]any{"drop_pending_updates": false})
	return err
}

func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	body := map[string]any{"url": url, "allowed_updates": []string{"message"}}
	if secret != "" {
		body["secret_token"] = secret
	}
	_, err := call[bool](ctx, c, "setWebhook", body)
	return err
}

func (c *Client) SendMessage(ctx context.Context, chatID, replyTo int64, text string) error {
	body := map[string]any{"chat_id": chatID, "text": text}
	if replyTo != 0 {
		body["reply_parameters"] = map[string]any{"message_id": replyTo, "allow_sending_without_reply": true}
	}
	_, err := call[Message](ctx, c, "sendMessage", body)
	return err
}

// SendPhoto uploads png as a new photo. spoiler hides it behind the Bot API spoiler overlay.
func (c *Client) SendPhoto(ctx context.Context, chatID, replyTo int64, png []byte, spoiler bool) error {
	form := map[string]string{
		"chat_id":     strconv.FormatInt(chatID, 10),
		"has_spoiler": strconv.FormatBool(spoiler),
	}
	if replyTo != 0 {
		form["reply_parameters"] = fmt.Sprintf(`{"message_id":%d,"allow_sending_without_reply":true}`, replyTo)
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetFileReader("photo", "image.png", bytes.NewReader(png)).
		Post("/sendPhoto")
	if err != nil {
		return fmt.Errorf("telegram sendPhoto: %w", err)
	}
	_, err = decode[Message]("sendPhoto", res)
	return err
}

func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	return call[File](ctx, c, "getFile", map[string]any{"file_id": fileID})
}

func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	if filePath == "" {
		return nil, errors.New("telegram: empty file path")
	}
	res, err := c.files.R().SetContext(ctx).Get("/" + strings.TrimLeft(filePath, "/"))
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("telegram download: status %d", res.StatusCode())
	}
	return res.Body(), nil
}

// FetchPhoto resolves a file id and downloads its bytes.
func (c *Client) FetchPhoto(ctx context.Context, fileID string) ([]byte, error) {
	f, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return c.DownloadFile(ctx, f.FilePath)
}
