package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type StableDiffusionProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewStableDiffusionProvider(baseURL string) *StableDiffusionProvider {
	if baseURL == "" {
		baseURL = "http://localhost:7860"
	}
	return &StableDiffusionProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// generation at 150 steps is slow; callers bound it with ctx
		Client: &http.Client{Timeout: 10 * time.Minute},
	}
}

type sdGenerateReq struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Steps          int      `json:"steps,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	InitImages     []string `json:"init_images,omitempty"`
}

type sdGenerateResp struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
	Error  string   `json:"error,omitempty"`
	Detail any      `json:"detail,omitempty"`
}

type sdPNGInfoReq struct {
	Image string `json:"image"`
}

type sdPNGInfoResp struct {
	Info string `json:"info"`
}

func (p *StableDiffusionProvider) TextToImage(ctx context.Context, req Request) (Image, error) {
	return p.generate(ctx, "/sdapi/v1/txt2img", req)
}

func (p *StableDiffusionProvider) ImageToImage(ctx context.Context, req Request) (Image, error) {
	if len(req.InitImages) == 0 {
		return Image{}, errors.New("stablediffusion: img2img needs an init image")
	}
	return p.generate(ctx, "/sdapi/v1/img2img", req)
}

// PNGInfo asks the backend to read the generation parameters embedded in png.
func (p *StableDiffusionProvider) PNGInfo(ctx context.Context, png []byte) (string, error) {
	var decoded sdPNGInfoResp
	body := sdPNGInfoReq{Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)}
	if err := p.post(ctx, "/sdapi/v1/png-info", body, &decoded); err != nil {
		return "", err
	}
	return decoded.Info, nil
}

func (p *StableDiffusionProvider) generate(ctx context.Context, endpoint string, req Request) (Image, error) {
	reqBody := sdGenerateReq{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		Width:          req.Width,
		Height:         req.Height,
	}
	for _, img := range req.InitImages {
		reqBody.InitImages = append(reqBody.InitImages, base64.StdEncoding.EncodeToString(img))
	}

	var decoded sdGenerateResp
	if err := p.post(ctx, endpoint, reqBody, &decoded); err != nil {
		return Image{}, err
	}
	if decoded.Error != "" {
		return Image{}, fmt.Errorf("stablediffusion: %s", decoded.Error)
	}
	if len(decoded.Images) == 0 {
		return Image{}, errors.New("stablediffusion: response contained no images")
	}

	png, err := decodeImage(decoded.Images[0])
	if err != nil {
		return Image{}, fmt.Errorf("stablediffusion: decode image: %w", err)
	}
	return Image{PNG: png, Info: decoded.Info}, nil
}

func (p *StableDiffusionProvider) post(ctx context.Context, endpoint string, in, out any) error {
	if p.Client == nil {
		return errors.New("stablediffusion: http client is nil")
	}

	b, err := json.Marshal(in)
	if err != nil {
		return err
	}

	url := p.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return fmt.Errorf("stablediffusion: status %d", resp.StatusCode)
		}
		return fmt.Errorf("stablediffusion: status %d: %s", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("stablediffusion: malformed response: %w", err)
	}
	return nil
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}
