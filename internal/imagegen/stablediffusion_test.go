package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableDiffusion_TextToImage(t *testing.T) {
	var got sdGenerateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdapi/v1/txt2img", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []string{base64.StdEncoding.EncodeToString([]byte("png"))},
			"info":   `{"seed": 1}`,
		})
	}))
	defer srv.Close()

	p := NewStableDiffusionProvider(srv.URL + "/")
	img, err := p.TextToImage(context.Background(), Request{
		Prompt: "sunset", NegativePrompt: "blurry", Width: 512, Height: 512, Steps: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), img.PNG)
	assert.Equal(t, `{"seed": 1}`, img.Info)

	assert.Equal(t, "sunset", got.Prompt)
	assert.Equal(t, "blurry", got.NegativePrompt)
	assert.Equal(t, 20, got.Steps)
	assert.Empty(t, got.InitImages)
}

func TestStableDiffusion_ImageToImage(t *testing.T) {
	var got sdGenerateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdapi/v1/img2img", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []string{"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("out"))},
		})
	}))
	defer srv.Close()

	p := NewStableDiffusionProvider(srv.URL)
	img, err := p.ImageToImage(context.Background(), Request{Prompt: "as a painting", InitImages: [][]byte{[]byte("src")}})
	require.NoError(t, err)
	assert.Equal(t, []byte("out"), img.PNG)
	assert.Equal(t, []string{base64.StdEncoding.EncodeToString([]byte("src"))}, got.InitImages)

	_, err = p.ImageToImage(context.Background(), Request{Prompt: "no source"})
	assert.Error(t, err)
}

func TestStableDiffusion_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
	}{
		{"non-2xx with body", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}, "status 503: model not loaded"},
		{"non-2xx without body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, "status 500"},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}, "malformed response"},
		{"no images", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"images": []}`))
		}, "no images"},
		{"bad base64", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"images": ["!!!"]}`))
		}, "decode image"},
		{"error field", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error": "OutOfMemoryError"}`))
		}, "OutOfMemoryError"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewStableDiffusionProvider(srv.URL).TextToImage(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestStableDiffusion_RespectsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewStableDiffusionProvider(srv.URL).TextToImage(ctx, Request{Prompt: "slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStableDiffusion_PNGInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdapi/v1/png-info", r.URL.Path)
		var req sdPNGInfoReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("png")), req.Image)
		_, _ = w.Write([]byte(`{"info": "Steps: 150"}`))
	}))
	defer srv.Close()

	info, err := NewStableDiffusionProvider(srv.URL).PNGInfo(context.Background(), []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "Steps: 150", info)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	p, err := r.Get(context.Background(), " StableDiffusion ", "http://sd:7860")
	require.NoError(t, err)
	sd, ok := p.(*StableDiffusionProvider)
	require.True(t, ok)
	assert.Equal(t, "http://sd:7860", sd.BaseURL)

	_, err = r.Get(context.Background(), "dalle", "")
	assert.Error(t, err)
}
