package imagegen

import "context"

// Request is what every backend is asked for. InitImages is set only for variations.
type Request struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	InitImages     [][]byte
}

// Image is one decoded backend image plus the backend's free-form metadata.
type Image struct {
	PNG  []byte
	Info string
}

type Provider interface {
	TextToImage(ctx context.Context, req Request) (Image, error)
	ImageToImage(ctx context.Context, req Request) (Image, error)
}

// InfoProvider is optional. Providers that can read generation metadata back out
// of a PNG implement it.
type InfoProvider interface {
	PNGInfo(ctx context.Context, png []byte) (string, error)
}
