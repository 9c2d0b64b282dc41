package imagegen

import (
	"context"
	"errors"

	"github.com/suPer8Hu/picgen-bot/internal/artifact"
	"github.com/suPer8Hu/picgen-bot/internal/common"
	"go.uber.org/zap"
)

type Options struct {
	Steps  int
	Width  int
	Height int
	// PromptSuffix is appended to new-image prompts only.
	PromptSuffix   string
	NegativePrompt string
}

// Artifact is a stored backend image.
type Artifact struct {
	Name   string
	Info   string
	Params map[string]any
}

// Generator calls the backend and stores what it returns.
type Generator struct {
	provider  Provider
	artifacts artifact.Store
	opts      Options
	logger    *zap.Logger
}

func NewGenerator(p Provider, artifacts artifact.Store, opts Options, logger *zap.Logger) *Generator {
	if opts.Steps <= 0 {
		opts.Steps = 150
	}
	if opts.Width <= 0 {
		opts.Width = 512
	}
	if opts.Height <= 0 {
		opts.Height = 512
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{provider: p, artifacts: artifacts, opts: opts, logger: logger}
}

func (g *Generator) GenerateNew(ctx context.Context, prompt string) (Artifact, error) {
	req := g.request(prompt + g.opts.PromptSuffix)
	img, err := g.provider.TextToImage(ctx, req)
	if err != nil {
		return Artifact{}, backendError(ctx, err)
	}
	return g.store(ctx, req, img)
}

func (g *Generator) GenerateVariation(ctx context.Context, prompt string, src []byte) (Artifact, error) {
	if len(src) == 0 {
		return Artifact{}, common.Validationf("Please provide (or reply to) an image to generate a variation of it.")
	}
	req := g.request(prompt)
	req.InitImages = [][]byte{src}
	img, err := g.provider.ImageToImage(ctx, req)
	if err != nil {
		return Artifact{}, backendError(ctx, err)
	}
	return g.store(ctx, req, img)
}

func (g *Generator) request(prompt string) Request {
	return Request{
		Prompt:         prompt,
		NegativePrompt: g.opts.NegativePrompt,
		Width:          g.opts.Width,
		Height:         g.opts.Height,
		Steps:          g.opts.Steps,
	}
}

func (g *Generator) store(ctx context.Context, req Request, img Image) (Artifact, error) {
	if len(img.PNG) == 0 {
		return Artifact{}, common.NewBackendError("the image backend returned an empty image", nil)
	}

	info := img.Info
	if info == "" {
		if ip, ok := g.provider.(InfoProvider); ok {
			var err error
			if info, err = ip.PNGInfo(ctx, img.PNG); err != nil {
				g.logger.Debug("png info unavailable", zap.Error(err))
			}
		}
	}

	name, err := g.artifacts.Put(ctx, img.PNG)
	if err != nil {
		return Artifact{}, common.NewStorageError("store artifact", err)
	}

	params := map[string]any{
		"prompt":          req.Prompt,
		"negative_prompt": req.NegativePrompt,
		"width":           req.Width,
		"height":          req.Height,
		"steps":           req.Steps,
	}
	if info != "" {
		params["info"] = info
	}
	return Artifact{Name: name, Info: info, Params: params}, nil
}

func backendError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.NewBackendError("The image backend timed out. Please try again later.", err)
	}
	return common.NewBackendError("", err)
}
