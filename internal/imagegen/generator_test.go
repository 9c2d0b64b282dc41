package imagegen

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/picgen-bot/internal/artifact"
	"github.com/suPer8Hu/picgen-bot/internal/common"
)

type fakeProvider struct {
	last    Request
	img     Image
	err     error
	info    string
	infoErr error
}

func (f *fakeProvider) TextToImage(_ context.Context, req Request) (Image, error) {
	f.last = req
	return f.img, f.err
}

func (f *fakeProvider) ImageToImage(_ context.Context, req Request) (Image, error) {
	f.last = req
	return f.img, f.err
}

func (f *fakeProvider) PNGInfo(context.Context, []byte) (string, error) {
	return f.info, f.infoErr
}

type failingArtifacts struct{}

func (failingArtifacts) Put(context.Context, []byte) (string, error) {
	return "", errors.New("disk full")
}

func (failingArtifacts) Get(context.Context, string) ([]byte, error) {
	return nil, artifact.ErrNotFound
}

func newGenerator(t *testing.T, p Provider) (*Generator, *artifact.Local) {
	t.Helper()
	local, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)
	return NewGenerator(p, local, Options{
		Steps:          150,
		PromptSuffix:   " 8k",
		NegativePrompt: "blurry",
	}, nil), local
}

func TestGenerateNew(t *testing.T) {
	p := &fakeProvider{img: Image{PNG: []byte("png"), Info: "seed 1"}}
	g, local := newGenerator(t, p)

	art, err := g.GenerateNew(context.Background(), "sunset")
	require.NoError(t, err)

	assert.Equal(t, "sunset 8k", p.last.Prompt)
	assert.Equal(t, "blurry", p.last.NegativePrompt)
	assert.Equal(t, 512, p.last.Width)
	assert.Equal(t, 512, p.last.Height)
	assert.Equal(t, 150, p.last.Steps)

	assert.True(t, artifact.ValidName(art.Name))
	assert.Equal(t, "seed 1", art.Info)
	assert.Equal(t, "sunset 8k", art.Params["prompt"])

	data, err := local.Get(context.Background(), art.Name)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestGenerateVariation(t *testing.T) {
	p := &fakeProvider{img: Image{PNG: []byte("out")}, info: "from png-info"}
	g, _ := newGenerator(t, p)

	art, err := g.GenerateVariation(context.Background(), "as a painting", []byte("src"))
	require.NoError(t, err)
	assert.Equal(t, "as a painting", p.last.Prompt, "no suffix on variations")
	assert.Equal(t, [][]byte{[]byte("src")}, p.last.InitImages)
	assert.Equal(t, "from png-info", art.Info)

	_, err = g.GenerateVariation(context.Background(), "x", nil)
	assert.True(t, common.IsValidation(err))
}

func TestGenerate_BackendFailures(t *testing.T) {
	g, _ := newGenerator(t, &fakeProvider{err: fmt.Errorf("stablediffusion: status 500")})
	_, err := g.GenerateNew(context.Background(), "x")
	require.Error(t, err)
	var be *common.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "stablediffusion: status 500", be.Detail)

	g, _ = newGenerator(t, &fakeProvider{err: context.DeadlineExceeded})
	_, err = g.GenerateNew(context.Background(), "x")
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Detail, "timed out")

	g, _ = newGenerator(t, &fakeProvider{img: Image{}})
	_, err = g.GenerateNew(context.Background(), "x")
	assert.True(t, common.IsBackend(err))
}

func TestGenerate_ArtifactFailureIsStorage(t *testing.T) {
	g := NewGenerator(&fakeProvider{img: Image{PNG: []byte("png")}}, failingArtifacts{}, Options{}, nil)
	_, err := g.GenerateNew(context.Background(), "x")
	assert.True(t, common.IsStorage(err))
}
