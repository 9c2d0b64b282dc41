package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/picgen-bot/internal/alias"
	"github.com/suPer8Hu/picgen-bot/internal/artifact"
	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/genlog"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"github.com/suPer8Hu/picgen-bot/internal/imagegen"
	"github.com/suPer8Hu/picgen-bot/internal/store"
	"github.com/suPer8Hu/picgen-bot/internal/storetest"
	"gorm.io/gorm"
)

type sentPhoto struct {
	png     []byte
	spoiler bool
}

type recordingReplier struct {
	mu       sync.Mutex
	texts    []string
	photos   []sentPhoto
	photoErr error
}

func (r *recordingReplier) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingReplier) SendPhoto(_ context.Context, png []byte, spoiler bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.photoErr != nil {
		return r.photoErr
	}
	r.photos = append(r.photos, sentPhoto{png: png, spoiler: spoiler})
	return nil
}

func (r *recordingReplier) lastText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

type fakeGenerator struct {
	artifacts artifact.Store
	prompts   []string
	sources   [][]byte
	err       error
}

func (g *fakeGenerator) GenerateNew(ctx context.Context, prompt string) (imagegen.Artifact, error) {
	return g.generate(ctx, prompt, nil)
}

func (g *fakeGenerator) GenerateVariation(ctx context.Context, prompt string, src []byte) (imagegen.Artifact, error) {
	return g.generate(ctx, prompt, src)
}

func (g *fakeGenerator) generate(ctx context.Context, prompt string, src []byte) (imagegen.Artifact, error) {
	g.prompts = append(g.prompts, prompt)
	g.sources = append(g.sources, src)
	if g.err != nil {
		return imagegen.Artifact{}, g.err
	}
	name, err := g.artifacts.Put(ctx, []byte("png:"+prompt))
	if err != nil {
		return imagegen.Artifact{}, err
	}
	return imagegen.Artifact{Name: name, Params: map[string]any{"prompt": prompt}}, nil
}

type staticImage []byte

func (s staticImage) Fetch(context.Context) ([]byte, error) { return s, nil }

type brokenSpoilers struct{}

func (brokenSpoilers) Spoiler(context.Context, identity.Identity) (bool, error) {
	return false, errors.New("db gone")
}

func (brokenSpoilers) SetSpoiler(context.Context, identity.Identity, bool) error { return nil }

type harness struct {
	orch  *Orchestrator
	store *store.Store
	gdb   *gorm.DB
	gen   *fakeGenerator
	deps  Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, gdb := storetest.Open(t)
	local, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)

	aliases := alias.NewStore(s)
	gen := &fakeGenerator{artifacts: local}
	deps := Deps{
		Identities: identity.NewResolver(s),
		Aliases:    aliases,
		Expander:   alias.NewExpander(aliases),
		Generator:  gen,
		Artifacts:  local,
		Log:        genlog.New(s, nil, nil),
		SafeModes:  NewSafeModes(s),
		BotName:    "PicGenBot",
	}
	return &harness{orch: NewOrchestrator(deps), store: s, gdb: gdb, gen: gen, deps: deps}
}

var (
	alice     = identity.RawUser{Handle: "alice", DisplayName: "Alice"}
	anonymous = identity.RawUser{DisplayName: "Nameless Ned"}
	dm        = identity.RawChat{ExternalID: 42, Kind: store.ChatPrivate}
)

func (h *harness) send(user identity.RawUser, text string, r *recordingReplier) Outcome {
	return h.orch.Handle(context.Background(), Command{User: user, Chat: dm, Text: text}, r)
}

func (h *harness) logEntries(t *testing.T) []store.GenerationLogEntry {
	t.Helper()
	var entries []store.GenerationLogEntry
	require.NoError(t, h.gdb.Order("id ASC").Find(&entries).Error)
	return entries
}

func TestHandle_TeachThenGenerate(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	out := h.send(alice, "/teach %mood dreamy, pastel colors", r)
	assert.Equal(t, Replied, out.State)
	assert.Equal(t, "Taught alias mood.", r.lastText())

	out = h.send(alice, "/picgen %mood sunset", r)
	require.Equal(t, Replied, out.State, out.Err)
	assert.Equal(t, ReasonNone, out.Reason)

	assert.Equal(t, []string{"dreamy, pastel colors sunset"}, h.gen.prompts)

	entries := h.logEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, store.ImageNew, entries[0].Kind)
	assert.Equal(t, "dreamy, pastel colors sunset", entries[0].Prompt)
	assert.Equal(t, out.Artifact, entries[0].ArtifactName)
	assert.Equal(t, out.Identity.ID, entries[0].UserChatID)

	require.Len(t, r.photos, 1)
	assert.Equal(t, []byte("png:dreamy, pastel colors sunset"), r.photos[0].png)
	assert.False(t, r.photos[0].spoiler)
}

func TestHandle_SafeModeTogglesSpoiler(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	out := h.send(alice, "/safemode on", r)
	assert.Equal(t, Replied, out.State)
	assert.Equal(t, "Safe mode is now on.", r.lastText())

	h.send(alice, "/picgen a cat", r)
	require.Len(t, r.photos, 1)
	assert.True(t, r.photos[0].spoiler)

	h.send(alice, "/safemode@PicGenBot off", r)
	assert.Equal(t, "Safe mode is now off.", r.lastText())

	h.send(alice, "/picgen a cat", r)
	require.Len(t, r.photos, 2)
	assert.False(t, r.photos[1].spoiler)
}

func TestHandle_SafeModeRejectsUnknownValue(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	out := h.send(alice, "/safemode maybe", r)
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, ReasonValidation, out.Reason)
	assert.True(t, common.IsValidation(out.Err))
	assert.Contains(t, r.lastText(), `"on" or "off"`)
}

func TestHandle_EmptyPrompt(t *testing.T) {
	for _, text := range []string{"/picgen", "/picgen   ", "/picgen @PicGenBot", "/picgen@PicGenBot", "/variation"} {
		t.Run(text, func(t *testing.T) {
			h := newHarness(t)
			r := &recordingReplier{}

			out := h.send(alice, text, r)
			assert.Equal(t, Failed, out.State)
			assert.Equal(t, ReasonEmptyPrompt, out.Reason)
			assert.Empty(t, h.gen.prompts, "backend must not be called")
			assert.Empty(t, h.logEntries(t))
			assert.Len(t, r.texts, 1)
			assert.Contains(t, r.lastText(), "Please provide a prompt")
		})
	}
}

func TestHandle_BackendErrorIsReportedAndNotLogged(t *testing.T) {
	h := newHarness(t)
	h.gen.err = common.NewBackendError("stablediffusion: status 500: CUDA out of memory", nil)
	r := &recordingReplier{}

	out := h.send(alice, "/picgen a fox", r)
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, ReasonBackendError, out.Reason)
	assert.Equal(t, "stablediffusion: status 500: CUDA out of memory", r.lastText())
	assert.Empty(t, r.photos)
	assert.Empty(t, h.logEntries(t))
}

func TestHandle_TeachWithoutHandle(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	out := h.send(anonymous, "/teach %foo bar", r)
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, ReasonValidation, out.Reason)
	assert.Equal(t, identity.DisplayNameOnly, out.Identity.Kind)
	assert.Equal(t, "You need a Telegram username to teach aliases.", r.lastText())

	var n int64
	require.NoError(t, h.gdb.Model(&store.Alias{}).Count(&n).Error)
	assert.Zero(t, n)

	// handle-less users can still generate
	out = h.send(anonymous, "/picgen a fox", r)
	assert.Equal(t, Replied, out.State)
}

func TestHandle_TeachForgetMyWords(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	h.send(alice, "/mywords", r)
	assert.Equal(t, "No aliases found.", r.lastText())

	h.send(alice, "/teach %b second", r)
	h.send(alice, "/teach a first", r)
	h.send(alice, "/mywords", r)
	assert.Equal(t, "Your aliases:\na: first\nb: second\n", r.lastText())

	out := h.send(alice, "/forget %a", r)
	assert.Equal(t, Replied, out.State)
	assert.Equal(t, "Forgot alias a.", r.lastText())

	out = h.send(alice, "/forget %never-taught", r)
	assert.Equal(t, Replied, out.State)

	out = h.send(alice, "/forget", r)
	assert.Equal(t, ReasonValidation, out.Reason)

	out = h.send(alice, "/teach %lonely", r)
	assert.Equal(t, ReasonValidation, out.Reason)
	assert.Equal(t, "Please provide an alias and text to teach.", r.lastText())
}

func TestHandle_StorageFailureGivesGenericReply(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}
	h.store.Close()

	out := h.send(alice, "/teach %foo bar", r)
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, ReasonStorageError, out.Reason)
	assert.True(t, common.IsStorage(out.Err))
	assert.Equal(t, genericFailure, r.lastText())
}

func TestHandle_Variation(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	out := h.orch.Handle(context.Background(), Command{
		User:  alice,
		Chat:  dm,
		Text:  "/variation as an oil painting",
		Image: staticImage("source-png"),
	}, r)
	require.Equal(t, Replied, out.State, out.Err)
	assert.Equal(t, [][]byte{[]byte("source-png")}, h.gen.sources)

	entries := h.logEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, store.ImageVariation, entries[0].Kind)
	assert.Equal(t, "as an oil painting", entries[0].Prompt)

	out = h.send(alice, "/variation without a photo", r)
	assert.Equal(t, ReasonValidation, out.Reason)
	assert.Contains(t, r.lastText(), "image")
}

func TestHandle_IgnoresNonCommands(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	for _, text := range []string{"hello there", "/unknown", "/picgen@someotherbot a fox", ""} {
		out := h.send(alice, text, r)
		assert.Equal(t, Ignored, out.State, text)
	}
	assert.Empty(t, r.texts)

	var n int64
	require.NoError(t, h.gdb.Model(&store.User{}).Count(&n).Error)
	assert.Zero(t, n, "ignored messages create no identity")
}

func TestHandle_StartAndHelp(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	assert.Equal(t, Replied, h.send(alice, "/start", r).State)
	assert.Equal(t, greeting, r.lastText())
	assert.Equal(t, Replied, h.send(alice, "/help", r).State)
	assert.Contains(t, r.lastText(), "/picgen")
}

func TestHandle_PhotoReplyFailure(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{photoErr: errors.New("telegram down")}

	out := h.send(alice, "/picgen a fox", r)
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, ReasonReplyError, out.Reason)
	assert.Len(t, h.logEntries(t), 1, "the log entry is written before replying")
}

func TestHandle_UnreadableSpoilerFlagHidesImage(t *testing.T) {
	h := newHarness(t)
	deps := h.deps
	deps.SafeModes = brokenSpoilers{}
	orch := NewOrchestrator(deps)
	r := &recordingReplier{}

	out := orch.Handle(context.Background(), Command{User: alice, Chat: dm, Text: "/picgen a fox"}, r)
	require.Equal(t, Replied, out.State)
	require.Len(t, r.photos, 1)
	assert.True(t, r.photos[0].spoiler)
}

func TestHandle_AliasesAreNotTransitive(t *testing.T) {
	h := newHarness(t)
	r := &recordingReplier{}

	h.send(alice, "/teach %a %b", r)
	h.send(alice, "/teach %b cat", r)
	h.send(alice, "/picgen %a", r)
	assert.Equal(t, []string{"%b"}, h.gen.prompts)
}
