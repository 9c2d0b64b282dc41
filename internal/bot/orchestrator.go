// Package bot turns chat commands into identity, alias and image operations.
//
// Every command runs through Orchestrator.Handle, which walks a fixed sequence of
// states and stops at the first failure:
//
//	Received -> IdentityResolved -> PromptExtracted -> AliasesExpanded
//	         -> BackendInvoked -> Logged -> Replied
//
// Commands that do not generate images stop after IdentityResolved and reply
// directly.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/picgen-bot/internal/alias"
	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"github.com/suPer8Hu/picgen-bot/internal/imagegen"
	"github.com/suPer8Hu/picgen-bot/internal/store"
	"go.uber.org/zap"
)

type State int

const (
	Ignored State = iota
	Received
	IdentityResolved
	PromptExtracted
	AliasesExpanded
	BackendInvoked
	Logged
	Replied
	Failed
)

func (s State) String() string {
	switch s {
	case Ignored:
		return "ignored"
	case Received:
		return "received"
	case IdentityResolved:
		return "identity_resolved"
	case PromptExtracted:
		return "prompt_extracted"
	case AliasesExpanded:
		return "aliases_expanded"
	case BackendInvoked:
		return "backend_invoked"
	case Logged:
		return "logged"
	case Replied:
		return "replied"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type FailureReason string

const (
	ReasonNone         FailureReason = ""
	ReasonEmptyPrompt  FailureReason = "empty_prompt"
	ReasonValidation   FailureReason = "validation"
	ReasonBackendError FailureReason = "backend_error"
	ReasonStorageError FailureReason = "storage_error"
	ReasonReplyError   FailureReason = "reply_error"
)

// Outcome is where a command ended up.
type Outcome struct {
	Command  string
	State    State
	Reason   FailureReason
	Err      error
	Identity identity.Identity
	Artifact string
}

const (
	greeting = "Yo! Send /picgen followed by a description and I will paint it. /help lists everything I can do."
	helpText = "/picgen <prompt> - generate a new image\n" +
		"/variation <prompt> - reply to a photo (or caption one) to get a variation\n" +
		"/teach %word <text> - make %word expand to <text> in your prompts\n" +
		"/forget %word - forget an alias\n" +
		"/mywords - list your aliases\n" +
		"/safemode on|off - send images hidden behind a spoiler"
	genericFailure = "Sorry, something went wrong on my side. Please try again later."
)

type IdentityResolver interface {
	Resolve(ctx context.Context, u identity.RawUser, c identity.RawChat) (identity.Identity, error)
}

type AliasBook interface {
	Teach(ctx context.Context, id identity.Identity, token, expansion string) error
	Forget(ctx context.Context, id identity.Identity, token string) error
	DumpAll(ctx context.Context, id identity.Identity) ([]alias.Alias, error)
}

type PromptExpander interface {
	Expand(ctx context.Context, id identity.Identity, text string) (string, error)
}

type ImageGenerator interface {
	GenerateNew(ctx context.Context, prompt string) (imagegen.Artifact, error)
	GenerateVariation(ctx context.Context, prompt string, src []byte) (imagegen.Artifact, error)
}

type ArtifactLoader interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

type GenerationRecorder interface {
	Record(ctx context.Context, id identity.Identity, prompt, artifactName string, kind store.ImageKind, params map[string]any)
}

type SpoilerSettings interface {
	Spoiler(ctx context.Context, id identity.Identity) (bool, error)
	SetSpoiler(ctx context.Context, id identity.Identity, enabled bool) error
}

type Deps struct {
	Identities IdentityResolver
	Aliases    AliasBook
	Expander   PromptExpander
	Generator  ImageGenerator
	Artifacts  ArtifactLoader
	Log        GenerationRecorder
	SafeModes  SpoilerSettings
	Logger     *zap.Logger

	// BotName is the bot's own username without "@".
	BotName        string
	BackendTimeout time.Duration
}

type Orchestrator struct {
	identities     IdentityResolver
	aliases        AliasBook
	expander       PromptExpander
	generator      ImageGenerator
	artifacts      ArtifactLoader
	log            GenerationRecorder
	safeModes      SpoilerSettings
	logger         *zap.Logger
	botName        string
	backendTimeout time.Duration
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.BackendTimeout <= 0 {
		d.BackendTimeout = 3 * time.Minute
	}
	return &Orchestrator{
		identities:     d.Identities,
		aliases:        d.Aliases,
		expander:       d.Expander,
		generator:      d.Generator,
		artifacts:      d.Artifacts,
		log:            d.Log,
		safeModes:      d.SafeModes,
		logger:         d.Logger,
		botName:        strings.TrimPrefix(d.BotName, "@"),
		backendTimeout: d.BackendTimeout,
	}
}

func (o *Orchestrator) Handle(ctx context.Context, cmd Command, r Replier) Outcome {
	name, ok := parseCommand(cmd.Text, o.botName)
	if !ok {
		return Outcome{State: Ignored}
	}
	out := Outcome{Command: name, State: Received}
	logger := o.logger.With(zap.String("request_id", cmd.RequestID), zap.String("command", name))

	id, err := o.identities.Resolve(ctx, cmd.User, cmd.Chat)
	if err != nil {
		return o.fail(ctx, logger, r, out, err)
	}
	out.State = IdentityResolved
	out.Identity = id
	logger = logger.With(zap.Uint64("identity_id", id.ID))

	args := extractArgs(cmd.Text, o.botName)

	switch name {
	case CmdStart:
		return o.reply(ctx, logger, r, out, greeting)
	case CmdHelp:
		return o.reply(ctx, logger, r, out, helpText)
	case CmdTeach:
		token, expansion := splitToken(args)
		if err := o.aliases.Teach(ctx, id, token, expansion); err != nil {
			return o.fail(ctx, logger, r, out, err)
		}
		return o.reply(ctx, logger, r, out, fmt.Sprintf("Taught alias %s.", alias.NormalizeToken(token)))
	case CmdForget:
		token := firstField(args)
		if err := o.aliases.Forget(ctx, id, token); err != nil {
			return o.fail(ctx, logger, r, out, err)
		}
		return o.reply(ctx, logger, r, out, fmt.Sprintf("Forgot alias %s.", alias.NormalizeToken(token)))
	case CmdMyWords:
		all, err := o.aliases.DumpAll(ctx, id)
		if err != nil {
			return o.fail(ctx, logger, r, out, err)
		}
		return o.reply(ctx, logger, r, out, formatAliases(all))
	case CmdSafeMode:
		if err := o.SetSafeMode(ctx, id, args); err != nil {
			return o.fail(ctx, logger, r, out, err)
		}
		return o.reply(ctx, logger, r, out, fmt.Sprintf("Safe mode is now %s.", strings.TrimSpace(args)))
	case CmdPicgen:
		return o.generate(ctx, logger, cmd, r, out, args, store.ImageNew)
	case CmdVariation:
		return o.generate(ctx, logger, cmd, r, out, args, store.ImageVariation)
	}
	return Outcome{State: Ignored}
}

// SetSafeMode turns the identity's spoiler flag on or off for future replies.
func (o *Orchestrator) SetSafeMode(ctx context.Context, id identity.Identity, value string) error {
	enabled, err := ParseSafeMode(value)
	if err != nil {
		return err
	}
	return o.safeModes.SetSpoiler(ctx, id, enabled)
}

func (o *Orchestrator) generate(ctx context.Context, logger *zap.Logger, cmd Command, r Replier, out Outcome, prompt string, kind store.ImageKind) Outcome {
	if prompt == "" {
		out.State = Failed
		out.Reason = ReasonEmptyPrompt
		hint := "Please provide a prompt, e.g. /picgen a red fox in the snow"
		if kind == store.ImageVariation {
			hint = "Please provide a prompt, e.g. reply to a photo with /variation as an oil painting"
		}
		o.send(ctx, logger, r, hint)
		return out
	}
	out.State = PromptExtracted

	expanded, err := o.expander.Expand(ctx, out.Identity, prompt)
	if err != nil {
		return o.fail(ctx, logger, r, out, common.NewStorageError("expand aliases", err))
	}
	out.State = AliasesExpanded

	var src []byte
	if kind == store.ImageVariation {
		if cmd.Image == nil {
			return o.fail(ctx, logger, r, out, common.Validationf("Please provide (or reply to) an image with a prompt to generate a variation of it."))
		}
		if src, err = cmd.Image.Fetch(ctx); err != nil {
			return o.fail(ctx, logger, r, out, common.NewBackendError("Could not download the source image.", err))
		}
	}

	bctx, cancel := context.WithTimeout(ctx, o.backendTimeout)
	var art imagegen.Artifact
	if kind == store.ImageVariation {
		art, err = o.generator.GenerateVariation(bctx, expanded, src)
	} else {
		art, err = o.generator.GenerateNew(bctx, expanded)
	}
	cancel()
	if err != nil {
		return o.fail(ctx, logger, r, out, err)
	}
	out.State = BackendInvoked
	out.Artifact = art.Name

	o.log.Record(ctx, out.Identity, expanded, art.Name, kind, art.Params)
	out.State = Logged

	png, err := o.artifacts.Get(ctx, art.Name)
	if err != nil {
		return o.fail(ctx, logger, r, out, common.NewStorageError("load artifact", err))
	}

	spoiler, err := o.safeModes.Spoiler(ctx, out.Identity)
	if err != nil {
		// unknown preference: hide the image
		logger.Warn("read safe mode failed, sending hidden", zap.Error(err))
		spoiler = true
	}

	if err := r.SendPhoto(ctx, png, spoiler); err != nil {
		logger.Error("send photo failed", zap.String("artifact", art.Name), zap.Error(err))
		out.State = Failed
		out.Reason = ReasonReplyError
		out.Err = err
		return out
	}
	out.State = Replied
	logger.Info("image sent", zap.String("artifact", art.Name), zap.String("kind", string(kind)), zap.Bool("spoiler", spoiler))
	return out
}

func (o *Orchestrator) reply(ctx context.Context, logger *zap.Logger, r Replier, out Outcome, text string) Outcome {
	if err := r.SendText(ctx, text); err != nil {
		logger.Error("send reply failed", zap.Error(err))
		out.State = Failed
		out.Reason = ReasonReplyError
		out.Err = err
		return out
	}
	out.State = Replied
	return out
}

// fail classifies err, tells the user what they need to know and ends the command.
func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, r Replier, out Outcome, err error) Outcome {
	out.State = Failed
	out.Err = err

	var (
		ve *common.ValidationError
		be *common.BackendError
	)
	switch {
	case errors.As(err, &ve):
		out.Reason = ReasonValidation
		logger.Debug("rejected input", zap.String("reason", ve.Reason))
		o.send(ctx, logger, r, ve.Reason)
	case errors.As(err, &be):
		out.Reason = ReasonBackendError
		logger.Warn("image backend failed", zap.Error(err))
		o.send(ctx, logger, r, be.Detail)
	default:
		out.Reason = ReasonStorageError
		logger.Error("command failed", zap.Error(err))
		o.send(ctx, logger, r, genericFailure)
	}
	return out
}

func (o *Orchestrator) send(ctx context.Context, logger *zap.Logger, r Replier, text string) {
	if err := r.SendText(ctx, text); err != nil {
		logger.Error("send reply failed", zap.Error(err))
	}
}

func formatAliases(all []alias.Alias) string {
	if len(all) == 0 {
		return "No aliases found."
	}
	var b strings.Builder
	b.WriteString("Your aliases:\n")
	for _, a := range all {
		b.WriteString(a.Token)
		b.WriteString(": ")
		b.WriteString(a.Expansion)
		b.WriteString("\n")
	}
	return b.String()
}

// splitToken splits "token rest of text" at the first whitespace.
func splitToken(s string) (token, rest string) {
	i := strings.IndexFunc(s, isSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
