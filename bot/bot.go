package bot

import (
	"context"
	"fmt"
	stdimage "image"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/watzon/cubeglobe-bot/bot/config"
	"github.com/watzon/cubeglobe-bot/bot/image"
	"github.com/watzon/cubeglobe-bot/bot/notify"
	"github.com/watzon/cubeglobe-bot/bot/platform"
	"github.com/watzon/cubeglobe-bot/bot/schedule"
	"github.com/watzon/cubeglobe-bot/bot/state"
	"github.com/watzon/cubeglobe-bot/world"
)

// Renderer turns a generated map into an image.
type Renderer interface {
	Render(m *world.Map, label string) (stdimage.Image, error)
}

// Deps are the collaborators a Bot needs. Notifier and Logger are optional.
type Deps struct {
	Poster   platform.Poster
	Renderer Renderer
	Notifier notify.Notifier
	Logger   *zap.Logger
}

// Bot generates landscapes and posts them on a schedule
type Bot struct {
	config     *config.Config
	poster     platform.Poster
	renderer   Renderer
	generator  *world.Generator
	imgHandler *image.Handler
	store      *state.Store
	schedule   schedule.Schedule
	notifier   notify.Notifier
	logger     *zap.Logger

	rng   *rand.Rand
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewBot creates a new instance of the Bot
func NewBot(cfg *config.Config, deps Deps) (*Bot, error) {
	if deps.Poster == nil || deps.Renderer == nil {
		return nil, fmt.Errorf("poster and renderer are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	generator, err := world.NewGenerator(cfg.Bot.WorldOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create world generator: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sched, err := schedule.FromConfig(cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	return &Bot{
		config:     cfg,
		poster:     deps.Poster,
		renderer:   deps.Renderer,
		generator:  generator,
		imgHandler: image.NewHandler(cfg),
		store:      state.NewStore(cfg.Bot.StatePath, cfg.Bot.ImagesDir),
		schedule:   sched,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
		rng:        rng,
		now:        time.Now,
		sleep:      schedule.Sleep,
	}, nil
}

// Label is the text identifying a post, drawn on the image and appended to
// the status when show_seed is enabled.
func Label(id uint32, seed int64) string {
	return fmt.Sprintf("#%d · seed %d", id, seed)
}

// Caption returns the status text for post id rendered from seed. It only
// depends on configuration, id and seed.
func (b *Bot) Caption(id uint32, seed int64) string {
	text := b.config.Bot.Status
	if b.config.Bot.ShowSeed {
		text += "\n\n" + Label(id, seed)
	}
	return text
}

// Render generates the world for seed and renders it, labelled for post id
// when show_seed is enabled.
func (b *Bot) Render(id uint32, seed int64) (stdimage.Image, error) {
	m := b.generator.Generate(seed)

	label := ""
	if b.config.Bot.ShowSeed {
		label = Label(id, seed)
	}

	img, err := b.renderer.Render(m, label)
	if err != nil {
		return nil, fmt.Errorf("failed to render map: %w", err)
	}
	return img, nil
}

// generate renders and encodes the image for post id.
func (b *Bot) generate(id uint32, seed int64) (*image.Encoded, error) {
	img, err := b.Render(id, seed)
	if err != nil {
		return nil, err
	}
	enc, err := b.imgHandler.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return enc, nil
}

// prepare generates a new image for the current id, saves it and moves the
// state to the generated phase.
func (b *Bot) prepare(st state.State) (state.State, []byte, error) {
	seed := b.rng.Int63()
	enc, err := b.generate(st.ID, seed)
	if err != nil {
		return st, nil, err
	}

	name := state.ImageName(st.ID, enc.Ext)
	path, err := b.store.SaveImage(name, enc.Data)
	if err != nil {
		return st, nil, err
	}
	b.logger.Info("Generated image file",
		zap.String("path", path),
		zap.Uint32("id", st.ID),
		zap.Int64("seed", seed),
		zap.String("media_type", enc.MediaType),
		zap.Int("bytes", len(enc.Data)))

	st = st.Generated(seed, name)
	if err := b.store.Save(st); err != nil {
		return st, nil, fmt.Errorf("unable to persist state: %w", err)
	}
	return st, enc.Data, nil
}

// restore returns the image for a state left in the generated phase,
// regenerating it from the recorded seed when the file is gone.
func (b *Bot) restore(st state.State) (state.State, []byte, error) {
	data, err := b.store.LoadImage(st.Image)
	if err == nil {
		b.logger.Info("Retrying previously generated image", zap.Uint32("id", st.ID), zap.String("image", st.Image))
		return st, data, nil
	}

	b.logger.Warn("Saved image unavailable, regenerating from seed",
		zap.Uint32("id", st.ID),
		zap.Int64("seed", st.Seed),
		zap.Error(err))

	enc, err := b.generate(st.ID, st.Seed)
	if err != nil {
		return st, nil, err
	}
	name := state.ImageName(st.ID, enc.Ext)
	if _, err := b.store.SaveImage(name, enc.Data); err != nil {
		return st, nil, err
	}
	st = st.Generated(st.Seed, name)
	if err := b.store.Save(st); err != nil {
		return st, nil, fmt.Errorf("unable to persist state: %w", err)
	}
	return st, enc.Data, nil
}

// post publishes the image for st.
func (b *Bot) post(ctx context.Context, st state.State, data []byte) (*platform.PostResult, error) {
	cfg := b.config.Bot
	res, err := b.poster.Post(ctx, platform.PostContent{
		Text:        b.Caption(st.ID, st.Seed),
		Image:       data,
		Path:        b.store.ImagePath(st.Image),
		Description: cfg.Description,
		Visibility:  cfg.Visibility,
		Sensitive:   cfg.Sensitive,
		SpoilerText: cfg.SpoilerText,
	})
	if err != nil {
		return nil, err
	}
	b.logger.Info("New status posted",
		zap.String("platform", b.poster.Platform()),
		zap.Uint32("id", st.ID),
		zap.String("uri", res.URI))
	return res, nil
}

// finish records a successful post and announces it.
func (b *Bot) finish(ctx context.Context, st state.State, res *platform.PostResult) (state.State, error) {
	next := st.Posted(b.now())
	if err := b.store.Save(next); err != nil {
		return next, fmt.Errorf("unable to persist state: %w", err)
	}

	ev := notify.Event{
		ID:       st.ID,
		Seed:     st.Seed,
		StatusID: res.ID,
		URL:      res.URL,
		PostedAt: next.LastPost,
	}
	if err := b.notifier.Notify(ctx, ev); err != nil {
		b.logger.Warn("Failed to announce post", zap.Uint32("id", st.ID), zap.Error(err))
	}
	return next, nil
}

func (b *Bot) loadState() state.State {
	st, err := b.store.Load()
	if err != nil {
		b.logger.Warn("State file unreadable, starting from defaults", zap.Error(err))
	}
	return st
}

// PostOnce immediately generates and posts an image without retrying.
func (b *Bot) PostOnce(ctx context.Context) error {
	b.logger.Info("Immediate post requested, generating...")

	st, data, err := b.prepare(b.loadState())
	if err != nil {
		return err
	}

	res, err := b.post(ctx, st, data)
	if err != nil {
		return fmt.Errorf("failed to post status: %w", err)
	}

	_, err = b.finish(ctx, st, res)
	return err
}

// Run waits for each scheduled post, generates and posts it, retrying failed
// posts with backoff, until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	st := b.loadState()
	var current []byte
	attempt := 0

	for {
		var err error

		if st.Phase == state.Awaiting {
			if err := b.waitForSchedule(ctx, st); err != nil {
				return err
			}
			st, current, err = b.prepare(st)
			if err != nil {
				return err
			}
		}

		if current == nil {
			st, current, err = b.restore(st)
			if err != nil {
				return err
			}
		}

		attempt++
		res, err := b.post(ctx, st, current)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			backoff := schedule.Backoff(attempt)
			b.logger.Warn("Failed to post",
				zap.Uint32("id", st.ID),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			if err := b.sleep(ctx, backoff); err != nil {
				return err
			}
			continue
		}

		attempt = 0
		current = nil
		if st, err = b.finish(ctx, st, res); err != nil {
			return err
		}
	}
}

func (b *Bot) waitForSchedule(ctx context.Context, st state.State) error {
	if st.LastPost.IsZero() {
		b.logger.Info("State shows no previous post, starting first one...")
		return ctx.Err()
	}

	scheduled := b.schedule.Next(st.LastPost)
	wait := scheduled.Sub(b.now())
	if wait <= 0 {
		b.logger.Info("Post is overdue, starting new post...", zap.Time("scheduled", scheduled))
		return ctx.Err()
	}

	b.logger.Info("Sleeping until next post", zap.Time("scheduled", scheduled), zap.Duration("wait", wait))
	if err := b.sleep(ctx, wait); err != nil {
		return err
	}
	b.logger.Info("Done sleeping, starting new post...")
	return nil
}
