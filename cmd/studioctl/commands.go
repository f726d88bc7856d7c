package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"studio/internal/app"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/settings"
	"studio/internal/orchestrator"
)

// open loads the env file and builds the shared container. Logs go to stderr
// so command output stays clean.
func open(ctx context.Context, cmd *cli.Command) (*app.Container, error) {
	if env := cmd.String("env"); env != "" {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", env, err)
		}
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	return app.Build(ctx, cfg, infra.NewLoggerTo(os.Stderr, "development", level))
}

func generateAction(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	params := domain.GenerationParams{
		Model:              cmd.String("model"),
		Mode:               domain.JobMode(cmd.String("mode")),
		OrchestrationMode:  domain.JobMode(cmd.String("orchestration")),
		QualityTier:        domain.QualityTier(cmd.String("quality")),
		AspectRatio:        cmd.String("aspect"),
		ShotDescriptions:   cmd.StringSlice("shot"),
		Storyboard:         cmd.String("storyboard"),
		VoiceScript:        cmd.String("voice-script"),
		ReferenceMediaPath: cmd.String("reference"),
		AvatarProfileID:    cmd.String("avatar"),
		UseBrandLogo:       cmd.Bool("brand-logo"),
	}
	if d := cmd.Int("duration"); d > 0 {
		params.DurationSeconds = &d
	}

	job, err := c.Orchestrator.Generate(ctx, orchestrator.GenerateRequest{
		Type:   domain.JobType(cmd.String("type")),
		Prompt: cmd.String("prompt"),
		Params: params,
	})
	if job != nil {
		if perr := printJob(job, cmd.Bool("json")); perr != nil {
			return perr
		}
	}
	return err
}

func jobGetAction(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	job, err := c.Orchestrator.GetJob(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	return printJob(job, cmd.Bool("json"))
}

func jobSegmentsAction(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	segments, err := c.Orchestrator.ListSegments(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	fmt.Println(renderSegments(segments))
	return nil
}

func criticAction(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	id := cmd.String("id")
	if _, err := c.Critic.Annotate(ctx, id); err != nil {
		return err
	}
	job, err := c.Orchestrator.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return printJob(job, false)
}

func reconcileAction(ctx context.Context, cmd *cli.Command) error {
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	maxAge := c.Config.StaleJobAge
	if m := cmd.Int("max-age-minutes"); m > 0 {
		maxAge = time.Duration(m) * time.Minute
	}
	n, err := c.Orchestrator.ReconcileStale(ctx, maxAge, cmd.Int("limit"))
	if err != nil {
		return err
	}
	fmt.Printf("%s %d job(s) older than %s marked failed\n", okStyle.Render("reconciled"), n, maxAge)
	return nil
}

func settingSetAction(ctx context.Context, cmd *cli.Command) error {
	key := cmd.String("key")
	if !slices.Contains(settings.Keys, key) {
		return fmt.Errorf("unknown setting %q", key)
	}
	c, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if c.Settings == nil {
		return errors.New("settings are stored only with DATABASE_DRIVER=postgres")
	}
	if err := c.Settings.Set(ctx, key, cmd.String("value")); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", okStyle.Render("stored"), key)
	return nil
}

func printJob(job *domain.Job, asJSON bool) error {
	if !asJSON {
		fmt.Println(renderJob(job))
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
