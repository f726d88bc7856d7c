package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "environment file to load before reading configuration",
		Value: ".env",
	}
}

func idFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Usage:    "job id",
		Required: true,
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "studioctl",
		Usage: "run and inspect media generation jobs against the configured store",
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "create a job and run it to completion",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{Name: "type", Usage: "image, audio or video", Value: "image"},
					&cli.StringFlag{Name: "prompt", Usage: "generation prompt", Required: true},
					&cli.StringFlag{Name: "model", Usage: "model id, defaults to the configured model for the type"},
					&cli.StringFlag{Name: "mode", Usage: "image mode (text2img, img2img, inpaint, ...)"},
					&cli.StringFlag{Name: "orchestration", Usage: "video orchestration mode (orchestrated, scripted_slideshow)"},
					&cli.StringFlag{Name: "quality", Usage: "standard, cinematic or ultra_realistic"},
					&cli.StringFlag{Name: "aspect", Usage: "aspect ratio such as 16:9"},
					&cli.IntFlag{Name: "duration", Usage: "video duration in seconds"},
					&cli.StringSliceFlag{Name: "shot", Usage: "shot description, repeatable"},
					&cli.StringFlag{Name: "storyboard", Usage: "storyboard text"},
					&cli.StringFlag{Name: "voice-script", Usage: "narration script"},
					&cli.StringFlag{Name: "reference", Usage: "reference media path or URL"},
					&cli.StringFlag{Name: "avatar", Usage: "avatar profile id"},
					&cli.BoolFlag{Name: "brand-logo", Usage: "composite the brand logo onto images"},
					&cli.BoolFlag{Name: "json", Usage: "print the job as JSON"},
				},
				Action: generateAction,
			},
			{
				Name:  "job",
				Usage: "inspect stored jobs",
				Commands: []*cli.Command{
					{
						Name:   "get",
						Usage:  "show a job",
						Flags:  []cli.Flag{envFlag(), idFlag(), &cli.BoolFlag{Name: "json", Usage: "print the job as JSON"}},
						Action: jobGetAction,
					},
					{
						Name:   "segments",
						Usage:  "list the segments of a job",
						Flags:  []cli.Flag{envFlag(), idFlag()},
						Action: jobSegmentsAction,
					},
				},
			},
			{
				Name:   "critic",
				Usage:  "score a completed video job",
				Flags:  []cli.Flag{envFlag(), idFlag()},
				Action: criticAction,
			},
			{
				Name:  "reconcile",
				Usage: "fail processing jobs older than the given age",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{Name: "max-age-minutes", Usage: "age threshold, defaults to STALE_JOB_MINUTES"},
					&cli.IntFlag{Name: "limit", Usage: "maximum jobs to fail", Value: 100},
				},
				Action: reconcileAction,
			},
			{
				Name:  "setting",
				Usage: "manage stored settings (postgres only)",
				Commands: []*cli.Command{
					{
						Name:  "set",
						Usage: "store a setting value",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "key", Usage: "setting key", Required: true},
							&cli.StringFlag{Name: "value", Usage: "setting value, empty clears it"},
						},
						Action: settingSetAction,
					},
				},
			},
		},
	}
}
