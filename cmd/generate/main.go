package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"aistudio/internal/adapter/repo"
	"aistudio/internal/batch"
	"aistudio/internal/domain"
	"aistudio/internal/infra"
	"aistudio/internal/plancfg"
	"aistudio/internal/storage"
	"aistudio/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	pf, err := parsePlan(os.Args[1:], cfg.MaxAttemptsPerImage, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		exitWithError(err)
	}
	plan, err := pf.BatchPlan()
	if err != nil {
		exitWithError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := batch.Options{
		ImageDelay:     cfg.ImageDelay,
		RetryDelay:     cfg.RetryDelay,
		AttemptTimeout: cfg.AttemptTimeout,
		Logger:         &logger,
		Sinks: batch.Sinks{
			Progress: func(v int) { logger.Debug().Int("progress", v).Msg("generate: progress") },
			Log:      func(line string) { fmt.Fprintln(os.Stderr, line) },
			ImageDone: func(idx int, out domain.AttemptOutcome) {
				if out.OK {
					fmt.Fprintf(os.Stderr, "image %d/%d ok after %d attempt(s): %s\n", idx, plan.TotalImages, out.Attempts, out.ArtifactPath)
				} else {
					fmt.Fprintf(os.Stderr, "image %d/%d failed after %d attempt(s): %s\n", idx, plan.TotalImages, out.Attempts, out.ErrorMessage)
				}
			},
		},
	}

	if cfg.ReportDir != "" {
		store, err := storage.NewFileStore(cfg.ReportDir)
		if err != nil {
			logger.Warn().Err(err).Msg("generate: reports disabled")
		} else {
			opts.Reports = store
		}
	}
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("generate: batch history disabled")
		} else {
			defer pool.Close()
			batches := repo.NewBatchRepository(infra.NewSQLRunner(pool, logger))
			if err := batches.EnsureSchema(ctx); err != nil {
				logger.Warn().Err(err).Msg("generate: batch history disabled")
			} else {
				opts.Repository = batches
			}
		}
	}

	opener := stream.NewClient(stream.Options{
		BaseURL: cfg.GeneratorBaseURL,
		Method:  cfg.StreamMethod,
		Logger:  &logger,
	})
	outcomes, err := batch.New(opener, opts).Run(ctx, plan)
	if err != nil {
		exitWithError(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(outcomes)

	if domain.CountSucceeded(outcomes) != len(outcomes) || len(outcomes) != plan.TotalImages {
		os.Exit(1)
	}
}

// parsePlan builds a plan from -plan or from individual request flags.
// Explicit flags override values read from the plan file.
func parsePlan(args []string, defaultAttempts int, out io.Writer) (*plancfg.PlanFile, error) {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		planPath = fs.String("plan", "", "path to a YAML or JSON batch plan")
		prompt   = fs.String("prompt", "", "text prompt")
		model    = fs.String("model", "", "model identifier passed to the generator")
		filename = fs.String("filename", "", "base output filename (default output.png)")
		width    = fs.Int("width", 0, "image width in pixels (floor 256)")
		height   = fs.Int("height", 0, "image height in pixels (floor 256)")
		steps    = fs.Int("steps", 0, "inference steps")
		guidance = fs.Float64("guidance", 0, "guidance scale")
		device   = fs.String("device", "", "auto, cuda or cpu")
		prec     = fs.String("precision", "", "auto, float16 or float32")
		sched    = fs.String("scheduler", "", "sampler name")
		images   = fs.Int("n", 0, "number of images in the batch")
		attempts = fs.Int("max-attempts", -1, "attempts per image, 0 retries until success (default from MAX_ATTEMPTS_PER_IMAGE)")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	pf := &plancfg.PlanFile{}
	if *planPath != "" {
		loaded, err := plancfg.LoadFile(*planPath)
		if err != nil {
			return nil, err
		}
		pf = loaded
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	r := &pf.Request
	if set["prompt"] {
		r.Prompt = *prompt
	}
	if set["model"] {
		r.Model = *model
	}
	if set["filename"] {
		r.Filename = *filename
	}
	if set["width"] {
		r.Width = *width
	}
	if set["height"] {
		r.Height = *height
	}
	if set["steps"] {
		r.Steps = *steps
	}
	if set["guidance"] {
		r.Guidance = *guidance
	}
	if set["device"] {
		r.Device = *device
	}
	if set["precision"] {
		r.Precision = *prec
	}
	if set["scheduler"] {
		r.Scheduler = *sched
	}
	if set["n"] {
		n := *images
		pf.TotalImages = &n
	}
	if set["max-attempts"] {
		n := *attempts
		pf.MaxAttempts = &n
	}

	pf.Normalize(defaultAttempts)
	return pf, nil
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "generate: %v\n", err)
	os.Exit(1)
}
