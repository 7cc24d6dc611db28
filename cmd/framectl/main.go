package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/framelab/actionframes/internal/app"
	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/infra/config"
	"github.com/framelab/actionframes/internal/infra/ollama"
	"github.com/framelab/actionframes/internal/infra/rabbitmq"
	"github.com/framelab/actionframes/internal/usecase"
	"github.com/framelab/actionframes/pkg/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func printHelp() {
	fmt.Println(`Usage:
  framectl extract  [-fps F] [-offset S] [-width W] [-format jpg|png|webp|bmp|tiff] VIDEO...
  framectl detect   -ns NAMESPACE [-threshold T] [-min_area A] [-batch N] [--export]
  framectl regions  -frame BLOB_NAME
  framectl annotate -frame BLOB_NAME -boxes "x,y,w,h;x,y,w,h"
  framectl markup   -ns NAMESPACE
  framectl submit   -video OBJECT_KEY [--detect] [-email ADDRESS]

Storage, defaults and service endpoints come from the environment (see config).`)
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	cfg, err := config.Load()
	exitOnErr(err, "load config")
	log, err := logger.New(cfg.LogLevel)
	exitOnErr(err, "init logger")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, args := os.Args[1], os.Args[2:]
	switch sub {
	case "extract":
		err = runExtract(ctx, cfg, log, args)
	case "detect":
		err = runDetect(ctx, cfg, log, args)
	case "regions":
		err = runRegions(ctx, cfg, log, args)
	case "annotate":
		err = runAnnotate(ctx, cfg, log, args)
	case "markup":
		err = runMarkup(ctx, cfg, log, args)
	case "submit":
		err = runSubmit(ctx, cfg, args)
	case "help", "-h", "--help":
		printHelp()
		return
	default:
		fmt.Println("Unknown subcommand:", sub)
		printHelp()
		os.Exit(1)
	}
	exitOnErr(err, sub)
}

func runExtract(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	jobCfg := cfg.JobConfig()
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	fs.Float64Var(&jobCfg.TargetFrameRate, "fps", jobCfg.TargetFrameRate, "frames sampled per second of video")
	fs.Float64Var(&jobCfg.StartOffsetSeconds, "offset", jobCfg.StartOffsetSeconds, "seconds skipped at the start")
	fs.IntVar(&jobCfg.ImageWidth, "width", jobCfg.ImageWidth, "width of the resized variant")
	fs.StringVar(&jobCfg.ImageFormat, "format", jobCfg.ImageFormat, "image format of stored frames")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("at least one video is required")
	}
	if err := jobCfg.Validate(); err != nil {
		return err
	}

	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}

	type result struct {
		Source        string                `json:"source"`
		Namespace     string                `json:"namespace,omitempty"`
		Status        entity.JobStatus      `json:"status,omitempty"`
		FramesWritten int                   `json:"frames_written"`
		Failures      []entity.FrameFailure `json:"failures,omitempty"`
		Error         string                `json:"error,omitempty"`
	}
	var out []result
	for _, item := range c.Pipeline.ExtractAll(ctx, fs.Args(), jobCfg) {
		r := result{Source: item.Source}
		if item.Job != nil {
			r.Namespace = item.Job.Namespace
			r.Status = item.Job.Status
			r.FramesWritten = item.Job.FramesWritten
			r.Failures = item.Job.Failures
		}
		if item.Err != nil {
			r.Error = item.Err.Error()
		}
		out = append(out, r)
	}
	return printJSON(out)
}

func detectFlags(name string, cfg *config.Config) (*flag.FlagSet, *string, *entity.DiffParams) {
	params := cfg.DiffParams()
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	ns := fs.String("ns", "", "job namespace")
	fs.Float64Var(&params.Threshold, "threshold", params.Threshold, "per-pixel difference threshold (0-255]")
	fs.Float64Var(&params.MinArea, "min_area", params.MinArea, "minimum changed contour area in pixels")
	fs.IntVar(&params.BatchSize, "batch", params.BatchSize, "frames held in memory per window")
	return fs, ns, &params
}

func detect(ctx context.Context, c *app.Components, ns string, params entity.DiffParams) (*entity.DiffReport, []entity.ActionFrame, error) {
	if ns == "" {
		return nil, nil, fmt.Errorf("-ns is required")
	}
	report, err := c.Pipeline.DetectActions(ctx, ns, params)
	if err != nil {
		return nil, nil, err
	}
	actions, err := c.Pipeline.MapToOriginals(ctx, ns, report.Flagged)
	if err != nil {
		return nil, nil, err
	}
	for i := range actions {
		if n, ok := report.RegionCounts[actions[i].Key]; ok {
			actions[i].RegionCount = &n
		}
	}
	return report, actions, nil
}

func runDetect(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs, ns, params := detectFlags("detect", cfg)
	export := fs.Bool("export", false, "zip the original action frames into the namespace")
	_ = fs.Parse(args)

	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	report, actions, err := detect(ctx, c, *ns, *params)
	if err != nil {
		return err
	}

	var archive string
	if *export && len(actions) > 0 {
		if archive, err = c.Pipeline.ExportActionFrames(ctx, *ns, actions); err != nil {
			return err
		}
	}
	return printJSON(map[string]any{
		"compared": report.Compared,
		"actions":  actions,
		"failures": report.Failures,
		"archive":  archive,
	})
}

func runRegions(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("regions", flag.ExitOnError)
	frame := fs.String("frame", "", "blob name of a stored frame")
	_ = fs.Parse(args)
	if *frame == "" {
		return fmt.Errorf("-frame is required")
	}

	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	res, err := c.Regions.DetectRegionsByName(ctx, *frame)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"frame":   res.FrameID,
		"count":   res.Count,
		"source":  res.Source,
		"regions": res.Regions,
	})
}

func runAnnotate(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("annotate", flag.ExitOnError)
	frame := fs.String("frame", "", "blob name of a stored frame")
	boxArg := fs.String("boxes", "", `boxes as "x,y,w,h;x,y,w,h"; empty records zero regions`)
	_ = fs.Parse(args)
	if *frame == "" {
		return fmt.Errorf("-frame is required")
	}
	boxes, err := parseBoxes(*boxArg)
	if err != nil {
		return err
	}

	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := c.Regions.AddManualAnnotation(ctx, *frame, boxes); err != nil {
		return err
	}
	return printJSON(map[string]any{"frame": *frame, "count": len(boxes)})
}

func runMarkup(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs, ns, params := detectFlags("markup", cfg)
	_ = fs.Parse(args)

	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	_, actions, err := detect(ctx, c, *ns, *params)
	if err != nil {
		return err
	}

	renderer, err := ollama.NewMarkupRenderer(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaTimeout)
	if err != nil {
		return err
	}
	report, err := usecase.NewMarkupStage(renderer, c.Blobs, cfg.MarkupConcurrency, log).Run(ctx, *ns, actions)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runSubmit(ctx context.Context, cfg *config.Config, args []string) error {
	jobCfg := cfg.JobConfig()
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	video := fs.String("video", "", "object key of an uploaded video")
	detectActions := fs.Bool("detect", false, "run action detection and export after extraction")
	notify := fs.String("email", "", "address notified when the job aborts")
	fs.Float64Var(&jobCfg.TargetFrameRate, "fps", jobCfg.TargetFrameRate, "frames sampled per second of video")
	fs.IntVar(&jobCfg.ImageWidth, "width", jobCfg.ImageWidth, "width of the resized variant")
	_ = fs.Parse(args)
	if *video == "" {
		return fmt.Errorf("-video is required")
	}
	if err := jobCfg.Validate(); err != nil {
		return err
	}

	msg := entity.ExtractionRequestMessage{
		JobID:         uuid.New(),
		VideoKey:      *video,
		Config:        &jobCfg,
		DetectActions: *detectActions,
		NotifyEmail:   *notify,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange)
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := rabbitmq.DeclareTopology(pub.Channel(), cfg.RabbitMQExchange, cfg.RabbitMQExtractionQueue, cfg.RabbitMQStatusQueue, cfg.RabbitMQDLQ); err != nil {
		return err
	}
	if err := rabbitmq.NewRequestPublisher(pub).PublishRequest(ctx, body); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	return printJSON(map[string]any{"job_id": msg.JobID, "video_key": msg.VideoKey})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitOnErr(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}
