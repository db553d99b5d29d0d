// Command sagerun operates the review-classifier pipeline: it seeds the
// data bucket, submits the pipeline definition, starts and watches
// executions, and pulls evaluation and debugger reports afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsv1 "github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/modelrocket/sagerun/internal/ctxlog"
	"github.com/modelrocket/sagerun/internal/reviews"
	"github.com/modelrocket/sagerun/pkg/config"
	"github.com/modelrocket/sagerun/pkg/control"
	"github.com/modelrocket/sagerun/pkg/datasync"
	"github.com/modelrocket/sagerun/pkg/lineage"
	"github.com/modelrocket/sagerun/pkg/pipeline"
	"github.com/modelrocket/sagerun/pkg/pipeline/drawer"
)

const usage = `usage: sagerun <command> [flags]

commands:
  sync-data   copy the source dataset into the pipeline bucket and upload job scripts
  upsert      create or update the pipeline definition
  run         upsert, ensure experiment/trial/model group, start an execution and watch it
  watch       watch a running execution until it finishes
  status      print the current status and steps of an execution
  report      print the evaluation report, model artifact and debugger results
  draw        write the pipeline graph as a DOT file
  approve     approve the latest model package in the registry
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1], os.Args[2:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}

		ctxlog.FromContext(ctx).WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// paramFlags collects repeated -p name=value overrides.
type paramFlags map[string]string

func (p paramFlags) String() string { return fmt.Sprintf("%v", map[string]string(p)) }

func (p paramFlags) Set(value string) error {
	name, val, ok := strings.Cut(value, "=")
	if !ok {
		return errors.Errorf("override %q is not name=value", value)
	}

	p[name] = val

	return nil
}

type env struct {
	cfg config.Config
	log logrus.FieldLogger
	ctx context.Context
}

func setup(ctx context.Context, flags *flag.FlagSet, args []string) (*env, error) {
	configPath := flags.String("config", "sagerun.yml", "run configuration file")

	err := flags.Parse(args)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	log := ctxlog.New(cfg.LogLevel, cfg.LogFormat)

	// Keep the FromContext fallback aligned with the configured logger.
	ctxlog.SetLevel(cfg.LogLevel)
	ctxlog.SetFormat(cfg.LogFormat)

	return &env{cfg: cfg, log: log, ctx: ctxlog.Context(ctx, log)}, nil
}

func (e *env) controlClient() *control.Client {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		Config:            awsv1.Config{Region: awsv1.String(e.cfg.Region)},
		SharedConfigState: session.SharedConfigEnable,
	}))

	return control.NewFromSession(sess, e.log)
}

func run(ctx context.Context, command string, args []string) error {
	switch command {
	case "sync-data":
		return cmdSyncData(ctx, args)
	case "upsert":
		return cmdUpsert(ctx, args)
	case "run":
		return cmdRun(ctx, args)
	case "watch":
		return cmdWatch(ctx, args)
	case "status":
		return cmdStatus(ctx, args)
	case "report":
		return cmdReport(ctx, args)
	case "draw":
		return cmdDraw(ctx, args)
	case "approve":
		return cmdApprove(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)

		return nil
	default:
		fmt.Fprint(os.Stderr, usage)

		return errors.Errorf("unknown command %q", command)
	}
}

func cmdSyncData(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("sync-data", flag.ContinueOnError)
	concurrency := flags.Int("concurrency", 8, "parallel object copies")

	e, err := setup(ctx, flags, args)
	if err != nil {
		return err
	}

	client, err := datasync.NewClient(e.ctx, e.cfg.Region)
	if err != nil {
		return err
	}

	copier := &datasync.Copier{S3: client, Concurrency: *concurrency, Log: e.log}

	stats, err := copier.CopyPrefix(e.ctx, e.cfg.SourceBucket, e.cfg.SourcePrefix, e.cfg.Bucket, e.cfg.DataPrefix())
	if err != nil {
		return err
	}

	e.log.WithField("objects", stats.Objects+stats.Skipped).Info("dataset in place")

	transfer := datasync.NewTransfer(client, e.log)

	_, err = transfer.UploadScripts(e.ctx, e.cfg.Bucket, e.cfg.ScriptPrefix(),
		e.cfg.Scripts.Process, e.cfg.Scripts.Train, e.cfg.Scripts.Evaluate)

	return err
}

func buildDefinition(cfg config.Config) (*pipeline.Pipeline, []byte, error) {
	pipe, err := reviews.Build(cfg)
	if err != nil {
		return nil, nil, err
	}

	definition, err := pipe.Definition()
	if err != nil {
		return nil, nil, err
	}

	return pipe, definition, nil
}

func cmdUpsert(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("upsert", flag.ContinueOnError)

	e, err := setup(ctx, flags, args)
	if err != nil {
		return err
	}

	pipe, definition, err := buildDefinition(e.cfg)
	if err != nil {
		return err
	}

	arn, _, err := e.controlClient().EnsurePipeline(e.ctx, pipe.Name(), e.cfg.RoleARN, pipe.Description(), definition)
	if err != nil {
		return err
	}

	fmt.Println(arn)

	return nil
}

func cmdRun(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	overrides := paramFlags{}
	flags.Var(overrides, "p", "parameter override name=value (repeatable)")
	displayName := flags.String("name", "", "execution display name")
	noWait := flags.Bool("no-wait", false, "start the execution and return immediately")

	e, err := setup(ctx, flags, args)
	if err != nil {
		return err
	}

	pipe, definition, err := buildDefinition(e.cfg)
	if err != nil {
		return err
	}

	client := e.controlClient()

	_, _, err = client.EnsurePipeline(e.ctx, pipe.Name(), e.cfg.RoleARN, pipe.Description(), definition)
	if err != nil {
		return err
	}

	_, err = client.EnsureExperiment(e.ctx, e.cfg.ExperimentName, "review classifier experiments")
	if err != nil {
		return err
	}

	_, err = client.EnsureModelPackageGroup(e.ctx, e.cfg.ModelPackageGroup, "review classifier model versions")
	if err != nil {
		return err
	}

	executionARN, err := client.StartExecution(e.ctx, control.StartRequest{
		PipelineName: pipe.Name(),
		DisplayName:  *displayName,
		Description:  "started by sagerun",
		Declared:     pipe.Parameters(),
		Overrides:    overrides,
	})
	if err != nil {
		return err
	}

	fmt.Println(executionARN)

	if *noWait {
		return nil
	}

	return watchExecution(e, client, executionARN)
}

func watchExecution(e *env, client *control.Client, executionARN string) error {
	watcher := &control.Watcher{
		Client:   client,
		Interval: e.cfg.PollInterval.Duration(),
		Timeout:  e.cfg.WatchTimeout.Duration(),
	}

	execution, err := watcher.Wait(e.ctx, executionARN)
	if err != nil {
		return err
	}

	if execution.Status != control.ExecutionSucceeded {
		return errors.Errorf("execution %s finished with status %s: %s", executionARN, execution.Status, execution.FailureReason)
	}

	steps, err := client.ListExecutionSteps(e.ctx, executionARN)
	if err != nil {
		return err
	}

	for _, timing := range control.Timings(steps).Steps {
		e.log.WithField("step", timing.Name).WithField("elapsed", timing.Elapsed).Info("step finished")
	}

	return nil
}

func executionFlag(flags *flag.FlagSet) *string {
	return flags.String("execution", "", "pipeline execution ARN")
}

func cmdWatch(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("watch", flag.ContinueOnError)
	executionARN := executionFlag(flags)

	e, err := setup(ctx, flags, args)
	if err != nil {
		return err
	}

	if *executionARN == "" {
		return errors.New("-execution must be set")
	}

	return watchExecution(e, e.controlClient(), *executionARN)
}

func cmdStatus(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	executionARN := executionFlag(flags)

	e, err := setup(ctx, flags, args)
	if err != nil {
		return err
	}

	if *executionARN == "" {
		return errors.New("-execution must be set")
	}

	client := e.controlClient()

	execution, err := client.DescribeExecution(e.ctx, *executionARN)
	if err != nil {
		return err
	}

	fmt.Printf("%s\t%s\n", execution.Status, execution.ARN)

	steps, err := client.ListExecutionSteps(e.ctx, *executionARN)
	if err != nil {
		return err
	}

	for _, step := range steps {
		line := fmt.Sprintf("%s\t%s\t%s", step.Name, step.Status, control.Round(step.Elapsed()))
		if step.FailureReason != "" {
			line += "\t" + step.FailureReason
		}

		fmt.Println(line)
	}

	params, err := client.EffectiveParameters(e.ctx, *executionARN)
	if err != nil {
		return err
	}

	for name, value := range params {
		e.log.WithField("parameter", name).WithField("value", value).Debug("effective parameter")
	}

	return nil
}

func cmdReport(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("report", flag.ContinueOnError)
	executionARN := executionFlag(flags)

	e, err := setup(ctx, flags, args)
	if err != nil {
		return err
	}

	if *executionARN == "" {
		return errors.New("-execution must be set")
	}

	client := e.controlClient()

	steps, err := client.ListExecutionSteps(e.ctx, *executionARN)
	if err != nil {
		return err
	}

	s3client, err := datasync.NewClient(e.ctx, e.cfg.Region)
	if err != nil {
		return err
	}

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		Config:            awsv1.Config{Region: awsv1.String(e.cfg.Region)},
		SharedConfigState: session.SharedConfigEnable,
	}))
	resolver := &lineage.Resolver{
		SM:    sagemaker.New(sess),
		Store: datasync.NewTransfer(s3client, e.log),
	}

	report, err := resolver.EvaluationReport(e.ctx, steps, reviews.EvaluateStepName, reviews.MetricsOutputName, reviews.ReportFileName)
	if err != nil {
		return err
	}

	fmt.Printf("accuracy\t%v\n", report.Metrics.Accuracy.Value)

	if passed, ok := lineage.ConditionOutcome(steps); ok {
		fmt.Printf("gate\t%v\n", passed)
	}

	artifact, err := resolver.ModelArtifact(e.ctx, steps, reviews.TrainStepName)
	if err != nil {
		return err
	}

	fmt.Printf("model\t%s\n", artifact.S3URI)

	for name, value := range artifact.FinalMetrics {
		fmt.Printf("metric\t%s\t%v\n", name, value)
	}

	debug, err := resolver.DebugReport(e.ctx, steps, reviews.TrainStepName)
	if err != nil {
		return err
	}

	for _, rule := range append(debug.DebugRules, debug.ProfilerRules...) {
		fmt.Printf("rule\t%s\t%s\n", rule.Rule, rule.Status)
	}

	if debug.ProfilerS3Path != "" {
		fmt.Printf("profiler\t%s\n", debug.ProfilerS3Path)
	}

	return nil
}

func cmdDraw(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("draw", flag.ContinueOnError)
	executionARN := executionFlag(flags)
	out := flags.String("out", "pipeline.dot", "output DOT file")

	e, err := setup(ctx, flags, args)
	if err != nil {
		return err
	}

	pipe, err := reviews.Build(e.cfg)
	if err != nil {
		return err
	}

	d := drawer.NewDOTDrawer(*out)

	for _, info := range pipe.StepInfos() {
		err := d.AddStep(info.Name)
		if err != nil {
			return err
		}
	}

	links, err := pipe.Links()
	if err != nil {
		return err
	}

	for _, link := range links {
		err := d.AddLink(link[0], link[1])
		if err != nil {
			return err
		}
	}

	if *executionARN != "" {
		steps, err := e.controlClient().ListExecutionSteps(e.ctx, *executionARN)
		if err != nil {
			return err
		}

		for _, step := range steps {
			err := d.SetStatus(step)
			if err != nil {
				e.log.WithError(err).WithField("step", step.Name).Warn("unable to label step")
			}
		}
	}

	return d.Draw()
}

func cmdApprove(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("approve", flag.ContinueOnError)

	e, err := setup(ctx, flags, args)
	if err != nil {
		return err
	}

	client := e.controlClient()

	latest, err := client.LatestModelPackage(e.ctx, e.cfg.ModelPackageGroup)
	if err != nil {
		return err
	}

	e.log.WithField("version", latest.Version).WithField("status", latest.ApprovalStatus).Info("latest model package")

	return client.ApproveModelPackage(e.ctx, latest.ARN)
}
