package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"storyboard-ai/config"
	"storyboard-ai/internal/appcore"
	"storyboard-ai/internal/appdirs"
	"storyboard-ai/internal/deps"
	"storyboard-ai/internal/service"
	"storyboard-ai/internal/storage"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"

	"go.uber.org/zap"
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	if opts.showVersion {
		printVersion(stdout)
	}
	if opts.showDiagnose {
		if opts.showVersion {
			fmt.Fprintln(stdout)
		}
		if _, err = config.LoadOrCreateConfig(); err != nil {
			fmt.Fprintf(stdout, "config: <error: %v>\n", err)
		}
		printDiagnose(stdout)
	}
	if !opts.needsStoryboard() {
		return 0
	}

	if opts.importSeed != "" {
		res, err := service.ImportStoryboard(opts.importSeed, opts.storyboard)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		printImport(stdout, res)
	}
	if opts.check || opts.plan {
		res, err := service.CheckStoryboard(opts.storyboard)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		if opts.check {
			printCheck(stdout, res)
		}
		if opts.plan {
			printPlan(stdout, res.Plan)
		}
	}
	if !opts.run && !opts.assemble {
		return 0
	}

	log.InitLogger()
	defer log.GetLogger().Sync()
	if !config.LoadConfig() {
		return 1
	}
	if err = config.CheckConfig(); err != nil {
		log.GetLogger().Error("加载配置失败 Load config failed", zap.Error(err))
		return 1
	}
	if dirs, err := appdirs.Resolve(); err == nil {
		if err = appdirs.Ensure(dirs); err != nil {
			log.GetLogger().Error("创建运行目录失败 Create runtime dirs failed", zap.Error(err))
			return 1
		}
	}
	if err = storage.InitDB(); err != nil {
		log.GetLogger().Warn("运行历史不可用 Run history disabled", zap.Error(err))
	}
	if err = deps.CheckDependency(); err != nil {
		log.GetLogger().Error("依赖环境准备失败 Dependency check failed", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	svc := service.NewService()

	if opts.run {
		return runStoryboard(ctx, svc, opts, stdout, stderr)
	}
	return assembleStoryboard(ctx, svc, opts, stdout, stderr)
}

func runStoryboard(ctx context.Context, svc *service.Service, opts cliOptions, stdout, stderr io.Writer) int {
	report, err := svc.RunStoryboard(ctx, service.RunOptions{
		StoryboardPath: opts.storyboard,
		SaveDir:        opts.saveDir,
		Summary:        opts.summary,
		ManageInstance: opts.manageInstance,
		Transcribe:     opts.transcribe,
		Proofread:      opts.proofread,
		Assemble:       opts.assemble,
		Publish:        opts.publish,
		Events:         eventPrinter(stdout),
	})
	printReport(stdout, report)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func assembleStoryboard(ctx context.Context, svc *service.Service, opts cliOptions, stdout, stderr io.Writer) int {
	sb, err := storyboard.Load(opts.storyboard)
	if err == nil {
		storyboard.Ingest(sb, storyboard.FileExists)
		err = storyboard.Validate(sb)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	artifacts, err := svc.Assemble(ctx, sb, service.AssembleOptions{SaveDir: opts.saveDir, Publish: opts.publish})
	printReport(stdout, &types.RunReport{Artifacts: artifacts})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func eventPrinter(w io.Writer) appcore.EventSink {
	return func(ev appcore.RunEvent) {
		switch {
		case ev.Progress != nil:
			fmt.Fprintf(w, "[%s] %s %d/%d\n", ev.Stage, ev.Progress.Stage, ev.Progress.Current, ev.Progress.Total)
		case ev.Err != "":
			fmt.Fprintf(w, "[%s] %s\n", ev.Stage, ev.Err)
		default:
			fmt.Fprintf(w, "[%s] %s\n", ev.Stage, ev.Message)
		}
	}
}
