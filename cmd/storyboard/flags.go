package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"storyboard-ai/config"
	"storyboard-ai/internal/appdirs"
	"storyboard-ai/internal/deps"
	"storyboard-ai/internal/service"
	"storyboard-ai/internal/storyboard"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var errNoCommand = errors.New("nothing to do: pass -import-seed, -check, -plan, -run or -assemble")

type cliOptions struct {
	showVersion  bool
	showDiagnose bool
	check        bool
	plan         bool
	run          bool
	assemble     bool
	importSeed   string

	storyboard     string
	summary        string
	saveDir        string
	transcribe     bool
	proofread      bool
	publish        bool
	manageInstance bool
}

func (o cliOptions) needsStoryboard() bool {
	return o.importSeed != "" || o.check || o.plan || o.run || o.assemble
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	flags := flag.NewFlagSet("storyboard", flag.ContinueOnError)
	flags.SetOutput(stderr)

	flags.BoolVar(&opts.showVersion, "version", false, "print version information")
	flags.BoolVar(&opts.showDiagnose, "diagnose", false, "print runtime diagnostics")
	flags.BoolVar(&opts.check, "check", false, "ingest the storyboard in memory and print what a run would do")
	flags.BoolVar(&opts.plan, "plan", false, "print the stage list of every shot")
	flags.BoolVar(&opts.run, "run", false, "run every pending stage")
	flags.BoolVar(&opts.assemble, "assemble", false, "assemble the final video (after -run when both are set)")
	flags.StringVar(&opts.importSeed, "import-seed", "", "create the storyboard from an audio export record list")
	flags.StringVar(&opts.storyboard, "storyboard", "", "path to the storyboard json")
	flags.StringVar(&opts.summary, "summary", "", "story summary handed to the prompt generator")
	flags.StringVar(&opts.saveDir, "save-dir", "", "directory for figures, clips and assembled outputs")
	flags.BoolVar(&opts.transcribe, "transcribe", false, "transcribe shots without a subtitle file")
	flags.BoolVar(&opts.proofread, "proofread", false, "proofread shot subtitles against the narration")
	flags.BoolVar(&opts.publish, "publish", false, "upload the final video after assembly")
	flags.BoolVar(&opts.manageInstance, "manage-instance", false, "start and stop the generation instance around the run")

	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	if !opts.showVersion && !opts.showDiagnose && !opts.needsStoryboard() {
		return opts, errNoCommand
	}
	if opts.needsStoryboard() && strings.TrimSpace(opts.storyboard) == "" {
		return opts, errors.New("-storyboard is required")
	}
	return opts, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
}

func printDiagnose(w io.Writer) {
	fmt.Fprintf(w, "runtime: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "version: %s\n", version)
	fmt.Fprintf(w, "commit: %s\n", commit)
	fmt.Fprintf(w, "date: %s\n", date)

	if wd, err := os.Getwd(); err == nil {
		fmt.Fprintf(w, "working_dir: %s\n", wd)
	} else {
		fmt.Fprintf(w, "working_dir: <error: %v>\n", err)
	}

	dirs, err := appdirs.Resolve()
	if err != nil {
		fmt.Fprintf(w, "paths: <error: %v>\n", err)
	} else {
		printPath(w, "config", dirs.ConfigFile)
		printPath(w, "output", dirs.OutputDir)
		printPath(w, "cache", dirs.CacheDir)
		printPath(w, "runs", appdirs.RunRootFor(dirs))
	}
	if logDir, err := log.ResolveLogDir(); err == nil {
		printPath(w, "effective_log_dir", logDir)
	} else {
		fmt.Fprintf(w, "path.effective_log_dir: <error: %v>\n", err)
	}

	saveDir := config.Conf.App.SaveDir
	if saveDir == "" && err == nil {
		saveDir = appdirs.SaveRootFor(dirs)
	}
	if saveDir != "" {
		printPath(w, "save_dir", saveDir)
		fmt.Fprintln(w, deps.FormatDiskReport(deps.CheckDisk(existingParent(saveDir))))
	}

	fmt.Fprintln(w, deps.FormatDependencyReport(deps.ResolveDependencyInventory()))
}

// existingParent walks up from path to a directory that exists, so disk
// usage can be reported before the save dir is created.
func existingParent(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return abs
		}
		abs = parent
	}
}

func printPath(w io.Writer, name, value string) {
	absPath, err := filepath.Abs(value)
	if err != nil {
		fmt.Fprintf(w, "path.%s: %s (abs_error=%v)\n", name, value, err)
		return
	}

	if _, err = os.Stat(absPath); err == nil {
		fmt.Fprintf(w, "path.%s: %s (exists)\n", name, absPath)
		return
	}
	if os.IsNotExist(err) {
		fmt.Fprintf(w, "path.%s: %s (missing)\n", name, absPath)
		return
	}

	fmt.Fprintf(w, "path.%s: %s (error=%v)\n", name, absPath, err)
}

func printImport(w io.Writer, res *service.ImportResult) {
	fmt.Fprintf(w, "imported %d shots into %s\n", res.Shots, res.Path)
	if res.Backup != "" {
		fmt.Fprintf(w, "backup: %s\n", res.Backup)
	}
}

func printCheck(w io.Writer, res *service.CheckResult) {
	fmt.Fprintf(w, "storyboard: %s\n", res.Path)
	fmt.Fprintf(w, "shots: %d (ingest would change %d)\n", res.Ingest.Shots, res.Ingest.Changed)
	fmt.Fprintf(w, "pending: prompt=%d figure=%d video=%d subtitle=%d\n",
		res.Ingest.PromptPending, res.Ingest.FigurePending, res.Ingest.VideoPending, res.Ingest.SubtitlePending)
	stages := make([]string, 0, len(res.Counts))
	for _, stage := range types.GenerationStages {
		stages = append(stages, fmt.Sprintf("%s=%d", stage, res.Counts[stage]))
	}
	fmt.Fprintf(w, "planned: %s\n", strings.Join(stages, " "))
}

func printPlan(w io.Writer, plan storyboard.RunPlan) {
	for _, sp := range plan.Shots {
		if len(sp.Stages) == 0 {
			fmt.Fprintf(w, "shot %d: done\n", sp.Shot)
			continue
		}
		names := make([]string, len(sp.Stages))
		for i, s := range sp.Stages {
			names[i] = string(s)
		}
		fmt.Fprintf(w, "shot %d: %s\n", sp.Shot, strings.Join(names, " -> "))
	}
}

func printReport(w io.Writer, report *types.RunReport) {
	if report == nil {
		return
	}
	for _, s := range report.Stages {
		fmt.Fprintf(w, "%-10s succeeded=%d failed=%d skipped=%d\n", s.Stage, s.Summary.Succeeded, s.Summary.Failed, s.Summary.Skipped)
	}
	for _, f := range report.Failures {
		label := "failed"
		if f.Skipped {
			label = "skipped"
		}
		fmt.Fprintf(w, "  shot %d %s %s [%s]: %s\n", f.Shot, f.Stage, label, f.Kind, f.Message)
	}
	if report.InstanceError != "" {
		fmt.Fprintf(w, "instance: %s\n", report.InstanceError)
	}
	keys := make([]string, 0, len(report.Artifacts))
	for k := range report.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, report.Artifacts[k])
	}
}
