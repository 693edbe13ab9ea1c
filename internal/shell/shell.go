package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"

	"github.com/apk-analysis/droidcarve-go/internal/filter"
	"github.com/apk-analysis/droidcarve-go/internal/manifest"
	"github.com/apk-analysis/droidcarve-go/internal/packer"
	"github.com/apk-analysis/droidcarve-go/internal/query"
	"github.com/apk-analysis/droidcarve-go/internal/session"
	"github.com/fatih/color"
	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
)

// Prompt 命令提示符
const Prompt = "DC $> "

// Session 交互命令需要的会话操作
type Session interface {
	Analyze(ctx context.Context) error
	Rescan() error
	Find(pattern string) (iter.Seq[string], error)
	Statistics() (query.Statistics, error)
	Permissions() ([]string, error)
	Manifest() (string, error)
	Signatures(ctx context.Context) ([]session.SignatureResult, error)
	DetectPacker() (*packer.PackerInfo, error)
	AddExclusion(pattern string) error
	AddDefaultExclusions()
	ClearExclusions()
	Exclusions() []string
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, args []string) error
}

// errQuit quit / exit
var errQuit = errors.New("quit")

// Shell 交互式命令循环
type Shell struct {
	session  Session
	in       *bufio.Scanner
	out      io.Writer
	logger   *logrus.Logger
	commands map[string]command

	errColor    *color.Color
	customColor *color.Color
	headColor   *color.Color
}

// New 创建命令循环
func New(s Session, in io.Reader, out io.Writer, logger *logrus.Logger) *Shell {
	sh := &Shell{
		session:     s,
		in:          bufio.NewScanner(in),
		out:         out,
		logger:      logger,
		errColor:    color.New(color.FgRed, color.Bold),
		customColor: color.New(color.FgYellow),
		headColor:   color.New(color.FgCyan, color.Bold),
	}

	sh.commands = map[string]command{
		"analyze":          {"analyze", "Unzip and disassemble the APK, then build all indexes", sh.doAnalyze},
		"rescan":           {"rescan", "Rebuild indexes from the cache without disassembling again", sh.doRescan},
		"signature":        {"signature", "Print the signing certificates", sh.doSignature},
		"statistics":       {"statistics", "Show class and permission counts", sh.doStatistics},
		"find":             {"find <pattern>", "List classes whose descriptor starts with the pattern", sh.doFind},
		"exclude":          {"exclude <pattern> | --defaults", "Hide classes matching the pattern from find", sh.doExclude},
		"exclusions":       {"exclusions", "List exclusion rules", sh.doExclusions},
		"clear-exclusions": {"clear-exclusions", "Remove all exclusion rules", sh.doClearExclusions},
		"permissions":      {"permissions", "List permissions requested in the manifest", sh.doPermissions},
		"manifest":         {"manifest", "Print the decoded AndroidManifest.xml", sh.doManifest},
		"packer":           {"packer", "Detect known packers and protectors", sh.doPacker},
		"help":             {"help [command]", "Show available commands", sh.doHelp},
		"quit":             {"quit", "Leave DroidCarve", sh.doQuit},
		"exit":             {"exit", "Leave DroidCarve", sh.doQuit},
	}
	return sh
}

// Run 读取命令直到 quit / exit / EOF
func (sh *Shell) Run(ctx context.Context) error {
	for {
		fmt.Fprint(sh.out, Prompt)
		if !sh.in.Scan() {
			fmt.Fprintln(sh.out)
			return sh.in.Err()
		}

		err := sh.Execute(ctx, sh.in.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Execute 执行一行命令，返回 errQuit 表示退出
func (sh *Shell) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	words, err := shellquote.Split(line)
	if err != nil {
		sh.errColor.Fprintf(sh.out, "*** Cannot parse line: %v\n", err)
		return nil
	}
	if len(words) == 0 {
		return nil
	}

	cmd, ok := sh.commands[words[0]]
	if !ok {
		fmt.Fprintf(sh.out, "*** Unknown syntax: %s\n", line)
		return nil
	}

	err = cmd.run(ctx, words[1:])
	if err != nil && !errors.Is(err, errQuit) {
		sh.printError(err)
		return nil
	}
	return err
}

// printError 把领域错误转换为提示
func (sh *Shell) printError(err error) {
	switch {
	case errors.Is(err, session.ErrNotAnalyzed):
		sh.errColor.Fprintln(sh.out, "No analysis available, run 'analyze' or 'rescan' first.")
	case errors.Is(err, session.ErrManifestNotFound):
		sh.errColor.Fprintln(sh.out, "No AndroidManifest.xml found in the extracted APK.")
	case errors.Is(err, filter.ErrInvalidPattern):
		sh.errColor.Fprintf(sh.out, "Invalid pattern: %v\n", err)
	default:
		sh.errColor.Fprintf(sh.out, "Error: %v\n", err)
	}
}

func (sh *Shell) doAnalyze(ctx context.Context, _ []string) error {
	fmt.Fprintln(sh.out, "Analyzing ...")
	if err := sh.session.Analyze(ctx); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "Analyzing ... Done")
	return nil
}

func (sh *Shell) doRescan(_ context.Context, _ []string) error {
	fmt.Fprintln(sh.out, "Rescanning cache ...")
	if err := sh.session.Rescan(); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "Rescanning cache ... Done")
	return nil
}

func (sh *Shell) doSignature(ctx context.Context, _ []string) error {
	results, err := sh.session.Signatures(ctx)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(sh.out, "No signature file found.")
		return nil
	}

	for _, r := range results {
		fmt.Fprintln(sh.out, "Found signature file : "+r.File)
		if r.Err != nil {
			sh.printError(r.Err)
			continue
		}
		fmt.Fprint(sh.out, r.Certificate.Raw)
		if r.Certificate.Developer != "" || r.Certificate.Company != "" {
			sh.headColor.Fprintf(sh.out, "Developer = %s, Company = %s\n", r.Certificate.Developer, r.Certificate.Company)
		}
	}
	return nil
}

func (sh *Shell) doStatistics(_ context.Context, _ []string) error {
	stats, err := sh.session.Statistics()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Disassembled classes = %d\n", stats.ClassCount)
	if stats.ManifestFound {
		fmt.Fprintf(sh.out, "Permissions = %d\n", stats.PermissionCount)
	} else {
		fmt.Fprintln(sh.out, "Permissions = n/a (no manifest)")
	}
	fmt.Fprintf(sh.out, "Exclusion rules = %d\n", stats.ExclusionRules)
	return nil
}

func (sh *Shell) doFind(_ context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "Usage: find <pattern>")
		return nil
	}
	seq, err := sh.session.Find(args[0])
	if err != nil {
		return err
	}

	count := 0
	for descriptor := range seq {
		fmt.Fprintln(sh.out, descriptor)
		count++
	}
	fmt.Fprintf(sh.out, "%d classes found\n", count)
	return nil
}

func (sh *Shell) doExclude(_ context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "Usage: exclude <pattern> | exclude --defaults")
		return nil
	}
	if args[0] == "--defaults" {
		sh.session.AddDefaultExclusions()
		fmt.Fprintf(sh.out, "Loaded %d default exclusion rules\n", len(filter.DefaultSDKPatterns))
		return nil
	}
	if err := sh.session.AddExclusion(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Excluding %s\n", args[0])
	return nil
}

func (sh *Shell) doExclusions(_ context.Context, _ []string) error {
	rules := sh.session.Exclusions()
	if len(rules) == 0 {
		fmt.Fprintln(sh.out, "No exclusion rules.")
		return nil
	}
	for i, rule := range rules {
		fmt.Fprintf(sh.out, "%3d  %s\n", i+1, rule)
	}
	return nil
}

func (sh *Shell) doClearExclusions(_ context.Context, _ []string) error {
	sh.session.ClearExclusions()
	fmt.Fprintln(sh.out, "Exclusion rules cleared")
	return nil
}

func (sh *Shell) doPermissions(_ context.Context, _ []string) error {
	permissions, err := sh.session.Permissions()
	if err != nil {
		return err
	}
	for _, p := range permissions {
		if manifest.IsStandard(p) {
			fmt.Fprintln(sh.out, p)
		} else {
			sh.customColor.Fprintln(sh.out, p+" (custom)")
		}
	}
	fmt.Fprintf(sh.out, "%d permissions\n", len(permissions))
	return nil
}

func (sh *Shell) doManifest(_ context.Context, _ []string) error {
	text, err := sh.session.Manifest()
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, strings.TrimRight(text, "\n"))
	return nil
}

func (sh *Shell) doPacker(_ context.Context, _ []string) error {
	info, err := sh.session.DetectPacker()
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, packer.Summary(info))
	for _, indicator := range info.Indicators {
		fmt.Fprintln(sh.out, "  - "+indicator)
	}
	return nil
}

func (sh *Shell) doHelp(_ context.Context, args []string) error {
	if len(args) > 0 {
		cmd, ok := sh.commands[args[0]]
		if !ok {
			fmt.Fprintf(sh.out, "*** No help on %s\n", args[0])
			return nil
		}
		fmt.Fprintf(sh.out, "%s\n    %s\n", cmd.usage, cmd.help)
		return nil
	}

	names := make([]string, 0, len(sh.commands))
	for name := range sh.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	sh.headColor.Fprintln(sh.out, "Available commands:")
	for _, name := range names {
		cmd := sh.commands[name]
		fmt.Fprintf(sh.out, "  %-32s %s\n", cmd.usage, cmd.help)
	}
	return nil
}

func (sh *Shell) doQuit(_ context.Context, _ []string) error {
	fmt.Fprintln(sh.out, "Exiting, cheers!")
	return errQuit
}
