package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"configctx/internal/codec"
	"configctx/internal/config"
	"configctx/internal/domain"
	"configctx/internal/resolver"
	"configctx/internal/service"

	"github.com/spf13/cobra"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "ctxctl",
		Short:         "Render and validate config context documents",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.New(logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "PRODUCTION", "Log level (DEVELOPMENT or PRODUCTION)")

	cmd.AddCommand(
		newRenderCmd(),
		newValidateCmd(),
	)
	return cmd
}

type renderOptions struct {
	contexts   string
	target     string
	configPath string
	lists      string
	overrides  []string
	format     string
	strict     bool
}

func newRenderCmd() *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the config context of one target",
		Long: `Render merges every document under --contexts that applies to the
target described by --target, then the target's local context.

The target file is YAML or JSON:

  name: leaf01
  groups: ["role:leaf", "location:ams1"]
  local_context:
    bgp: {asn: 65001}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.contexts, "contexts", "c", ".", "Directory of config context documents")
	f.StringVarP(&opts.target, "target", "t", "", "Target file (YAML or JSON)")
	f.StringVar(&opts.configPath, "config", "", "Read the merge policy from this config file")
	f.StringVar(&opts.lists, "lists", "", "List strategy: overwrite or union (overrides config)")
	f.StringArrayVar(&opts.overrides, "override", nil, "Per-path list strategy as path=strategy (repeatable)")
	f.StringVarP(&opts.format, "format", "o", codec.FormatJSON, "Output format: json or yaml")
	f.BoolVar(&opts.strict, "strict", false, "Fail when resolution reports issues")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runRender(stdout, stderr io.Writer, opts *renderOptions) error {
	policy, err := buildPolicy(opts)
	if err != nil {
		return err
	}

	out, err := codec.ForFormat(opts.format)
	if err != nil {
		return err
	}

	target, err := loadTarget(opts.target)
	if err != nil {
		return err
	}

	records, errs, err := service.LoadDirectory(opts.contexts)
	if err != nil {
		return err
	}
	// Same first-by-path rule as the server's sync
	records, dupes := service.DedupNames(records)
	errs = append(errs, dupes...)
	for _, fe := range errs {
		fmt.Fprintf(stderr, "skipped %s: %s\n", fe.Path, fe.Error)
	}

	res := resolver.New(resolver.WithPolicy(policy))
	resolution := res.Resolve(target, resolver.Snapshot{Records: records})

	for _, issue := range resolution.Issues {
		fmt.Fprintf(stderr, "issue: %s\n", issue.Error())
	}

	if err := out.Export(resolution.Data, stdout); err != nil {
		return err
	}

	if opts.strict && (len(resolution.Issues) > 0 || len(errs) > 0) {
		return fmt.Errorf("%d issues, %d invalid documents", len(resolution.Issues), len(errs))
	}
	return nil
}

func buildPolicy(opts *renderOptions) (resolver.MergePolicy, error) {
	policy := resolver.DefaultPolicy()
	if opts.configPath != "" {
		cfg, _, err := config.LoadFromPath(opts.configPath)
		if err != nil {
			return policy, err
		}
		policy = cfg.Merge
	}

	if opts.lists != "" {
		s, err := resolver.ParseListStrategy(opts.lists)
		if err != nil {
			return policy, err
		}
		policy.Lists = s
	}

	for _, o := range opts.overrides {
		path, strategy, ok := strings.Cut(o, "=")
		if !ok {
			return policy, fmt.Errorf("override %q must be path=strategy", o)
		}
		s, err := resolver.ParseListStrategy(strategy)
		if err != nil {
			return policy, err
		}
		overrides := make(map[string]resolver.ListStrategy, len(policy.Overrides)+1)
		for k, v := range policy.Overrides {
			overrides[k] = v
		}
		overrides[strings.TrimSpace(path)] = s
		policy.Overrides = overrides
	}

	return policy, policy.Validate()
}

// targetFile is the on-disk description of a render target
type targetFile struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Kind         string        `yaml:"kind"`
	Groups       []string      `yaml:"groups"`
	LocalContext *domain.Value `yaml:"local_context"`
}

func loadTarget(path string) (*domain.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target: %w", err)
	}

	// YAML is a superset of JSON, so one decoder serves both
	var tf targetFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse target %s: %w", path, err)
	}

	kind := domain.TargetDevice
	if tf.Kind != "" {
		kind = domain.TargetKind(tf.Kind)
	}
	id := tf.ID
	if id == "" {
		id = tf.Name
	}

	t := domain.NewTarget(id, kind, tf.Name)
	for _, g := range tf.Groups {
		ref, err := domain.ParseGroupRef(g)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", path, err)
		}
		t.AddMembership(ref)
	}
	t.LocalContext = tf.LocalContext

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("target %s: %w", path, err)
	}
	return t, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [DIR]",
		Short: "Check that every config context document in DIR parses",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(cmd.OutOrStdout(), dir)
		},
	}
}

func runValidate(w io.Writer, dir string) error {
	records, errs, err := service.LoadDirectory(dir)
	if err != nil {
		return err
	}

	problems := make([]string, 0, len(errs))
	for _, fe := range errs {
		problems = append(problems, fmt.Sprintf("%s: %s", fe.Path, fe.Error))
	}

	byName := make(map[string][]string)
	for _, rec := range records {
		byName[rec.Name] = append(byName[rec.Name], strings.TrimPrefix(rec.Source, service.SyncSourcePrefix))
	}
	for name, paths := range byName {
		if len(paths) > 1 {
			sort.Strings(paths)
			problems = append(problems, fmt.Sprintf("name %q used by %s", name, strings.Join(paths, ", ")))
		}
	}
	sort.Strings(problems)

	for _, p := range problems {
		fmt.Fprintln(w, p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d problems in %s", len(problems), dir)
	}

	fmt.Fprintf(w, "%d documents OK\n", len(records))
	return nil
}
