package builtintools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gitagent/cli/internal/agentloop"
)

const defaultMaxReadBytes = 256 * 1024

type Options struct {
	// WorkDir anchors relative file paths and the default repo_path.
	WorkDir      string
	Runner       CommandRunner
	MaxReadBytes int
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.WorkDir) == "" {
		o.WorkDir = "."
	}
	if o.Runner == nil {
		o.Runner = &ExecRunner{}
	}
	if o.MaxReadBytes <= 0 {
		o.MaxReadBytes = defaultMaxReadBytes
	}
	return o
}

func (o Options) resolve(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return o.WorkDir
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(o.WorkDir, path)
}

type builder func(Options) agentloop.Tool

var builders = map[string]builder{
	"calculator":     calculatorTool,
	"read_file":      readFileTool,
	"write_file":     writeFileTool,
	"git_clone":      gitCloneTool,
	"git_checkout":   gitCheckoutTool,
	"git_commit":     gitCommitTool,
	"git_push":       gitPushTool,
	"create_pr":      createPRTool,
	"list_directory": listDirectoryTool,
}

// Names lists every built-in tool, sorted.
func Names() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func RegisterAll(reg *agentloop.ToolRegistry, opts Options) error {
	return Register(reg, opts, Names()...)
}

// Register adds the named built-in tools. Unknown names fail before anything
// is registered.
func Register(reg *agentloop.ToolRegistry, opts Options, names ...string) error {
	opts = opts.withDefaults()
	for _, name := range names {
		if _, ok := builders[strings.TrimSpace(name)]; !ok {
			return fmt.Errorf("unknown built-in tool %q", name)
		}
	}
	for _, name := range names {
		if err := reg.Register(builders[strings.TrimSpace(name)](opts)); err != nil {
			return err
		}
	}
	return nil
}

type calculatorInput struct {
	Operation string  `json:"operation" jsonschema:"description=Arithmetic operation,enum=add,enum=subtract,enum=multiply,enum=divide"`
	A         float64 `json:"a" jsonschema:"description=Left operand"`
	B         float64 `json:"b" jsonschema:"description=Right operand"`
}

func calculatorTool(Options) agentloop.Tool {
	return agentloop.NewTypedTool("calculator", "Performs basic arithmetic on two numbers",
		func(_ context.Context, in calculatorInput) (string, error) {
			var out float64
			switch in.Operation {
			case "add":
				out = in.A + in.B
			case "subtract":
				out = in.A - in.B
			case "multiply":
				out = in.A * in.B
			case "divide":
				if in.B == 0 {
					return "", errors.New("division by zero")
				}
				out = in.A / in.B
			default:
				return "", fmt.Errorf("unsupported operation %q", in.Operation)
			}
			return strconv.FormatFloat(out, 'f', -1, 64), nil
		})
}

type readFileInput struct {
	FilePath string `json:"file_path" jsonschema:"description=The path to the file to read"`
}

func readFileTool(opts Options) agentloop.Tool {
	return agentloop.NewTypedTool("read_file", "Reads the contents of a file",
		func(_ context.Context, in readFileInput) (string, error) {
			path := opts.resolve(in.FilePath)
			raw, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return "", fmt.Errorf("file not found: %s", in.FilePath)
				}
				return "", err
			}
			if len(raw) > opts.MaxReadBytes {
				return string(raw[:opts.MaxReadBytes]) + "\n...(truncated)", nil
			}
			return string(raw), nil
		})
}

type writeFileInput struct {
	FilePath string `json:"file_path" jsonschema:"description=The path to the file to write to"`
	Content  string `json:"content" jsonschema:"description=The content to write to the file"`
}

func writeFileTool(opts Options) agentloop.Tool {
	return agentloop.NewTypedTool("write_file", "Writes content to a file, replacing it",
		func(_ context.Context, in writeFileInput) (string, error) {
			path := opts.resolve(in.FilePath)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", err
			}
			if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote %d bytes to %s", len(in.Content), in.FilePath), nil
		})
}

// rejectOption stops model-supplied positional values from being parsed as
// git flags, e.g. a repo_url of --upload-pack=<cmd>.
func rejectOption(field, value string) error {
	if strings.HasPrefix(strings.TrimSpace(value), "-") {
		return fmt.Errorf("%s must not start with '-': %q", field, value)
	}
	return nil
}

type gitCloneInput struct {
	RepoURL     string `json:"repo_url" jsonschema:"description=The URL of the repository to clone"`
	Destination string `json:"destination,omitempty" jsonschema:"description=Optional: where to clone the repo"`
}

func gitCloneTool(opts Options) agentloop.Tool {
	return agentloop.NewTypedTool("git_clone", "Clones a git repository to the local filesystem",
		func(ctx context.Context, in gitCloneInput) (string, error) {
			if err := rejectOption("repo_url", in.RepoURL); err != nil {
				return "", err
			}
			if err := rejectOption("destination", in.Destination); err != nil {
				return "", err
			}
			args := []string{"clone", "--", in.RepoURL}
			if dest := strings.TrimSpace(in.Destination); dest != "" {
				args = append(args, dest)
			}
			if _, err := opts.Runner.Run(ctx, opts.WorkDir, "git", args...); err != nil {
				return "", err
			}
			return "Successfully cloned " + in.RepoURL, nil
		})
}

type gitCheckoutInput struct {
	Branch   string `json:"branch" jsonschema:"description=Name of the branch to checkout or create"`
	Create   bool   `json:"create,omitempty" jsonschema:"description=If true create a new branch (git checkout -b)"`
	RepoPath string `json:"repo_path,omitempty" jsonschema:"description=Path to the git repository (default: current directory)"`
}

func gitCheckoutTool(opts Options) agentloop.Tool {
	return agentloop.NewTypedTool("git_checkout", "Creates a new branch or switches to an existing branch",
		func(ctx context.Context, in gitCheckoutInput) (string, error) {
			if err := rejectOption("branch", in.Branch); err != nil {
				return "", err
			}
			args := []string{"checkout"}
			if in.Create {
				args = append(args, "-b")
			}
			args = append(args, in.Branch)
			if _, err := opts.Runner.Run(ctx, opts.resolve(in.RepoPath), "git", args...); err != nil {
				return "", err
			}
			if in.Create {
				return "Created and switched to branch: " + in.Branch, nil
			}
			return "Switched to branch: " + in.Branch, nil
		})
}

type gitCommitInput struct {
	Message  string `json:"message" jsonschema:"description=Commit message"`
	RepoPath string `json:"repo_path,omitempty" jsonschema:"description=Path to the git repository (default: current directory)"`
}

func gitCommitTool(opts Options) agentloop.Tool {
	return agentloop.NewTypedTool("git_commit", "Stages all changes and creates a commit in the specified repository",
		func(ctx context.Context, in gitCommitInput) (string, error) {
			dir := opts.resolve(in.RepoPath)
			if _, err := opts.Runner.Run(ctx, dir, "git", "add", "."); err != nil {
				return "", fmt.Errorf("staging files: %w", err)
			}
			if _, err := opts.Runner.Run(ctx, dir, "git", "commit", "-m", in.Message); err != nil {
				return "", fmt.Errorf("committing: %w", err)
			}
			return "Successfully committed: " + in.Message, nil
		})
}

type gitPushInput struct {
	Branch   string `json:"branch,omitempty" jsonschema:"description=Branch to push (default: main)"`
	RepoPath string `json:"repo_path,omitempty" jsonschema:"description=Path to the git repository (default: current directory)"`
}

func gitPushTool(opts Options) agentloop.Tool {
	return agentloop.NewTypedTool("git_push", "Pushes commits to the origin remote",
		func(ctx context.Context, in gitPushInput) (string, error) {
			branch := strings.TrimSpace(in.Branch)
			if branch == "" {
				branch = "main"
			}
			if err := rejectOption("branch", branch); err != nil {
				return "", err
			}
			if _, err := opts.Runner.Run(ctx, opts.resolve(in.RepoPath), "git", "push", "-u", "origin", branch); err != nil {
				return "", err
			}
			return "Successfully pushed to " + branch, nil
		})
}

type createPRInput struct {
	Title    string `json:"title" jsonschema:"description=Title of the pull request"`
	Body     string `json:"body" jsonschema:"description=Body of the pull request"`
	RepoPath string `json:"repo_path,omitempty" jsonschema:"description=Path to the git repository (default: current directory)"`
}

func createPRTool(opts Options) agentloop.Tool {
	return agentloop.NewTypedTool("create_pr", "Creates a pull request in the specified repository",
		func(ctx context.Context, in createPRInput) (string, error) {
			out, err := opts.Runner.Run(ctx, opts.resolve(in.RepoPath), "gh", "pr", "create", "--title", in.Title, "--body", in.Body)
			if err != nil {
				return "", err
			}
			return "Successfully created PR: " + strings.TrimSpace(out), nil
		})
}
