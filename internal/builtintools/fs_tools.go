package builtintools

import (
	"context"
	"fmt"
	"strings"

	"gitagent/cli/internal/agentloop"
	"gitagent/cli/internal/fsbrowser"
)

type listDirectoryInput struct {
	Path          string `json:"path,omitempty" jsonschema:"description=Directory to list (default: working directory)"`
	Query         string `json:"query,omitempty" jsonschema:"description=Optional: search subdirectories for names containing this text"`
	IncludeHidden bool   `json:"include_hidden,omitempty" jsonschema:"description=Include dotfiles when listing"`
	Limit         int    `json:"limit,omitempty" jsonschema:"description=Maximum search results (default 20)"`
}

func listDirectoryTool(opts Options) agentloop.Tool {
	svc := fsbrowser.NewService(opts.WorkDir)
	return agentloop.NewTypedTool("list_directory", "Lists a directory or searches it for files and directories by name",
		func(_ context.Context, in listDirectoryInput) (string, error) {
			var b strings.Builder
			if strings.TrimSpace(in.Query) != "" {
				items, err := svc.Search(in.Path, in.Query, in.Limit)
				if err != nil {
					return "", err
				}
				if len(items) == 0 {
					return fmt.Sprintf("No entries matching %q", in.Query), nil
				}
				for _, item := range items {
					b.WriteString(formatItem(item.Path, item))
				}
				return strings.TrimRight(b.String(), "\n"), nil
			}
			res, err := svc.List(in.Path, in.IncludeHidden)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%s:\n", res.Path)
			if len(res.Items) == 0 {
				b.WriteString("(empty)")
				return b.String(), nil
			}
			for _, item := range res.Items {
				b.WriteString(formatItem(item.Name, item))
			}
			return strings.TrimRight(b.String(), "\n"), nil
		})
}

func formatItem(label string, item fsbrowser.Item) string {
	if item.IsDir {
		return label + "/\n"
	}
	return fmt.Sprintf("%s (%d bytes)\n", label, item.Size)
}
