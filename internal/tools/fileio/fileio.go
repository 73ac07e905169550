// Package fileio provides the sandboxed file tools:
//
//   - write_file writes text content to a file, creating parent directories.
//   - read_file returns the text content of a file up to [MaxReadBytes].
//   - list_files lists the sandbox tree or a sub-directory of it.
//
// Paths are relative to the sandbox directory; absolute paths and traversal
// are rejected.
package fileio

import (
	"context"

	"github.com/MrWong99/toolharness/pkg/tool"
)

// listLimit caps the entries returned by list_files.
const listLimit = 500

// WriteArgs are the arguments of write_file.
type WriteArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append,omitempty"`
}

// WriteResult is returned by write_file.
type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
}

// ReadArgs are the arguments of read_file.
type ReadArgs struct {
	Path string `json:"path"`
}

// ReadResult is returned by read_file.
type ReadResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ListArgs are the arguments of list_files.
type ListArgs struct {
	Dir string `json:"dir,omitempty"`
}

// ListResult is returned by list_files.
type ListResult struct {
	Entries   []Entry `json:"entries"`
	Truncated bool    `json:"truncated,omitempty"`
}

// Declarations returns the file tools bound to sb.
func Declarations(sb *Sandbox) []tool.Declaration {
	return []tool.Declaration{
		tool.Declare(tool.Spec{
			Name:        "write_file",
			Description: "Write text content to a file in the sandbox. Missing parent directories are created. Existing files are replaced unless append is set.",
			IconRef:     "doc.badge.plus",
			Args: map[string]string{
				"path":    "relative file path inside the sandbox, e.g. src/main.py",
				"content": "text content to write",
				"append":  "append to the file instead of replacing it",
			},
		}, func(ctx context.Context, a WriteArgs) (WriteResult, error) {
			if err := ctx.Err(); err != nil {
				return WriteResult{}, err
			}
			n, err := sb.Write(a.Path, a.Content, a.Append)
			if err != nil {
				return WriteResult{}, err
			}
			return WriteResult{Path: a.Path, BytesWritten: n}, nil
		}),

		tool.Declare(tool.Spec{
			Name:        "read_file",
			Description: "Read the text content of a file in the sandbox. Files larger than 1 MiB are rejected.",
			IconRef:     "doc.text",
			Args: map[string]string{
				"path": "relative file path inside the sandbox",
			},
		}, func(ctx context.Context, a ReadArgs) (ReadResult, error) {
			if err := ctx.Err(); err != nil {
				return ReadResult{}, err
			}
			content, err := sb.Read(a.Path)
			if err != nil {
				return ReadResult{}, err
			}
			return ReadResult{Path: a.Path, Content: content}, nil
		}),

		tool.Declare(tool.Spec{
			Name:        "list_files",
			Description: "List files and directories in the sandbox, recursively.",
			IconRef:     "folder",
			Args: map[string]string{
				"dir": "relative directory to list; the whole sandbox when omitted",
			},
		}, func(ctx context.Context, a ListArgs) (ListResult, error) {
			if err := ctx.Err(); err != nil {
				return ListResult{}, err
			}
			entries, err := sb.List(a.Dir, listLimit+1)
			if err != nil {
				return ListResult{}, err
			}
			res := ListResult{Entries: entries}
			if len(entries) > listLimit {
				res.Entries, res.Truncated = entries[:listLimit], true
			}
			return res, nil
		}),
	}
}
