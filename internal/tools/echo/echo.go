// Package echo provides the echo tool, which returns its text argument
// unchanged. Orchestrators use it to check that the harness is reachable
// and that argument passing works end to end.
package echo

import (
	"context"

	"github.com/MrWong99/toolharness/pkg/tool"
)

// Declarations returns the echo tool.
func Declarations() []tool.Declaration {
	return []tool.Declaration{
		tool.DeclareFunc(tool.Spec{
			Name:        "echo",
			Description: "Return the given text unchanged.",
			IconRef:     "circle.circle",
			Args:        map[string]string{"text": "the text to return"},
		}, []tool.Param{{Name: "text", Kind: tool.KindString}}, func(_ context.Context, args tool.Arguments) (any, error) {
			return args.String("text"), nil
		}),
	}
}
