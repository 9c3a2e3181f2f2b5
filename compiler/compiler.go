package compiler

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/lir/compiler/cfg"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
	"github.com/slowlang/lir/compiler/legalize"
)

// LegalizeFunc builds the control flow graph and rewrites the function
// in place into the target's encodable instruction set. The returned
// graph stays in sync with the rewritten function.
func LegalizeFunc(ctx context.Context, f *ir.Func, tgt isa.Target) (*cfg.Graph, error) {
	g := cfg.New(f)

	l := legalize.New()

	err := l.Func(ctx, f, g, tgt)
	if err != nil {
		return nil, errors.Wrap(err, "legalize")
	}

	return g, nil
}
