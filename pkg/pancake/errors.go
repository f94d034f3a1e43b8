package pancake

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/neurodesk/pancake/pkg/lexer"
)

// Every error returned by Parse and Flatten matches exactly one of these
// kinds under errors.Is, or is a loader failure propagated as returned.
var (
	ErrMissingArgument            = errors.New("missing argument")
	ErrUnsupportedDirectiveForm   = errors.New("unsupported directive form")
	ErrUnsupportedIncludeModifier = errors.New("unsupported include modifier")
	ErrSuperWithoutParent         = errors.New("block.super used without a parent template")
	ErrTemplateNotFound           = errors.New("template not found")
	ErrCyclicInheritance          = errors.New("cyclic inheritance")
	ErrUnbalancedBlock            = errors.New("endblock without an open block")
)

// NotFoundError is returned by loaders when no source exists for a name.
type NotFoundError struct {
	Name  string
	Tried []string
}

func (e *NotFoundError) Error() string {
	if len(e.Tried) == 0 {
		return "template not found: " + e.Name
	}
	return "template not found: " + e.Name + " (tried " + strings.Join(e.Tried, ", ") + ")"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrTemplateNotFound
}

func tokenError(kind error, template string, tok lexer.Token, format string, args ...interface{}) error {
	return errors.Wrapf(kind, "%s:%d: "+format, append([]interface{}{template, tok.Line}, args...)...)
}
