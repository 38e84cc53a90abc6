package effects

import (
	"errors"
	"fmt"
)

var errNoNotifier = errors.New("no notifier configured")

type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("effect panicked: %v", p.value) }

type unknownKindError Kind

func (k unknownKindError) Error() string { return fmt.Sprintf("unknown effect kind %q", string(k)) }
