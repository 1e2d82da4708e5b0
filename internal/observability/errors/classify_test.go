package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type lookupError struct{}

func (*lookupError) Error() string { return "lookup" }

func TestClassify(t *testing.T) {
	assert.Empty(t, Classify(nil))
	assert.Equal(t, "errors_errorstring", Classify(goerrors.New("boom")))
	assert.Equal(t, "errors_lookuperror", Classify(fmt.Errorf("read: %w", &lookupError{})))
	assert.Equal(t, "context_deadlineexceedederror", Classify(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
}

func TestClassify_JoinedFollowsFirst(t *testing.T) {
	err := goerrors.Join(&lookupError{}, goerrors.New("second"))
	assert.Equal(t, "errors_lookuperror", Classify(err))
}
