package main

import (
	"context"
	"errors"
	"testing"

	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/notes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEditor struct {
	titles, contents []string
	contentErr       error
	closed           int
	flushedBeforeEnd bool
}

func (e *fakeEditor) EditTitle(title string) error {
	e.titles = append(e.titles, title)
	return nil
}

func (e *fakeEditor) EditContent(content string) error {
	if e.contentErr != nil {
		return e.contentErr
	}
	e.contents = append(e.contents, content)
	return nil
}

func (e *fakeEditor) Close() { e.closed++ }

func TestApplyEdit_FlushesThenCloses(t *testing.T) {
	t.Parallel()
	ed := &fakeEditor{}
	flush := func(context.Context) error {
		ed.flushedBeforeEnd = ed.closed == 0
		return nil
	}
	params := notes.UpdateParams{Title: ptr("Groceries"), Content: ptr("milk")}

	require.NoError(t, applyEdit(context.Background(), ed, flush, params))
	assert.Equal(t, []string{"Groceries"}, ed.titles)
	assert.Equal(t, []string{"milk"}, ed.contents)
	assert.True(t, ed.flushedBeforeEnd, "edits must be flushed while the editor is open")
	assert.Equal(t, 1, ed.closed)
}

func TestApplyEdit_ClosesEditorWhenAnEditFails(t *testing.T) {
	t.Parallel()
	ed := &fakeEditor{contentErr: errors.New("editor closed")}
	flushed := false
	flush := func(context.Context) error {
		flushed = true
		return nil
	}
	params := notes.UpdateParams{Title: ptr("half"), Content: ptr("never")}

	err := applyEdit(context.Background(), ed, flush, params)
	require.Error(t, err)
	assert.False(t, flushed, "a partial edit is not saved")
	assert.Equal(t, 1, ed.closed, "the pending title edit is torn down with the editor")
}

func TestApplyEdit_FlushFailureIsUnavailable(t *testing.T) {
	t.Parallel()
	ed := &fakeEditor{}
	flush := func(context.Context) error { return errors.New("disk full") }

	err := applyEdit(context.Background(), ed, flush, notes.UpdateParams{Title: ptr("t")})
	assert.Equal(t, errs.Unavailable, errs.CodeOf(err))
	assert.Equal(t, 1, ed.closed)
}

func ptr(s string) *string { return &s }
