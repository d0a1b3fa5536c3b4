package errors

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsSentinelAndCause(t *testing.T) {
	err := Wrap(ErrCommit, io.ErrUnexpectedEOF, "writing segment %s", "seg_1")
	assert.ErrorIs(t, err, ErrCommit)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "seg_1")

	noCause := Wrap(ErrQuerySyntax, nil, "empty query")
	assert.ErrorIs(t, noCause, ErrQuerySyntax)
	assert.Equal(t, "query syntax error: empty query", noCause.Error())
}

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Wrap(ErrSchema, nil, "unknown field"), http.StatusBadRequest},
		{Wrap(ErrQuerySyntax, nil, "empty"), http.StatusBadRequest},
		{ErrInvalidLimit, http.StatusBadRequest},
		{Wrap(ErrLinkNotFound, nil, "abc"), http.StatusNotFound},
		{Wrap(ErrCommit, io.EOF, "put"), http.StatusInternalServerError},
		{Wrap(ErrSearch, io.EOF, "stored"), http.StatusInternalServerError},
		{ErrWriterBusy, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{New(ErrInternal, http.StatusTeapot, "custom"), http.StatusTeapot},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusCode(tc.err), tc.err.Error())
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "field %q", "url")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, `invalid input: field "url"`, err.Error())
}
