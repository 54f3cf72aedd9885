package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?pretty=true", nil)

	w := httptest.NewRecorder()
	WriteJSON(w, r, http.StatusTeapot, errors.New("no route"))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "{\n  \"error\": \"no route\"\n}\n", w.Body.String())

	w = httptest.NewRecorder()
	WriteJSON(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, []int{1, 2})
	assert.Equal(t, "[1,2]\n", w.Body.String())
}

func TestReadJSON(t *testing.T) {
	type body struct {
		Dest int `json:"dest"`
	}
	read := func(s string) (body, error) {
		var b body
		err := ReadJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(s)), &b)
		return b, err
	}

	b, err := read(`{"dest": 3}`)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Dest)

	_, err = read(`{"dest": 3, "src": 1}`)
	assert.Error(t, err)

	_, err = read(`{"dest": 3} {"dest": 4}`)
	assert.Error(t, err)

	_, err = read(`{"dest": 3, "pad": "` + strings.Repeat("x", MaxBodySize) + `"}`)
	assert.Error(t, err)
}

func TestBoolFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?a=on&b=0&c=maybe", nil)

	v, err := BoolFromQuery(r, "a", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = BoolFromQuery(r, "b", true)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = BoolFromQuery(r, "missing", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = BoolFromQuery(r, "c", false)
	assert.Error(t, err)
}
