package upload

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestUploadStoresImage(t *testing.T) {
	store := NewMemoryStore("http://localhost:8080/uploads/")
	svc := New(store, 0, logging.NewDiscard())

	res, err := svc.Upload(context.Background(), "user/42", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.Equal(t, "image/png", res.ContentType)
	assert.True(t, strings.HasPrefix(res.Key, "uploads/user_42/"), res.Key)
	assert.True(t, strings.HasSuffix(res.Key, ".png"), res.Key)
	assert.Equal(t, "http://localhost:8080/uploads/"+res.Key, res.URL)

	obj, ok := store.Get(res.Key)
	require.True(t, ok)
	assert.Equal(t, pngHeader, obj.Data)
}

func TestUploadRejectsTooLarge(t *testing.T) {
	svc := New(NewMemoryStore(""), int64(len(pngHeader)-1), logging.NewDiscard())

	_, err := svc.Upload(context.Background(), "u", bytes.NewReader(pngHeader))
	require.Error(t, err)
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeInvalidInput))
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	svc := New(NewMemoryStore(""), 0, logging.NewDiscard())

	_, err := svc.Upload(context.Background(), "u", strings.NewReader("<html><body>hi</body></html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text/html")
}

func TestUploadRejectsEmpty(t *testing.T) {
	svc := New(NewMemoryStore(""), 0, logging.NewDiscard())
	_, err := svc.Upload(context.Background(), "u", strings.NewReader(""))
	assert.Error(t, err)
}

func TestUploadStoreFailureIsUpstream(t *testing.T) {
	svc := New(failingStore{}, 0, logging.NewDiscard())
	_, err := svc.Upload(context.Background(), "", bytes.NewReader(pngHeader))
	require.Error(t, err)
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeUpstream))
}
