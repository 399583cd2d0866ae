package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvBody = "age,city,label\n30,Oslo,yes\n41,Rome,no\n"

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvBody), 0o600))

	d, err := New().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, []string{"age", "city", "label"}, d.Columns())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := New().Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(csvBody))
	}))
	defer srv.Close()

	d, err := New(WithHTTPClient(srv.Client())).Load(context.Background(), srv.URL+"/data.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	_, err = New().Load(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLoadS3(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(csvBody))
	}))
	defer srv.Close()

	o := New(WithS3(S3Config{
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	}))
	d, err := o.Load(context.Background(), "s3://datasets/churn/train.csv")
	require.NoError(t, err)
	assert.Equal(t, "/datasets/churn/train.csv", gotPath)
	assert.Equal(t, 2, d.Len())
}

func TestMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(csvBody))
	}))
	defer srv.Close()

	d, err := New(WithMaxBytes(int64(len("age,city,label\n30,Oslo,yes\n")))).Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://bucket/a/b.csv")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "a/b.csv", key)

	for _, bad := range []string{"s3://bucket", "s3:///key", "http://bucket/key"} {
		_, _, err := ParseS3URI(bad)
		assert.Error(t, err, bad)
	}
}
