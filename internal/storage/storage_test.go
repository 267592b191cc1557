package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "audio/v1.mp3", want: "audio/v1.mp3"},
		{in: "/audio//v1.mp3", want: "audio/v1.mp3"},
		{in: `audio\v1.mp3`, want: "audio/v1.mp3"},
		{in: "../etc/passwd", wantErr: true},
		{in: "audio/../../x", wantErr: true},
		{in: " ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := sanitizeKey(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) = %q, want error", tc.in, got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
			}
		})
	}
}

func TestFileStorePutAndServe(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	url, err := store.Put(context.Background(), "audio/v1.mp3", "audio/mpeg", []byte("ID3"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "http://localhost:8080/static/audio/v1.mp3" {
		t.Fatalf("url = %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "audio", "v1.mp3"))
	if err != nil || string(data) != "ID3" {
		t.Fatalf("file content = %q, %v", data, err)
	}

	rec := httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/v1.mp3", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ID3" {
		t.Fatalf("serve: %d %q", rec.Code, rec.Body.String())
	}
}

func TestFileStoreHonorsCancelledContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "a.mp3", "", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3StorePut(t *testing.T) {
	client := &fakeS3{}
	store := NewS3StoreWithClient(client, "reels", "eu-west-3", "")
	url, err := store.Put(context.Background(), "/videos/v1.mp4", "video/mp4", []byte("mp4"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://reels.s3.eu-west-3.amazonaws.com/videos/v1.mp4" {
		t.Fatalf("url = %q", url)
	}
	if aws.StringValue(client.input.Key) != "videos/v1.mp4" || aws.StringValue(client.input.ContentType) != "video/mp4" || string(client.body) != "mp4" {
		t.Fatalf("unexpected input: %+v body=%q", client.input, client.body)
	}

	client.err = errors.New("denied")
	if _, err := store.Put(context.Background(), "x.mp4", "", nil); err == nil {
		t.Fatalf("expected upload error")
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected error")
	}
	store, err := New(Config{Driver: "filesystem", Path: t.TempDir(), BaseURL: "http://x"})
	if err != nil {
		t.Fatalf("New filesystem: %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("expected *FileStore, got %T", store)
	}
}
