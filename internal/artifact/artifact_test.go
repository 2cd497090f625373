package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"landing-page-generator/internal/apperrors"
)

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Stake":                   "stake",
		"  Güncel Giriş! ":        "guncel-giris",
		"IŞIK & Çark--Felek":      "isik-cark-felek",
		"***":                     "",
		strings.Repeat("ab ", 40): "ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q want %q", in, got, want)
		}
	}
}

func TestName(t *testing.T) {
	if got := Name("Stake Giriş", "job-1"); got != "stake-giris_job-1.html" {
		t.Fatalf("Name = %q", got)
	}
	if got := Name("???", "job-2"); got != "landing_job-2.html" {
		t.Fatalf("Name = %q", got)
	}
}

func TestLocalStoreLifecycle(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	loc, err := store.Upload(ctx, "<html>v1</html>", "stake_1.html")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if loc != "local://stake_1.html" {
		t.Fatalf("location = %q", loc)
	}
	again, err := store.Upload(ctx, "<html>v1b</html>", "stake_1.html")
	if err != nil || again != loc {
		t.Fatalf("re-upload should overwrite in place: %q %v", again, err)
	}
	body, err := store.Fetch(ctx, loc)
	if err != nil || body != "<html>v1b</html>" {
		t.Fatalf("Fetch = %q %v", body, err)
	}

	next, err := store.Replace(ctx, loc, "<html>v2</html>", "stake_1_edit.html")
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "stake_1.html")); !os.IsNotExist(err) {
		t.Fatal("old artifact should be removed after replace")
	}
	if body, _ := store.Fetch(ctx, next); body != "<html>v2</html>" {
		t.Fatalf("replaced body = %q", body)
	}

	if err := store.Delete(ctx, next); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Fetch(ctx, next); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}
}

func TestLocalStoreRejectsEscapes(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	ctx := context.Background()
	if _, err := store.Upload(ctx, "x", "../../etc/passwd"); !apperrors.HasCode(err, apperrors.CodeArtifactStore) {
		t.Fatalf("expected ARTIFACT_STORE, got %v", err)
	}
	if _, err := store.Fetch(ctx, "s3://bucket/key"); !apperrors.HasCode(err, apperrors.CodeArtifactStore) {
		t.Fatalf("expected ARTIFACT_STORE for foreign location, got %v", err)
	}
	if _, err := store.Fetch(ctx, "local://../secret"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]string
	putErr  error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreLifecycle(t *testing.T) {
	objects := &fakeObjects{objects: map[string]string{}}
	store := NewS3Store(objects, "pages")
	ctx := context.Background()

	loc, err := store.Upload(ctx, "<html/>", "stake_1.html")
	if err != nil || loc != "s3://pages/stake_1.html" {
		t.Fatalf("Upload = %q %v", loc, err)
	}
	body, err := store.Fetch(ctx, loc)
	if err != nil || body != "<html/>" {
		t.Fatalf("Fetch = %q %v", body, err)
	}
	next, err := store.Replace(ctx, loc, "<html>2</html>", "stake_1_v2.html")
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, ok := objects.objects["pages/stake_1.html"]; ok {
		t.Fatal("old object should be deleted")
	}
	if _, err := store.Fetch(ctx, loc); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if next != "s3://pages/stake_1_v2.html" {
		t.Fatalf("next = %q", next)
	}
}

func TestS3StoreUploadFailureIsRetryable(t *testing.T) {
	store := NewS3Store(&fakeObjects{objects: map[string]string{}, putErr: errors.New("slow down")}, "pages")
	_, err := store.Upload(context.Background(), "x", "a.html")
	if !apperrors.HasCode(err, apperrors.CodeArtifactStore) || !apperrors.IsRetryable(err) {
		t.Fatalf("expected retryable ARTIFACT_STORE, got %v", err)
	}
	if _, err := store.Fetch(context.Background(), "s3://pages"); !apperrors.HasCode(err, apperrors.CodeArtifactStore) {
		t.Fatalf("expected malformed location error, got %v", err)
	}
}
