package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorageStoreResolveDelete(t *testing.T) {
	dir := t.TempDir()
	storage := NewLocalStorageService(dir, "/uploads/")
	ctx := context.Background()

	storedPath, err := storage.Store(ctx, strings.NewReader("file bytes"), "note.txt", "chat_files")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if storedPath != "chat_files/note.txt" {
		t.Fatalf("stored path = %q", storedPath)
	}

	onDisk := filepath.Join(dir, "chat_files", "note.txt")
	data, err := os.ReadFile(onDisk)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "file bytes" {
		t.Fatalf("content = %q", data)
	}

	url, err := storage.Resolve(ctx, storedPath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if url != "/uploads/chat_files/note.txt" {
		t.Fatalf("resolved url = %q", url)
	}

	if err := storage.Delete(ctx, storedPath); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(onDisk); !os.IsNotExist(err) {
		t.Fatalf("file should be gone, stat err = %v", err)
	}

	// Deleting an already-removed object is not an error.
	if err := storage.Delete(ctx, storedPath); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestSupabaseStoreUploadsObject(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotAPIKey, gotUpsert string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		gotUpsert = r.Header.Get("x-upsert")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage := NewSupabaseStorageService(server.URL, "attachments", "service-key")

	storedPath, err := storage.Store(context.Background(), strings.NewReader("pdf bytes"), "report.pdf", "chat_files")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if storedPath != "chat_files/report.pdf" {
		t.Fatalf("stored path = %q", storedPath)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q", gotMethod)
	}
	if gotPath != "/storage/v1/object/attachments/chat_files/report.pdf" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer service-key" || gotAPIKey != "service-key" {
		t.Errorf("auth headers = %q / %q", gotAuth, gotAPIKey)
	}
	if gotUpsert != "true" {
		t.Errorf("x-upsert = %q", gotUpsert)
	}
	if string(gotBody) != "pdf bytes" {
		t.Errorf("uploaded body = %q", gotBody)
	}
}

func TestSupabaseStoreSurfacesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Bucket not found"))
	}))
	defer server.Close()

	storage := NewSupabaseStorageService(server.URL, "attachments", "service-key")

	_, err := storage.Store(context.Background(), strings.NewReader("bytes"), "x.png", "chat_files")
	if err == nil {
		t.Fatal("expected error from upstream 400")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "Bucket not found") {
		t.Fatalf("error should carry status and body, got %v", err)
	}
}

func TestSupabaseResolveReturnsSignedURL(t *testing.T) {
	var gotExpires int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/storage/v1/object/sign/attachments/") {
			t.Errorf("unexpected sign request: %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			ExpiresIn int `json:"expiresIn"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotExpires = payload.ExpiresIn

		_ = json.NewEncoder(w).Encode(map[string]string{
			"signedURL": "/object/sign/attachments/chat_files/x.png?token=abc",
		})
	}))
	defer server.Close()

	storage := NewSupabaseStorageService(server.URL, "attachments", "service-key")

	url, err := storage.Resolve(context.Background(), "chat_files/x.png")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := server.URL + "/storage/v1/object/sign/attachments/chat_files/x.png?token=abc"
	if url != want {
		t.Fatalf("signed url = %q, want %q", url, want)
	}
	if gotExpires != 3600 {
		t.Fatalf("expiresIn = %d, want 3600", gotExpires)
	}
}

func TestSupabaseDeleteTreatsMissingObjectAsGone(t *testing.T) {
	status := http.StatusNotFound
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q", r.Method)
		}
		w.WriteHeader(status)
	}))
	defer server.Close()

	storage := NewSupabaseStorageService(server.URL, "attachments", "service-key")

	if err := storage.Delete(context.Background(), "chat_files/x.png"); err != nil {
		t.Fatalf("Delete of missing object: %v", err)
	}

	status = http.StatusInternalServerError
	if err := storage.Delete(context.Background(), "chat_files/x.png"); err == nil {
		t.Fatal("expected error from upstream 500")
	}
}
