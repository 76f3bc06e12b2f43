package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/storage"
)

func TestOpenDownload(t *testing.T) {
	job := doneJob(nil)
	store := newMemStore()

	ref, err := store.Put(context.Background(), job.ID.String(), entity.ArtifactMeshSTL, strings.NewReader("stl-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	job.Artifacts[entity.ArtifactMeshSTL] = ref

	svc := NewResultService(newFakeRepo(job), store)

	dl, err := svc.OpenDownload(context.Background(), job.ID, "stl")
	if err != nil {
		t.Fatalf("open download: %v", err)
	}
	defer dl.Body.Close()

	if dl.ContentType != "application/sla" {
		t.Errorf("content type = %q", dl.ContentType)
	}
	if dl.Size != int64(len("stl-bytes")) {
		t.Errorf("size = %d", dl.Size)
	}
	want := "model_" + job.ID.String()[:8] + ".stl"
	if dl.Filename != want {
		t.Errorf("filename = %q, want %q", dl.Filename, want)
	}
	data, _ := io.ReadAll(dl.Body)
	if string(data) != "stl-bytes" {
		t.Errorf("body = %q", data)
	}
}

func TestOpenDownloadUnknownFormat(t *testing.T) {
	svc := NewResultService(newFakeRepo(doneJob(nil)), newMemStore())

	_, err := svc.OpenDownload(context.Background(), uuid.New(), "step")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestOpenDownloadRequiresFinishedJob(t *testing.T) {
	job := doneJob(nil)
	job.Status = entity.StatusReconstructing3D
	job.Artifacts[entity.ArtifactMeshSTL] = "x"

	svc := NewResultService(newFakeRepo(job), newMemStore())

	_, err := svc.OpenDownload(context.Background(), job.ID, "stl")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestOpenDownloadGLBAvailableBeforeDone(t *testing.T) {
	job := doneJob(nil)
	job.Status = entity.StatusRenderingPreviews
	store := newMemStore()

	ref, err := store.Put(context.Background(), job.ID.String(), entity.ArtifactMeshGLB, strings.NewReader("glb"))
	if err != nil {
		t.Fatal(err)
	}
	job.Artifacts[entity.ArtifactMeshGLB] = ref

	svc := NewResultService(newFakeRepo(job), store)

	dl, err := svc.OpenDownload(context.Background(), job.ID, "glb")
	if err != nil {
		t.Fatalf("glb should be served before the job finishes: %v", err)
	}
	dl.Body.Close()
	if dl.ContentType != "model/gltf-binary" {
		t.Errorf("content type = %q", dl.ContentType)
	}
}

func TestOpenDownloadMissingArtifact(t *testing.T) {
	job := doneJob(nil)
	svc := NewResultService(newFakeRepo(job), newMemStore())

	_, err := svc.OpenDownload(context.Background(), job.ID, "obj")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want storage.ErrNotFound", err)
	}
}
