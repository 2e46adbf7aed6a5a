package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/infrastructure/config"
)

func TestSubmit_ReturnsJobResult(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 2, MaxSize: 4})
	defer m.Close()

	got, err := m.Submit(context.Background(), func(ctx context.Context) (blob.Blob, error) {
		return blob.Blob{Name: "out.jpg", Data: []byte("xyz")}, nil
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got.Name != "out.jpg" || string(got.Data) != "xyz" {
		t.Errorf("Unexpected blob %+v", got)
	}

	st := m.Status()
	if st.ProcessedCount != 1 || st.FailedCount != 0 {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestSubmit_PropagatesError(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 1, MaxSize: 1})
	defer m.Close()

	want := errors.New("boom")
	_, err := m.Submit(context.Background(), func(ctx context.Context) (blob.Blob, error) {
		return blob.Blob{}, want
	})
	if !errors.Is(err, want) {
		t.Errorf("Expected %v, got %v", want, err)
	}
	if m.Status().FailedCount != 1 {
		t.Errorf("Expected one failed job")
	}
}

func TestSubmit_RecoversPanic(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 1, MaxSize: 1})
	defer m.Close()

	_, err := m.Submit(context.Background(), func(ctx context.Context) (blob.Blob, error) {
		panic("decoder exploded")
	})
	if err == nil {
		t.Fatal("Expected error from panicking job")
	}

	// 工作協程仍可繼續處理
	if _, err := m.Submit(context.Background(), func(ctx context.Context) (blob.Blob, error) {
		return blob.Blob{}, nil
	}); err != nil {
		t.Errorf("Worker should survive a panic: %v", err)
	}
}

func TestEnqueue_Full(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 1, MaxSize: 1})
	defer m.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := func(ctx context.Context) (blob.Blob, error) {
		close(started)
		<-release
		return blob.Blob{}, nil
	}

	first, err := m.Enqueue(context.Background(), blocking)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	<-started

	// 佔滿緩衝區
	second, err := m.Enqueue(context.Background(), func(ctx context.Context) (blob.Blob, error) {
		return blob.Blob{}, nil
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if _, err := m.Enqueue(context.Background(), blocking); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	close(release)
	<-first
	<-second
}

func TestSubmit_ContextCancelled(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 1, MaxSize: 1})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Submit(ctx, func(ctx context.Context) (blob.Blob, error) {
		<-ctx.Done()
		return blob.Blob{}, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestClose_RejectsNewWork(t *testing.T) {
	m := NewManager(config.QueueConfig{Workers: 1, MaxSize: 1})
	m.Close()
	m.Close()

	if _, err := m.Enqueue(context.Background(), func(ctx context.Context) (blob.Blob, error) {
		return blob.Blob{}, nil
	}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
