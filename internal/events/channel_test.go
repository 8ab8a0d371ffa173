package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/pairline/internal/apperr"
)

func TestChannel_PreservesOrder(t *testing.T) {
	ch := NewChannel("s1")
	consumer, err := ch.Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer consumer.Detach()

	const n = 500
	go func() {
		for i := 0; i < n; i++ {
			ch.Push(Chunk("s1", fmt.Sprint(i)))
		}
		ch.Push(Complete("s1"))
	}()

	for i := 0; i < n; i++ {
		e, err := consumer.Pull(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("Pull failed: %v", err)
		}
		if e.Type != TypeChunk {
			t.Fatalf("event %d: got %s", i, e.Type)
		}
		if got := e.Data.(ChunkData).Chunk; got != fmt.Sprint(i) {
			t.Fatalf("event %d out of order: got chunk %s", i, got)
		}
	}
	if e, _ := consumer.Pull(context.Background(), time.Second); e.Type != TypeComplete {
		t.Errorf("expected complete last, got %s", e.Type)
	}
}

func TestChannel_BuffersBeforeAttach(t *testing.T) {
	ch := NewChannel("s1")
	ch.Push(Error("", "failed early", "generation", true))

	if ch.Len() != 1 {
		t.Fatalf("expected 1 buffered event, got %d", ch.Len())
	}

	consumer, _ := ch.Attach()
	e, err := consumer.Pull(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if e.Type != TypeError || e.SessionID != "s1" {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestChannel_PullTimeoutYieldsKeepAlive(t *testing.T) {
	ch := NewChannel("s1")
	consumer, _ := ch.Attach()

	start := time.Now()
	e, err := consumer.Pull(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if e.Type != TypeKeepAlive {
		t.Errorf("expected keep-alive, got %s", e.Type)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("keep-alive returned before the timeout")
	}
}

func TestChannel_PullHonorsContext(t *testing.T) {
	ch := NewChannel("s1")
	consumer, _ := ch.Attach()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := consumer.Pull(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestChannel_SingleConsumer(t *testing.T) {
	ch := NewChannel("s1")
	first, err := ch.Attach()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ch.Attach(); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict for second consumer, got %v", err)
	}

	first.Detach()
	first.Detach()

	second, err := ch.Attach()
	if err != nil {
		t.Fatalf("attach after detach failed: %v", err)
	}
	second.Detach()
}

func TestChannel_ConcurrentPushNeverBlocks(t *testing.T) {
	ch := NewChannel("s1")

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				ch.Push(Chunk("s1", "x"))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producers blocked without a consumer")
	}
	if ch.Len() != 8000 {
		t.Errorf("expected 8000 buffered events, got %d", ch.Len())
	}
}

func TestPump_KeepAliveAfterComplete(t *testing.T) {
	ch := NewChannel("s1")
	consumer, _ := ch.Attach()
	ch.Push(Chunk("s1", "hi"))
	ch.Push(Complete("s1"))

	ctx, cancel := context.WithCancel(context.Background())
	var got []Type
	err := Pump(ctx, consumer, time.Minute, func(e Event) error {
		got = append(got, e.Type)
		if len(got) == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	want := []Type{TypeChunk, TypeComplete, TypeKeepAlive}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSSE(&buf, Commit("s1", "abc", "msg", "diff")); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	const prefix = "event: commit\ndata: "
	if len(out) < len(prefix) || out[:len(prefix)] != prefix {
		t.Fatalf("unexpected record %q", out)
	}
	if out[len(out)-2:] != "\n\n" {
		t.Errorf("record must end with a blank line: %q", out)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(out[len(prefix):len(out)-2]), &payload); err != nil {
		t.Fatalf("data is not JSON: %v", err)
	}
	if payload["hash"] != "abc" || payload["session_id"] != "s1" || payload["diff"] != "diff" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestPayload_CompleteCarriesSessionOnly(t *testing.T) {
	data, err := Complete("s1").Payload()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"session_id":"s1"}` {
		t.Errorf("Payload() = %s", data)
	}
}
