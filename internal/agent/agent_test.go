package agent

import (
	"context"
	"encoding/base64"
	"testing"
)

func TestNewRequiresGenerator(t *testing.T) {
	if _, err := New(Config{SessionID: "s1"}); err == nil {
		t.Fatal("New() without a generator should fail")
	}
}

func TestPushAudioBeforeConnect(t *testing.T) {
	a, err := New(Config{SessionID: "s1", Generator: &fakeGenerator{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.PushAudio(context.Background(), []byte{1, 2}); err == nil {
		t.Fatal("PushAudio before connect should fail")
	}
	if err := a.PushAudio(context.Background(), nil); err == nil {
		t.Fatal("PushAudio with empty chunk should fail")
	}
}

func TestPushAudioForwardsPaddedBase64(t *testing.T) {
	a, err := New(Config{SessionID: "s1", Generator: &fakeGenerator{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got string
	a.setSendAudio(func(_ context.Context, audioBase64 string) error {
		got = audioBase64
		return nil
	})

	if err := a.PushAudio(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("PushAudio: %v", err)
	}
	pcm, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("forwarded audio is not base64: %v", err)
	}
	if len(pcm) != 4 || pcm[3] != 0 {
		t.Fatalf("forwarded pcm = %v, want odd chunk zero-padded to 4 bytes", pcm)
	}
}
