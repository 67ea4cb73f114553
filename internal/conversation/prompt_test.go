package conversation

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func settledMessage(role Role, content string) Message {
	return Message{ID: NewID(), Role: role, Content: content, Status: StatusResolved}
}

func TestPromptBuilder_NoHistoryIsBareUtterance(t *testing.T) {
	t.Parallel()
	b := PromptBuilder{Window: DefaultWindow}
	if got := b.Build(nil, "Hello"); got != "Hello" {
		t.Fatalf("Build = %q", got)
	}
	onlyPending := []Message{Placeholder()}
	if got := b.Build(onlyPending, "Hello"); got != "Hello" {
		t.Fatalf("pending-only history should be ignored, got %q", got)
	}
}

func TestPromptBuilder_Format(t *testing.T) {
	t.Parallel()
	history := []Message{
		settledMessage(RoleUser, "Hello"),
		settledMessage(RoleAssistant, "Hi there"),
	}
	got := PromptBuilder{Window: DefaultWindow}.Build(history, "How are you?")
	want := "User: Hello\nAssistant: Hi there\nUser: How are you?\nAssistant:"
	if got != want {
		t.Fatalf("Build =\n%q\nwant\n%q", got, want)
	}
}

func TestPromptBuilder_KeepsFailedRepliesDropsPending(t *testing.T) {
	t.Parallel()
	history := []Message{
		settledMessage(RoleUser, "first"),
		Placeholder().Fail(),
		settledMessage(RoleUser, "second"),
		Placeholder(),
	}
	got := PromptBuilder{}.Build(history, "third")
	want := "User: first\nAssistant: " + FailureText + "\nUser: second\nUser: third\nAssistant:"
	if got != want {
		t.Fatalf("Build =\n%q\nwant\n%q", got, want)
	}
}

func TestPromptBuilder_WindowKeepsMostRecent(t *testing.T) {
	t.Parallel()
	var history []Message
	for _, c := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		history = append(history, settledMessage(RoleUser, c))
	}
	got := PromptBuilder{Window: 4}.Build(history, "now")
	if strings.Contains(got, "m1") || strings.Contains(got, "m2") {
		t.Fatalf("old messages leaked past the window: %q", got)
	}
	if !strings.HasPrefix(got, "User: m3\n") {
		t.Fatalf("window should start at m3: %q", got)
	}
}

// =============================================================================
// Property: prompt carries at most Window history lines plus the new turn
// =============================================================================

func testPromptBuilder_Window_Properties(t *rapid.T) {
	window := rapid.IntRange(0, 8).Draw(t, "window")
	history := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) Message {
		m := settledMessage(
			rapid.SampledFrom([]Role{RoleUser, RoleAssistant}).Draw(t, "role"),
			rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "content"),
		)
		if rapid.Bool().Draw(t, "pending") {
			m.Status = StatusPending
		}
		return m
	}), 0, 20).Draw(t, "history")
	utterance := rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "utterance")

	settled := 0
	for _, m := range history {
		if !m.IsLoading() {
			settled++
		}
	}
	want := settled
	if window > 0 && want > window {
		want = window
	}

	got := PromptBuilder{Window: window}.Build(history, utterance)
	if want == 0 {
		if got != utterance {
			t.Fatalf("expected bare utterance, got %q", got)
		}
		return
	}
	lines := strings.Split(got, "\n")
	if len(lines) != want+2 {
		t.Fatalf("expected %d lines, got %d: %q", want+2, len(lines), got)
	}
	if lines[len(lines)-1] != "Assistant:" || lines[len(lines)-2] != "User: "+utterance {
		t.Fatalf("prompt does not end with the new turn: %q", got)
	}
}

func TestPromptBuilder_Window_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testPromptBuilder_Window_Properties)
}

func FuzzPromptBuilder_Window_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testPromptBuilder_Window_Properties))
}
