package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/agentcore/pkg/messages"
)

func TestToolContext_ResolveMemoizes(t *testing.T) {
	tc := NewToolContext(nil)
	built := 0
	dep := Dependency{
		ID: "db",
		New: func(context.Context) (any, error) {
			built++
			return "handle", nil
		},
	}

	for i := 0; i < 3; i++ {
		v, err := tc.Resolve(context.Background(), dep)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if v != "handle" {
			t.Errorf("Resolve = %v", v)
		}
	}
	if built != 1 {
		t.Errorf("dependency built %d times, want 1", built)
	}
}

func TestToolContext_ResolveErrorNotCached(t *testing.T) {
	tc := NewToolContext(nil)
	attempts := 0
	dep := Dependency{
		ID: "flaky",
		New: func(context.Context) (any, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		},
	}

	if _, err := tc.Resolve(context.Background(), dep); err == nil {
		t.Fatal("first resolve should fail")
	}
	v, err := tc.Resolve(context.Background(), dep)
	if err != nil || v != "ok" {
		t.Errorf("retry after failure = %v, %v", v, err)
	}
}

func TestToolOutput_Content(t *testing.T) {
	if got := (&ToolOutput{Text: "plain"}).Content(); got[0].AsText() != "plain" {
		t.Errorf("text output = %q", got[0].AsText())
	}

	parts := []messages.ContentPart{messages.Text("a"), messages.Text("b")}
	if got := (&ToolOutput{Parts: parts}).Content(); len(got) != 2 {
		t.Errorf("parts output = %v", got)
	}

	jsonOut := (&ToolOutput{JSON: map[string]int{"n": 1}}).Content()
	if jsonOut[0].AsText() != `{"n":1}` {
		t.Errorf("json output = %q", jsonOut[0].AsText())
	}

	var nilOut *ToolOutput
	if got := nilOut.Content(); got[0].AsText() != "" {
		t.Errorf("nil output = %q", got[0].AsText())
	}
}

func TestTaskCompleteIsError(t *testing.T) {
	var target *TaskComplete
	err := error(&TaskComplete{FinalMessage: "done"})
	if !errors.As(err, &target) || target.FinalMessage != "done" {
		t.Errorf("TaskComplete not extractable: %v", err)
	}
}
